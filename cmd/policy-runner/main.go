package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"creditpolicy/internal/artifact"
	"creditpolicy/internal/config"
	cronrunner "creditpolicy/internal/cron"
	"creditpolicy/internal/db"
	"creditpolicy/internal/logger"
	"creditpolicy/internal/oracle"
	"creditpolicy/internal/repository"
	gormrepository "creditpolicy/internal/repository/gorm"
	"creditpolicy/internal/runner"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic(err)
	}
	cfgPath := os.Getenv("CP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if envOnlyRaw := os.Getenv("CP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	store, err := artifact.Open(cfg.Artifacts, cfg.S3)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo repository.PolicyRunRepository
	if strings.TrimSpace(cfg.DB.DSN) != "" {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)
		if err := db.SetTimezone(ctx, dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		repo = gormrepository.New(dbConn.Gorm)
	} else {
		logger.Info("db.dsn empty, run history disabled")
	}

	runOnce := func(ctx context.Context) error {
		candidates, err := oracle.LoadAll(cfg.Models.Candidates)
		if err != nil {
			return err
		}
		validation, err := runner.LoadSplit(cfg.Data.ValidationFeatures, cfg.Data.ValidationLabels)
		if err != nil {
			return err
		}
		test, err := runner.LoadSplit(cfg.Data.TestFeatures, cfg.Data.TestLabels)
		if err != nil {
			return err
		}
		r := &runner.Runner{
			Config: runner.Config{
				Costs:         cfg.Policy.Costs,
				Grid:          cfg.Policy.Grid.Grid(),
				MaxReviewRate: cfg.Policy.MaxReviewRate,
				Workers:       cfg.Policy.Workers,
			},
			Candidates: candidates,
			Store:      store,
			Repo:       repo,
			Logger:     logger,
		}
		res, err := r.Run(ctx, validation, test)
		if err != nil {
			return err
		}
		logger.Info("policy run complete",
			zap.String("run_id", res.Artifact.RunID),
			zap.String("model", res.Artifact.SourceModel),
			zap.Float64("t_approve", res.Artifact.TApprove),
			zap.Float64("t_reject", res.Artifact.TReject),
			zap.Float64("test_cost", res.Report.TestPolicy.TotalCost),
		)
		return nil
	}

	if !cfg.Cron.Enabled {
		if err := runOnce(ctx); err != nil {
			logger.Fatal("policy run failed", zap.Error(err))
		}
		return
	}

	cronRunner := cronrunner.New(logger, ctx)
	if _, err := cronRunner.Add("policy_run", cfg.Cron.PolicyRun, runOnce); err != nil {
		logger.Fatal("cron register policy run failed", zap.Error(err))
	}
	cronRunner.Start()
	logger.Info("policy runner scheduled", zap.String("schedule", cfg.Cron.PolicyRun))
	<-ctx.Done()
	logger.Info("shutdown requested")
	cronRunner.Stop()
}
