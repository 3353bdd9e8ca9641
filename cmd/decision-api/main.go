package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creditpolicy/internal/artifact"
	"creditpolicy/internal/auth"
	"creditpolicy/internal/config"
	"creditpolicy/internal/db"
	"creditpolicy/internal/handler"
	"creditpolicy/internal/logger"
	"creditpolicy/internal/repository"
	gormrepository "creditpolicy/internal/repository/gorm"
	"creditpolicy/internal/serving"

	_ "creditpolicy/docs"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := artifact.Open(cfg.Artifacts, cfg.S3)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}
	sc, err := serving.Load(ctx, store, serving.LoadOptions{
		ModelPath:    cfg.Serving.ModelPath,
		FeaturesPath: cfg.Serving.FeaturesPath,
		FillStrategy: cfg.Serving.FillStrategy,
	})
	if err != nil {
		logger.Fatal("serving context load failed", zap.Error(err))
	}
	logger.Info("serving context loaded",
		zap.String("model", sc.ModelID()),
		zap.Float64("t_approve", sc.Thresholds().Approve),
		zap.Float64("t_reject", sc.Thresholds().Reject),
		zap.String("fill_strategy", sc.FillName()),
		zap.Int("features", len(sc.Features())),
	)

	var (
		gdb  *gorm.DB
		repo repository.PolicyRunRepository
	)
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
		gdb = dbConn.Gorm
		repo = gormrepository.New(dbConn.Gorm)
	}

	var verifier auth.Verifier
	if cfg.Auth.Enabled {
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			logger.Fatal("auth enabled but auth.jwt_secret is empty")
		}
		verifier = auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer}
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(auth.RequireBearer(verifier, logger))

	(&handler.HealthHandler{Serving: sc, DB: gdb}).Register(engine)
	(&handler.PredictHandler{Serving: sc, Logger: logger}).Register(engine)
	(&handler.PolicyHandler{Serving: sc, Repo: repo, Logger: logger}).Register(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
