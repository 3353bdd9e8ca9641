// Package runner performs one offline policy run: rank candidate scorers on the
// validation split, search thresholds on the winner's validation scores, then
// report the chosen policy on the untouched test split.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"creditpolicy/internal/artifact"
	"creditpolicy/internal/dataset"
	"creditpolicy/internal/metrics"
	"creditpolicy/internal/models"
	"creditpolicy/internal/oracle"
	"creditpolicy/internal/policy"
	"creditpolicy/internal/repository"
	"creditpolicy/internal/sample"
)

var ErrNoCandidates = errors.New("runner: no candidate models")

// Split is one labelled partition of the data.
type Split struct {
	Features dataset.Table
	Labels   []int
}

func (s Split) validate(name string) error {
	if s.Features.Len() != len(s.Labels) {
		return fmt.Errorf("%s split: %w: features=%d labels=%d", name, sample.ErrLengthMismatch, s.Features.Len(), len(s.Labels))
	}
	if len(s.Labels) == 0 {
		return fmt.Errorf("%s split: %w", name, sample.ErrEmpty)
	}
	return nil
}

// LoadSplit reads a feature table and its label column.
func LoadSplit(featuresPath, labelsPath string) (Split, error) {
	features, err := dataset.LoadTable(featuresPath)
	if err != nil {
		return Split{}, err
	}
	labels, err := dataset.LoadLabels(labelsPath)
	if err != nil {
		return Split{}, err
	}
	return Split{Features: features, Labels: labels}, nil
}

// ArtifactStore is where a run publishes its outputs.
type ArtifactStore interface {
	SaveThresholds(ctx context.Context, a artifact.ThresholdArtifact) error
	SaveReport(ctx context.Context, r artifact.Report) error
}

type Config struct {
	Costs         policy.CostSchedule
	Grid          policy.Grid
	MaxReviewRate *float64
	Workers       int
}

type Runner struct {
	Config     Config
	Candidates []oracle.Scorer
	Store      ArtifactStore
	// Repo is optional; when set every run is recorded.
	Repo   repository.PolicyRunRepository
	Logger *zap.Logger

	Now   func() time.Time
	NewID func() string
}

type Result struct {
	Artifact artifact.ThresholdArtifact
	Report   artifact.Report
}

type candidateScores struct {
	scorer oracle.Scorer
	scores []float64
	report metrics.Report
}

func (r *Runner) Run(ctx context.Context, validation, test Split) (Result, error) {
	if len(r.Candidates) == 0 {
		return Result{}, ErrNoCandidates
	}
	if err := validation.validate("validation"); err != nil {
		return Result{}, err
	}
	if err := test.validate("test"); err != nil {
		return Result{}, err
	}
	started := r.now()
	runID := r.newID()
	log := r.logger().With(zap.String("run_id", runID))

	scored, err := r.scoreCandidates(ctx, validation)
	if err != nil {
		return Result{}, err
	}
	entries := make([]metrics.Entry, len(scored))
	byID := make(map[string]candidateScores, len(scored))
	for i, c := range scored {
		entries[i] = metrics.Entry{Model: c.scorer.ID(), Report: c.report}
		byID[c.scorer.ID()] = c
	}
	leaderboard := metrics.Rank(entries)
	winner := byID[leaderboard[0].Model]
	log.Info("candidate ranking done",
		zap.String("winner", winner.scorer.ID()),
		zap.Float64("roc_auc", winner.report.ROCAUC),
		zap.Float64("log_loss", winner.report.LogLoss),
		zap.Int("candidates", len(leaderboard)),
	)

	opt := &policy.Optimizer{
		Grid:          r.Config.Grid,
		Costs:         r.Config.Costs,
		MaxReviewRate: r.Config.MaxReviewRate,
		Workers:       r.Config.Workers,
		Logger:        log,
	}
	if len(opt.Grid.Approve) == 0 && len(opt.Grid.Reject) == 0 {
		opt.Grid = policy.DefaultGrid()
	}
	search, err := opt.Optimize(ctx, validation.Labels, winner.scores)
	if err != nil {
		return Result{}, fmt.Errorf("validation search: %w", err)
	}

	testScores, err := winner.scorer.PredictProba(ctx, test.Features)
	if err != nil {
		return Result{}, fmt.Errorf("score test split with %s: %w", winner.scorer.ID(), err)
	}
	outcome, err := policy.Outcomes(test.Labels, testScores, search.Pair, r.Config.Costs)
	if err != nil {
		return Result{}, fmt.Errorf("test outcomes: %w", err)
	}
	var testMetrics *metrics.Report
	if m, err := metrics.Evaluate(test.Labels, testScores); err == nil {
		testMetrics = &m
	} else {
		log.Warn("test metrics unavailable", zap.Error(err))
	}

	art := artifact.ThresholdArtifact{
		TApprove:      search.Pair.Approve,
		TReject:       search.Pair.Reject,
		CostSchedule:  r.Config.Costs,
		MaxReviewRate: r.Config.MaxReviewRate,
		SourceModel:   winner.scorer.ID(),
		RunID:         runID,
		CreatedAt:     started,
	}
	report := artifact.Report{
		RunID:         runID,
		CreatedAt:     started,
		Model:         winner.scorer.ID(),
		Thresholds:    search.Pair,
		CostSchedule:  r.Config.Costs,
		MaxReviewRate: r.Config.MaxReviewRate,
		Validation: artifact.SearchSummary{
			Cost:           search.Cost,
			N:              len(validation.Labels),
			PairsEvaluated: search.Evaluated,
			PairsFeasible:  search.Feasible,
		},
		TestPolicy:  outcome,
		TestMetrics: testMetrics,
		Leaderboard: leaderboard,
	}

	if r.Store != nil {
		if err := r.Store.SaveThresholds(ctx, art); err != nil {
			return Result{}, err
		}
		if err := r.Store.SaveReport(ctx, report); err != nil {
			return Result{}, err
		}
	}
	if r.Repo != nil {
		if err := r.record(ctx, report); err != nil {
			log.Warn("record policy run failed", zap.Error(err))
		}
	}

	log.Info("policy run done",
		zap.String("model", art.SourceModel),
		zap.Float64("t_approve", art.TApprove),
		zap.Float64("t_reject", art.TReject),
		zap.Float64("validation_cost", search.Cost),
		zap.Float64("test_cost", outcome.TotalCost),
		zap.Float64("test_review_rate", outcome.ReviewRate),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	return Result{Artifact: art, Report: report}, nil
}

// scoreCandidates scores and evaluates every candidate on the validation split.
func (r *Runner) scoreCandidates(ctx context.Context, validation Split) ([]candidateScores, error) {
	out := make([]candidateScores, len(r.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, scorer := range r.Candidates {
		i, scorer := i, scorer
		g.Go(func() error {
			scores, err := scorer.PredictProba(gctx, validation.Features)
			if err != nil {
				return fmt.Errorf("score validation split with %s: %w", scorer.ID(), err)
			}
			report, err := metrics.Evaluate(validation.Labels, scores)
			if err != nil {
				return fmt.Errorf("evaluate %s on validation split: %w", scorer.ID(), err)
			}
			out[i] = candidateScores{scorer: scorer, scores: scores, report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(out))
	for _, c := range out {
		if _, dup := seen[c.scorer.ID()]; dup {
			return nil, fmt.Errorf("runner: duplicate candidate id %q", c.scorer.ID())
		}
		seen[c.scorer.ID()] = struct{}{}
	}
	return out, nil
}

func (r *Runner) record(ctx context.Context, report artifact.Report) error {
	run, err := toPolicyRun(report)
	if err != nil {
		return err
	}
	return r.Repo.InsertPolicyRun(ctx, run)
}

func toPolicyRun(report artifact.Report) (*models.PolicyRun, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	board, err := json.Marshal(report.Leaderboard)
	if err != nil {
		return nil, err
	}
	run := &models.PolicyRun{
		RunID:               report.RunID,
		Model:               report.Model,
		TApprove:            decimal.NewFromFloat(report.Thresholds.Approve),
		TReject:             decimal.NewFromFloat(report.Thresholds.Reject),
		CostDefaultApproved: decimal.NewFromFloat(report.CostSchedule.DefaultApproved),
		CostGoodRejected:    decimal.NewFromFloat(report.CostSchedule.GoodRejected),
		CostReview:          decimal.NewFromFloat(report.CostSchedule.Review),
		ValidationCost:      decimal.NewFromFloat(report.Validation.Cost),
		TestCost:            decimal.NewFromFloat(report.TestPolicy.TotalCost),
		NTest:               report.TestPolicy.N,
		ApproveRate:         report.TestPolicy.ApproveRate,
		ReviewRate:          report.TestPolicy.ReviewRate,
		RejectRate:          report.TestPolicy.RejectRate,
		Report:              datatypes.JSON(raw),
		Leaderboard:         datatypes.JSON(board),
		CreatedAt:           report.CreatedAt,
	}
	if report.MaxReviewRate != nil {
		v := decimal.NewFromFloat(*report.MaxReviewRate)
		run.MaxReviewRate = &v
	}
	if report.TestMetrics != nil {
		run.TestROCAUC = report.TestMetrics.ROCAUC
	}
	return run, nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
