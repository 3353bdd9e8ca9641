package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"creditpolicy/internal/artifact"
	"creditpolicy/internal/dataset"
	"creditpolicy/internal/models"
	"creditpolicy/internal/oracle"
	"creditpolicy/internal/policy"
	"creditpolicy/internal/repository"
	"creditpolicy/internal/sample"
)

// columnScorer returns one table column as its scores.
type columnScorer struct {
	id     string
	column string
	err    error
}

func (s columnScorer) ID() string         { return s.id }
func (s columnScorer) Features() []string { return []string{s.column} }
func (s columnScorer) PredictProba(_ context.Context, t dataset.Table) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	col, ok := t.Column(s.column)
	if !ok {
		return nil, oracle.ErrFeatureMismatch
	}
	return col, nil
}

type stubStore struct {
	artifacts []artifact.ThresholdArtifact
	reports   []artifact.Report
	err       error
}

func (s *stubStore) SaveThresholds(_ context.Context, a artifact.ThresholdArtifact) error {
	if s.err != nil {
		return s.err
	}
	s.artifacts = append(s.artifacts, a)
	return nil
}

func (s *stubStore) SaveReport(_ context.Context, r artifact.Report) error {
	s.reports = append(s.reports, r)
	return nil
}

type stubRepo struct {
	runs []models.PolicyRun
	err  error
}

func (r *stubRepo) InsertPolicyRun(_ context.Context, item *models.PolicyRun) error {
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, *item)
	return nil
}

func (r *stubRepo) GetPolicyRun(context.Context, string) (*models.PolicyRun, error) { return nil, nil }

func (r *stubRepo) ListPolicyRuns(context.Context, repository.ListPolicyRunsParams) ([]models.PolicyRun, error) {
	return r.runs, nil
}

func (r *stubRepo) CountPolicyRuns(context.Context, repository.ListPolicyRunsParams) (int64, error) {
	return int64(len(r.runs)), nil
}

func splitOf(labels []int, good []float64) Split {
	rows := make([][]float64, len(good))
	for i, g := range good {
		rows[i] = []float64{g, 1 - g}
	}
	return Split{Features: dataset.Table{Columns: []string{"good", "bad"}, Rows: rows}, Labels: labels}
}

var (
	validationSplit = splitOf([]int{0, 0, 0, 1, 1}, []float64{0.1, 0.2, 0.6, 0.7, 0.9})
	testSplit       = splitOf([]int{0, 1, 0, 1, 0, 0}, []float64{0.05, 0.15, 0.3, 0.8, 0.5, 0.65})
)

func newRunner(store ArtifactStore, repo repository.PolicyRunRepository) *Runner {
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Runner{
		Config: Config{Costs: policy.DefaultCostSchedule(), Grid: policy.DefaultGrid(), Workers: 2},
		Candidates: []oracle.Scorer{
			columnScorer{id: "inverted", column: "bad"},
			columnScorer{id: "calibrated_histgb", column: "good"},
		},
		Store: store,
		Repo:  repo,
		Now:   func() time.Time { return fixed },
		NewID: func() string { return "run-1" },
	}
}

func TestRun_EndToEnd(t *testing.T) {
	store := &stubStore{}
	repo := &stubRepo{}
	res, err := newRunner(store, repo).Run(context.Background(), validationSplit, testSplit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Artifact.SourceModel != "calibrated_histgb" {
		t.Fatalf("winner=%s want=calibrated_histgb", res.Artifact.SourceModel)
	}
	if res.Report.Leaderboard[0].Model != "calibrated_histgb" || res.Report.Leaderboard[1].Model != "inverted" {
		t.Fatalf("leaderboard=%+v", res.Report.Leaderboard)
	}

	want, err := policy.Optimize(context.Background(), validationSplit.Labels, []float64{0.1, 0.2, 0.6, 0.7, 0.9}, policy.DefaultCostSchedule(), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Artifact.Pair() != want.Pair || res.Report.Validation.Cost != want.Cost {
		t.Fatalf("pair=%+v cost=%v want=%+v cost=%v", res.Artifact.Pair(), res.Report.Validation.Cost, want.Pair, want.Cost)
	}

	wantOutcome, err := policy.Outcomes(testSplit.Labels, []float64{0.05, 0.15, 0.3, 0.8, 0.5, 0.65}, want.Pair, policy.DefaultCostSchedule())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Report.TestPolicy.TotalCost != wantOutcome.TotalCost || res.Report.TestPolicy.NReview != wantOutcome.NReview {
		t.Fatalf("test outcome=%+v want=%+v", res.Report.TestPolicy, wantOutcome)
	}
	if res.Report.TestMetrics == nil {
		t.Fatalf("test metrics missing")
	}

	if len(store.artifacts) != 1 || len(store.reports) != 1 || store.artifacts[0].RunID != "run-1" {
		t.Fatalf("store=%+v", store)
	}
	if !store.artifacts[0].CreatedAt.Equal(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at=%v", store.artifacts[0].CreatedAt)
	}
	if len(repo.runs) != 1 || repo.runs[0].RunID != "run-1" || repo.runs[0].NTest != 6 {
		t.Fatalf("repo=%+v", repo.runs)
	}
	if repo.runs[0].TestCost.InexactFloat64() != wantOutcome.TotalCost {
		t.Fatalf("test cost=%s want=%v", repo.runs[0].TestCost, wantOutcome.TotalCost)
	}
}

func TestRun_TestSplitNeverMovesThresholds(t *testing.T) {
	a, err := newRunner(&stubStore{}, nil).Run(context.Background(), validationSplit, testSplit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	other := splitOf([]int{1, 1, 0, 0}, []float64{0.01, 0.02, 0.98, 0.99})
	b, err := newRunner(&stubStore{}, nil).Run(context.Background(), validationSplit, other)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if a.Artifact.Pair() != b.Artifact.Pair() {
		t.Fatalf("pair moved with test split: %+v vs %+v", a.Artifact.Pair(), b.Artifact.Pair())
	}
}

func TestRun_SingleClassTestSplitKeepsOutcomes(t *testing.T) {
	res, err := newRunner(&stubStore{}, nil).Run(context.Background(), validationSplit, splitOf([]int{0, 0}, []float64{0.1, 0.9}))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Report.TestMetrics != nil {
		t.Fatalf("test metrics=%+v want nil", res.Report.TestMetrics)
	}
	if res.Report.TestPolicy.N != 2 {
		t.Fatalf("n=%d want=2", res.Report.TestPolicy.N)
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	r := newRunner(&stubStore{}, nil)

	empty := *r
	empty.Candidates = nil
	if _, err := empty.Run(ctx, validationSplit, testSplit); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err=%v want ErrNoCandidates", err)
	}

	short := validationSplit
	short.Labels = short.Labels[:3]
	if _, err := r.Run(ctx, short, testSplit); !errors.Is(err, sample.ErrLengthMismatch) {
		t.Fatalf("err=%v want ErrLengthMismatch", err)
	}

	boom := errors.New("model server down")
	failing := *r
	failing.Candidates = []oracle.Scorer{columnScorer{id: "m", err: boom}}
	if _, err := failing.Run(ctx, validationSplit, testSplit); !errors.Is(err, boom) {
		t.Fatalf("err=%v want scorer error", err)
	}

	dup := *r
	dup.Candidates = []oracle.Scorer{columnScorer{id: "m", column: "good"}, columnScorer{id: "m", column: "bad"}}
	if _, err := dup.Run(ctx, validationSplit, testSplit); err == nil {
		t.Fatalf("expected duplicate id error")
	}

	infeasible := *r
	zero := 0.0
	infeasible.Config.MaxReviewRate = &zero
	infeasible.Config.Grid = policy.Grid{Approve: []float64{0.05}, Reject: []float64{0.95}}
	if _, err := infeasible.Run(ctx, validationSplit, testSplit); !errors.Is(err, policy.ErrNoFeasiblePolicy) {
		t.Fatalf("err=%v want ErrNoFeasiblePolicy", err)
	}

	storeErr := errors.New("disk full")
	broken := newRunner(&stubStore{err: storeErr}, nil)
	if _, err := broken.Run(ctx, validationSplit, testSplit); !errors.Is(err, storeErr) {
		t.Fatalf("err=%v want store error", err)
	}
}

func TestRun_RecordFailureIsNotFatal(t *testing.T) {
	store := &stubStore{}
	r := newRunner(store, &stubRepo{err: errors.New("db down")})
	if _, err := r.Run(context.Background(), validationSplit, testSplit); err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(store.artifacts) != 1 {
		t.Fatalf("artifact not published")
	}
}

func TestRun_DefaultGridWhenUnset(t *testing.T) {
	r := newRunner(&stubStore{}, nil)
	r.Config.Grid = policy.Grid{}
	res, err := r.Run(context.Background(), validationSplit, testSplit)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Report.Validation.PairsEvaluated == 0 {
		t.Fatalf("no pairs evaluated")
	}
}

func TestLoadSplit(t *testing.T) {
	dir := t.TempDir()
	x := filepath.Join(dir, "X_val.csv")
	y := filepath.Join(dir, "y_val.csv")
	if err := os.WriteFile(x, []byte("good,bad\n0.1,0.9\n0.8,0.2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(y, []byte("default\n0\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSplit(x, y)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if s.Features.Len() != 2 || s.Labels[1] != 1 {
		t.Fatalf("split=%+v", s)
	}
}
