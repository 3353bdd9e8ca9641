package policy

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"creditpolicy/internal/sample"
)

// Grid holds the candidate cutoffs. Both slices must be strictly ascending; the
// search visits t_approve in order and, for each, t_reject in order, and that
// visiting order is the tie-break between equal-cost pairs.
type Grid struct {
	Approve []float64 `json:"t_approve"`
	Reject  []float64 `json:"t_reject"`
}

// GridSpec describes a Grid as two evenly spaced ranges.
type GridSpec struct {
	ApproveMin    float64 `mapstructure:"approve_min"`
	ApproveMax    float64 `mapstructure:"approve_max"`
	ApprovePoints int     `mapstructure:"approve_points"`
	RejectMin     float64 `mapstructure:"reject_min"`
	RejectMax     float64 `mapstructure:"reject_max"`
	RejectPoints  int     `mapstructure:"reject_points"`
}

// DefaultGridSpec encodes the prior that approval cutoffs lie in [0.05,0.35] and
// rejection cutoffs in [0.20,0.70].
func DefaultGridSpec() GridSpec {
	return GridSpec{
		ApproveMin:    0.05,
		ApproveMax:    0.35,
		ApprovePoints: 31,
		RejectMin:     0.20,
		RejectMax:     0.70,
		RejectPoints:  51,
	}
}

func (s GridSpec) Grid() Grid {
	return Grid{
		Approve: sample.Linspace(s.ApproveMin, s.ApproveMax, s.ApprovePoints),
		Reject:  sample.Linspace(s.RejectMin, s.RejectMax, s.RejectPoints),
	}
}

func DefaultGrid() Grid {
	return DefaultGridSpec().Grid()
}

func (g Grid) Validate() error {
	check := func(name string, values []float64) error {
		if len(values) == 0 {
			return fmt.Errorf("%w: %s grid is empty", ErrInvalidGrid, name)
		}
		for i, v := range values {
			if math.IsNaN(v) || v < 0 || v > 1 {
				return fmt.Errorf("%w: %s[%d]=%v outside [0,1]", ErrInvalidGrid, name, i, v)
			}
			if i > 0 && v <= values[i-1] {
				return fmt.Errorf("%w: %s grid not strictly ascending at %d", ErrInvalidGrid, name, i)
			}
		}
		return nil
	}
	if err := check("t_approve", g.Approve); err != nil {
		return err
	}
	return check("t_reject", g.Reject)
}

// Result is the selected pair with its cost on the optimisation sample.
type Result struct {
	Pair      ThresholdPair `json:"thresholds"`
	Cost      float64       `json:"cost"`
	Evaluated int           `json:"pairs_evaluated"`
	Feasible  int           `json:"pairs_feasible"`
}

// Optimizer runs the exhaustive cost-minimising search over Grid.
type Optimizer struct {
	Grid  Grid
	Costs CostSchedule
	// MaxReviewRate, when set, discards pairs that send a larger share of cases to review.
	MaxReviewRate *float64
	// Workers bounds the number of grid rows evaluated concurrently; <=0 means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

type rowResult struct {
	found     bool
	pair      ThresholdPair
	cost      float64
	evaluated int
	feasible  int
}

// Optimize selects the minimum-cost pair. Rows of the grid may be evaluated in
// parallel; the winner is reduced in grid order with a strict comparison, so the
// first pair reaching the minimum wins exactly as in a sequential scan.
func (o *Optimizer) Optimize(ctx context.Context, labels []int, scores []float64) (Result, error) {
	if err := sample.Validate(labels, scores); err != nil {
		return Result{}, fmt.Errorf("optimize: %w", err)
	}
	if err := o.Grid.Validate(); err != nil {
		return Result{}, fmt.Errorf("optimize: %w", err)
	}
	if err := o.Costs.Validate(); err != nil {
		return Result{}, fmt.Errorf("optimize: %w", err)
	}
	if o.MaxReviewRate != nil && (math.IsNaN(*o.MaxReviewRate) || *o.MaxReviewRate < 0 || *o.MaxReviewRate > 1) {
		return Result{}, fmt.Errorf("optimize: max review rate %v outside [0,1]", *o.MaxReviewRate)
	}

	workers := o.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rows := make([]rowResult, len(o.Grid.Approve))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ta := range o.Grid.Approve {
		i, ta := i, ta
		g.Go(func() error {
			row, err := o.searchRow(gctx, labels, scores, ta)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("optimize: %w", err)
	}

	var best rowResult
	var evaluated, feasible int
	for _, row := range rows {
		evaluated += row.evaluated
		feasible += row.feasible
		if row.found && (!best.found || row.cost < best.cost) {
			best = row
		}
	}
	if !best.found {
		return Result{}, fmt.Errorf("%w: evaluated=%d", ErrNoFeasiblePolicy, evaluated)
	}
	if o.Logger != nil {
		o.Logger.Debug("threshold search done",
			zap.Float64("t_approve", best.pair.Approve),
			zap.Float64("t_reject", best.pair.Reject),
			zap.Float64("cost", best.cost),
			zap.Int("evaluated", evaluated),
			zap.Int("feasible", feasible),
		)
	}
	return Result{Pair: best.pair, Cost: best.cost, Evaluated: evaluated, Feasible: feasible}, nil
}

func (o *Optimizer) searchRow(ctx context.Context, labels []int, scores []float64, ta float64) (rowResult, error) {
	var row rowResult
	for _, tr := range o.Grid.Reject {
		if tr <= ta {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rowResult{}, err
		}
		pair := ThresholdPair{Approve: ta, Reject: tr}
		t := count(labels, scores, pair)
		row.evaluated++
		if o.MaxReviewRate != nil && t.reviewRate() > *o.MaxReviewRate {
			continue
		}
		row.feasible++
		c := o.Costs.price(t)
		if !row.found || c < row.cost {
			row.found = true
			row.pair = pair
			row.cost = c
		}
	}
	return row, nil
}

// Optimize searches the default grid with the given costs and optional review cap.
func Optimize(ctx context.Context, labels []int, scores []float64, costs CostSchedule, maxReviewRate *float64) (Result, error) {
	o := &Optimizer{Grid: DefaultGrid(), Costs: costs, MaxReviewRate: maxReviewRate}
	return o.Optimize(ctx, labels, scores)
}
