package policy

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func ptr(v float64) *float64 { return &v }

func TestDefaultGrid(t *testing.T) {
	g := DefaultGrid()
	if len(g.Approve) != 31 || len(g.Reject) != 51 {
		t.Fatalf("grid=%dx%d want=31x51", len(g.Approve), len(g.Reject))
	}
	if g.Approve[0] != 0.05 || g.Approve[30] != 0.35 || g.Reject[0] != 0.2 || g.Reject[50] != 0.7 {
		t.Fatalf("grid endpoints=%v..%v %v..%v", g.Approve[0], g.Approve[30], g.Reject[0], g.Reject[50])
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestGrid_Validate(t *testing.T) {
	bad := []Grid{
		{Approve: nil, Reject: []float64{0.5}},
		{Approve: []float64{0.1}, Reject: nil},
		{Approve: []float64{0.2, 0.1}, Reject: []float64{0.5}},
		{Approve: []float64{0.1, 0.1}, Reject: []float64{0.5}},
		{Approve: []float64{0.1}, Reject: []float64{0.5, 1.5}},
		{Approve: []float64{math.NaN()}, Reject: []float64{0.5}},
	}
	for _, g := range bad {
		if err := g.Validate(); !errors.Is(err, ErrInvalidGrid) {
			t.Fatalf("%+v: err=%v want ErrInvalidGrid", g, err)
		}
	}
}

func TestOptimize_Scenario(t *testing.T) {
	res, err := Optimize(context.Background(), scenarioLabels, scenarioScores, DefaultCostSchedule(), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Cost != 2 {
		t.Fatalf("cost=%v want=2", res.Cost)
	}
	// the winner sits in the first grid row that approves 0.2
	if res.Pair.Approve <= 0.2 || res.Pair.Approve > 0.21+1e-9 {
		t.Fatalf("t_approve=%v want first row above 0.2", res.Pair.Approve)
	}
	want := []Decision{Approve, Approve, Review, Reject, Reject}
	for i, s := range scenarioScores {
		if got := Decide(s, res.Pair); got != want[i] {
			t.Fatalf("pair %+v: Decide(%v)=%s want=%s", res.Pair, s, got, want[i])
		}
	}
	if res.Evaluated == 0 || res.Feasible != res.Evaluated {
		t.Fatalf("evaluated=%d feasible=%d", res.Evaluated, res.Feasible)
	}
	cost, err := TotalCost(scenarioLabels, scenarioScores, res.Pair, DefaultCostSchedule())
	if err != nil || cost != res.Cost {
		t.Fatalf("recomputed cost=%v err=%v want=%v", cost, err, res.Cost)
	}
}

func TestOptimize_ReviewCap(t *testing.T) {
	res, err := Optimize(context.Background(), scenarioLabels, scenarioScores, DefaultCostSchedule(), ptr(0))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// 0.6 can no longer be reviewed; rejecting it costs one good rejected
	if res.Cost != 10 {
		t.Fatalf("cost=%v want=10", res.Cost)
	}
	out, err := Outcomes(scenarioLabels, scenarioScores, res.Pair, DefaultCostSchedule())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if out.ReviewRate != 0 {
		t.Fatalf("review_rate=%v want=0", out.ReviewRate)
	}
	if res.Feasible >= res.Evaluated {
		t.Fatalf("feasible=%d evaluated=%d want fewer feasible", res.Feasible, res.Evaluated)
	}
}

func TestOptimize_NoFeasiblePolicy(t *testing.T) {
	o := &Optimizer{
		Grid:          Grid{Approve: []float64{0.1}, Reject: []float64{0.9}},
		Costs:         DefaultCostSchedule(),
		MaxReviewRate: ptr(0),
	}
	_, err := o.Optimize(context.Background(), []int{0, 1}, []float64{0.5, 0.5})
	if !errors.Is(err, ErrNoFeasiblePolicy) {
		t.Fatalf("err=%v want ErrNoFeasiblePolicy", err)
	}

	// every t_reject at or below every t_approve
	o = &Optimizer{Grid: Grid{Approve: []float64{0.5, 0.6}, Reject: []float64{0.3, 0.5}}, Costs: DefaultCostSchedule()}
	_, err = o.Optimize(context.Background(), []int{0, 1}, []float64{0.2, 0.8})
	if !errors.Is(err, ErrNoFeasiblePolicy) {
		t.Fatalf("err=%v want ErrNoFeasiblePolicy", err)
	}
}

func TestOptimize_InvalidInputs(t *testing.T) {
	o := &Optimizer{Grid: DefaultGrid(), Costs: DefaultCostSchedule(), MaxReviewRate: ptr(1.5)}
	if _, err := o.Optimize(context.Background(), scenarioLabels, scenarioScores); err == nil {
		t.Fatalf("expected error for review cap above 1")
	}
	o = &Optimizer{Grid: Grid{}, Costs: DefaultCostSchedule()}
	if _, err := o.Optimize(context.Background(), scenarioLabels, scenarioScores); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("err=%v want ErrInvalidGrid", err)
	}
	o = &Optimizer{Grid: DefaultGrid(), Costs: CostSchedule{DefaultApproved: math.Inf(1)}}
	if _, err := o.Optimize(context.Background(), scenarioLabels, scenarioScores); !errors.Is(err, ErrInvalidCosts) {
		t.Fatalf("err=%v want ErrInvalidCosts", err)
	}
}

func TestOptimize_TieBreakKeepsFirstPair(t *testing.T) {
	// every pair approves everything at zero cost
	o := &Optimizer{
		Grid:    Grid{Approve: []float64{0.1, 0.2, 0.3}, Reject: []float64{0.15, 0.25, 0.5}},
		Costs:   DefaultCostSchedule(),
		Workers: 3,
	}
	res, err := o.Optimize(context.Background(), []int{0, 0, 1}, []float64{0, 0.01, 0.02})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := ThresholdPair{Approve: 0.1, Reject: 0.15}
	if res.Pair != want || res.Cost != 100 {
		t.Fatalf("result=%+v want pair=%+v cost=100", res, want)
	}
	if res.Evaluated != 3+2+1 {
		t.Fatalf("evaluated=%d want=6", res.Evaluated)
	}
}

func TestOptimize_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 2000
	labels := make([]int, n)
	scores := make([]float64, n)
	for i := range labels {
		scores[i] = math.Round(rng.Float64()*1000) / 1000
		if rng.Float64() < scores[i]*0.6 {
			labels[i] = 1
		}
	}
	var results []Result
	for _, workers := range []int{1, 4, 31} {
		o := &Optimizer{Grid: DefaultGrid(), Costs: DefaultCostSchedule(), MaxReviewRate: ptr(0.3), Workers: workers}
		res, err := o.Optimize(context.Background(), labels, scores)
		if err != nil {
			t.Fatalf("workers=%d err=%v", workers, err)
		}
		results = append(results, res)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("result %d=%+v differs from sequential %+v", i, results[i], results[0])
		}
	}
}

func TestOptimize_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Optimize(ctx, scenarioLabels, scenarioScores, DefaultCostSchedule(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestProperty_OptimizerIsGridMinimum(t *testing.T) {
	grid := Grid{
		Approve: []float64{0.05, 0.1, 0.2, 0.3},
		Reject:  []float64{0.2, 0.4, 0.6, 0.8},
	}
	properties := gopter.NewProperties(nil)

	properties.Property("no grid pair is cheaper than the selected one", prop.ForAll(
		func(scores []float64, flips []bool) bool {
			labels := toLabels(flips, len(scores))
			scores = scores[:len(labels)]
			o := &Optimizer{Grid: grid, Costs: DefaultCostSchedule(), Workers: 2}
			res, err := o.Optimize(context.Background(), labels, scores)
			if err != nil {
				return false
			}
			for _, ta := range grid.Approve {
				for _, tr := range grid.Reject {
					if tr <= ta {
						continue
					}
					c, err := TotalCost(labels, scores, ThresholdPair{Approve: ta, Reject: tr}, o.Costs)
					if err != nil || c < res.Cost {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.Float64Range(0, 1)),
		gen.SliceOfN(30, gen.Bool()),
	))

	properties.Property("raising a cost weight never lowers total cost", prop.ForAll(
		func(scores []float64, flips []bool, ta, width, bump float64) bool {
			labels := toLabels(flips, len(scores))
			scores = scores[:len(labels)]
			p := ThresholdPair{Approve: ta, Reject: math.Min(ta+width, 1)}
			base := DefaultCostSchedule()
			c0, err := TotalCost(labels, scores, p, base)
			if err != nil {
				return false
			}
			for _, raised := range []CostSchedule{
				{DefaultApproved: base.DefaultApproved + bump, GoodRejected: base.GoodRejected, Review: base.Review},
				{DefaultApproved: base.DefaultApproved, GoodRejected: base.GoodRejected + bump, Review: base.Review},
				{DefaultApproved: base.DefaultApproved, GoodRejected: base.GoodRejected, Review: base.Review + bump},
			} {
				c1, err := TotalCost(labels, scores, p, raised)
				if err != nil || c1 < c0 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Float64Range(0, 1)),
		gen.SliceOfN(20, gen.Bool()),
		gen.Float64Range(0, 0.5),
		gen.Float64Range(0.01, 0.5),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func toLabels(flips []bool, n int) []int {
	if len(flips) < n {
		n = len(flips)
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		if flips[i] {
			labels[i] = 1
		}
	}
	return labels
}
