package metrics

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// labelledScores draws n scores in [0,1] and forces both classes into the labels.
func labelledScores(scores []float64, flips []bool) ([]int, []float64) {
	n := len(scores)
	if len(flips) < n {
		n = len(flips)
	}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		if flips[i] {
			labels[i] = 1
		}
	}
	if n >= 2 {
		labels[0], labels[1] = 0, 1
	}
	return labels, scores[:n]
}

func TestProperty_MetricRanges(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every metric stays in its mathematical range", prop.ForAll(
		func(scores []float64, flips []bool) bool {
			labels, scores := labelledScores(scores, flips)
			if len(labels) < 2 {
				return true
			}
			r, err := Evaluate(labels, scores)
			if err != nil {
				return false
			}
			in01 := func(v float64) bool { return v >= 0 && v <= 1+1e-12 }
			return in01(r.ROCAUC) && in01(r.PRAUC) && in01(r.Brier) && in01(r.KS) && in01(r.ECE10) && r.LogLoss >= 0
		},
		gen.SliceOfN(64, gen.Float64Range(0, 1)),
		gen.SliceOfN(64, gen.Bool()),
	))

	properties.Property("roc_auc of negated ordering is the complement", prop.ForAll(
		func(scores []float64, flips []bool) bool {
			labels, scores := labelledScores(scores, flips)
			if len(labels) < 2 {
				return true
			}
			mirrored := make([]float64, len(scores))
			for i, s := range scores {
				mirrored[i] = 1 - s
			}
			a, err := ROCAUC(labels, scores)
			if err != nil {
				return false
			}
			b, err := ROCAUC(labels, mirrored)
			if err != nil {
				return false
			}
			return almostEqual(a+b, 1, 1e-9)
		},
		gen.SliceOfN(40, gen.Float64Range(0, 1)),
		gen.SliceOfN(40, gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
