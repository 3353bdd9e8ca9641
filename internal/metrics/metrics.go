// Package metrics computes discrimination and calibration metrics for binary
// probability estimates. Every function is pure and deterministic; inputs are sorted
// internally so the result does not depend on the order of the observations.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"creditpolicy/internal/sample"
)

// LogLossEpsilon clamps probabilities into [eps, 1-eps] before taking logarithms.
const LogLossEpsilon = 1e-15

// DefaultECEBins is the bin count behind the ece_10bin metric.
const DefaultECEBins = 10

// Report is the fixed set of metrics used for model selection and sign-off.
type Report struct {
	ROCAUC  float64 `json:"roc_auc"`
	PRAUC   float64 `json:"pr_auc"`
	LogLoss float64 `json:"log_loss"`
	Brier   float64 `json:"brier"`
	KS      float64 `json:"ks"`
	ECE10   float64 `json:"ece_10bin"`
}

type observation struct {
	score float64
	label int
}

// sortedObservations returns observations ordered by score then label.
func sortedObservations(labels []int, scores []float64) []observation {
	obs := make([]observation, len(labels))
	for i := range labels {
		obs[i] = observation{score: scores[i], label: labels[i]}
	}
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].score != obs[j].score {
			return obs[i].score < obs[j].score
		}
		return obs[i].label < obs[j].label
	})
	return obs
}

// Evaluate computes the full Report. Both classes must be present.
func Evaluate(labels []int, scores []float64) (Report, error) {
	if err := sample.RequireBothClasses(labels, scores); err != nil {
		return Report{}, fmt.Errorf("evaluate: %w", err)
	}
	obs := sortedObservations(labels, scores)
	return Report{
		ROCAUC:  rocAUC(obs),
		PRAUC:   averagePrecision(obs),
		LogLoss: logLoss(obs),
		Brier:   brier(obs),
		KS:      ks(obs),
		ECE10:   ece(obs, DefaultECEBins),
	}, nil
}

// ROCAUC is the area under the ROC curve, computed from mid-ranks so tied scores
// count as half a correctly ordered pair.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if err := sample.RequireBothClasses(labels, scores); err != nil {
		return 0, fmt.Errorf("roc_auc: %w", err)
	}
	return rocAUC(sortedObservations(labels, scores)), nil
}

// PRAUC is average precision: the sum over distinct score thresholds (descending)
// of precision weighted by the recall increment.
func PRAUC(labels []int, scores []float64) (float64, error) {
	if err := sample.RequireBothClasses(labels, scores); err != nil {
		return 0, fmt.Errorf("pr_auc: %w", err)
	}
	return averagePrecision(sortedObservations(labels, scores)), nil
}

// LogLoss is the mean binary cross-entropy with probabilities clamped by LogLossEpsilon.
func LogLoss(labels []int, scores []float64) (float64, error) {
	if err := sample.Validate(labels, scores); err != nil {
		return 0, fmt.Errorf("log_loss: %w", err)
	}
	return logLoss(sortedObservations(labels, scores)), nil
}

// Brier is the mean squared difference between score and label.
func Brier(labels []int, scores []float64) (float64, error) {
	if err := sample.Validate(labels, scores); err != nil {
		return 0, fmt.Errorf("brier: %w", err)
	}
	return brier(sortedObservations(labels, scores)), nil
}

// KS is the Kolmogorov-Smirnov statistic: the largest gap between the cumulative
// score distributions of positives and negatives. An absent class contributes a
// curve that stays at zero.
func KS(labels []int, scores []float64) (float64, error) {
	if err := sample.Validate(labels, scores); err != nil {
		return 0, fmt.Errorf("ks: %w", err)
	}
	return ks(sortedObservations(labels, scores)), nil
}

// ECE is the expected calibration error over nBins equal-width bins on [0,1].
// Bins are [lo,hi) except the last, which also includes 1.0. Empty bins are skipped.
func ECE(labels []int, scores []float64, nBins int) (float64, error) {
	if err := sample.Validate(labels, scores); err != nil {
		return 0, fmt.Errorf("ece: %w", err)
	}
	if nBins <= 0 {
		return 0, fmt.Errorf("ece: bins=%d must be positive", nBins)
	}
	return ece(sortedObservations(labels, scores), nBins), nil
}

func rocAUC(obs []observation) float64 {
	var pos, neg float64
	var rankSumPos float64
	for i := 0; i < len(obs); {
		j := i
		for j < len(obs) && obs[j].score == obs[i].score {
			j++
		}
		// ranks i+1..j share their average
		avgRank := float64(i+1+j) / 2
		for k := i; k < j; k++ {
			if obs[k].label == 1 {
				pos++
				rankSumPos += avgRank
			} else {
				neg++
			}
		}
		i = j
	}
	return (rankSumPos - pos*(pos+1)/2) / (pos * neg)
}

func averagePrecision(obs []observation) float64 {
	var total float64
	for _, o := range obs {
		if o.label == 1 {
			total++
		}
	}
	var tp, fp, prevRecall, ap float64
	for j := len(obs) - 1; j >= 0; {
		i := j
		for i >= 0 && obs[i].score == obs[j].score {
			if obs[i].label == 1 {
				tp++
			} else {
				fp++
			}
			i--
		}
		recall := tp / total
		precision := tp / (tp + fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		j = i
	}
	return ap
}

func logLoss(obs []observation) float64 {
	var sum float64
	for _, o := range obs {
		p := math.Min(math.Max(o.score, LogLossEpsilon), 1-LogLossEpsilon)
		if o.label == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(obs))
}

func brier(obs []observation) float64 {
	var sum float64
	for _, o := range obs {
		d := o.score - float64(o.label)
		sum += d * d
	}
	return sum / float64(len(obs))
}

func ks(obs []observation) float64 {
	var pos, neg int
	for _, o := range obs {
		if o.label == 1 {
			pos++
		} else {
			neg++
		}
	}
	posDen := float64(max(pos, 1))
	negDen := float64(max(neg, 1))

	var cumPos, cumNeg int
	var best float64
	for i := 0; i < len(obs); {
		// tied scores move both curves together
		j := i
		for j < len(obs) && obs[j].score == obs[i].score {
			if obs[j].label == 1 {
				cumPos++
			} else {
				cumNeg++
			}
			j++
		}
		gap := math.Abs(float64(cumPos)/posDen - float64(cumNeg)/negDen)
		if gap > best {
			best = gap
		}
		i = j
	}
	return best
}

func ece(obs []observation, nBins int) float64 {
	edges := sample.Linspace(0, 1, nBins+1)
	total := float64(len(obs))
	var out float64
	for b := 0; b < nBins; b++ {
		lo, hi := edges[b], edges[b+1]
		last := b == nBins-1
		var n int
		var sumLabel, sumScore float64
		for _, o := range obs {
			if o.score < lo {
				continue
			}
			if o.score > hi || (!last && o.score == hi) {
				break
			}
			n++
			sumLabel += float64(o.label)
			sumScore += o.score
		}
		if n == 0 {
			continue
		}
		acc := sumLabel / float64(n)
		conf := sumScore / float64(n)
		out += float64(n) / total * math.Abs(acc-conf)
	}
	return out
}
