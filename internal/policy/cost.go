package policy

import (
	"fmt"
	"math"

	"creditpolicy/internal/sample"
)

// CostSchedule prices the three kinds of policy error.
type CostSchedule struct {
	// DefaultApproved is charged per approved subject who defaults.
	DefaultApproved float64 `json:"default_approved" mapstructure:"default_approved"`
	// GoodRejected is charged per rejected subject who does not default.
	GoodRejected float64 `json:"good_rejected" mapstructure:"good_rejected"`
	// Review is a flat charge per case routed to manual review, whatever the label.
	Review float64 `json:"review" mapstructure:"review"`
}

func DefaultCostSchedule() CostSchedule {
	return CostSchedule{DefaultApproved: 100, GoodRejected: 10, Review: 2}
}

func (c CostSchedule) Validate() error {
	for _, v := range []float64{c.DefaultApproved, c.GoodRejected, c.Review} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: got %+v", ErrInvalidCosts, c)
		}
	}
	return nil
}

// Outcome summarises a threshold pair applied to a labelled sample. Per-bucket
// default rates are nil when the bucket is empty, which serialises to JSON null;
// a non-nil zero means the bucket has subjects and none of them defaulted.
type Outcome struct {
	N int `json:"n_total"`

	ApproveRate float64 `json:"approve_rate"`
	ReviewRate  float64 `json:"review_rate"`
	RejectRate  float64 `json:"reject_rate"`

	DefaultRateOverall  float64  `json:"default_rate_overall"`
	DefaultRateApproved *float64 `json:"default_rate_approved"`
	DefaultRateReview   *float64 `json:"default_rate_review"`
	DefaultRateReject   *float64 `json:"default_rate_reject"`

	NApproved int `json:"n_approved"`
	NReview   int `json:"n_review"`
	NReject   int `json:"n_reject"`

	TotalCost float64 `json:"total_cost"`
	TApprove  float64 `json:"t_approve"`
	TReject   float64 `json:"t_reject"`
}

func (o Outcome) Thresholds() ThresholdPair {
	return ThresholdPair{Approve: o.TApprove, Reject: o.TReject}
}

type tally struct {
	n       int
	approve int
	review  int
	reject  int

	defaultsApprove int
	defaultsReview  int
	defaultsReject  int
	goodsRejected   int
}

// count partitions the sample with Decide so the cost model and the serving path
// classify every score identically.
func count(labels []int, scores []float64, p ThresholdPair) tally {
	t := tally{n: len(scores)}
	for i, s := range scores {
		bad := labels[i] == 1
		switch Decide(s, p) {
		case Approve:
			t.approve++
			if bad {
				t.defaultsApprove++
			}
		case Review:
			t.review++
			if bad {
				t.defaultsReview++
			}
		default:
			t.reject++
			if bad {
				t.defaultsReject++
			} else {
				t.goodsRejected++
			}
		}
	}
	return t
}

func (t tally) reviewRate() float64 {
	return float64(t.review) / float64(t.n)
}

func (c CostSchedule) price(t tally) float64 {
	return c.DefaultApproved*float64(t.defaultsApprove) +
		c.GoodRejected*float64(t.goodsRejected) +
		c.Review*float64(t.review)
}

func checkInputs(labels []int, scores []float64, p ThresholdPair, c CostSchedule) error {
	if err := sample.Validate(labels, scores); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return c.Validate()
}

// TotalCost is the cost of applying p to the sample under schedule c.
func TotalCost(labels []int, scores []float64, p ThresholdPair, c CostSchedule) (float64, error) {
	if err := checkInputs(labels, scores, p, c); err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return c.price(count(labels, scores, p)), nil
}

// Outcomes reports bucket sizes, rates, observed default rates and cost for p.
func Outcomes(labels []int, scores []float64, p ThresholdPair, c CostSchedule) (Outcome, error) {
	if err := checkInputs(labels, scores, p, c); err != nil {
		return Outcome{}, fmt.Errorf("policy outcomes: %w", err)
	}
	t := count(labels, scores, p)
	n := float64(t.n)
	defaults := t.defaultsApprove + t.defaultsReview + t.defaultsReject
	return Outcome{
		N:                   t.n,
		ApproveRate:         float64(t.approve) / n,
		ReviewRate:          float64(t.review) / n,
		RejectRate:          float64(t.reject) / n,
		DefaultRateOverall:  float64(defaults) / n,
		DefaultRateApproved: bucketRate(t.defaultsApprove, t.approve),
		DefaultRateReview:   bucketRate(t.defaultsReview, t.review),
		DefaultRateReject:   bucketRate(t.defaultsReject, t.reject),
		NApproved:           t.approve,
		NReview:             t.review,
		NReject:             t.reject,
		TotalCost:           c.price(t),
		TApprove:            p.Approve,
		TReject:             p.Reject,
	}, nil
}

func bucketRate(defaults, size int) *float64 {
	if size == 0 {
		return nil
	}
	v := float64(defaults) / float64(size)
	return &v
}
