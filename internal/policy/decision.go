package policy

import (
	"fmt"
	"math"
)

type Decision string

const (
	Approve Decision = "APPROVE"
	Review  Decision = "REVIEW"
	Reject  Decision = "REJECT"
)

// ThresholdPair splits [0,1] into Approve [0,t_approve), Review [t_approve,t_reject)
// and Reject [t_reject,1].
type ThresholdPair struct {
	Approve float64 `json:"t_approve"`
	Reject  float64 `json:"t_reject"`
}

func (p ThresholdPair) Validate() error {
	if math.IsNaN(p.Approve) || math.IsNaN(p.Reject) {
		return fmt.Errorf("%w: got t_approve=%v t_reject=%v", ErrInvalidThresholds, p.Approve, p.Reject)
	}
	if p.Approve < 0 || p.Reject > 1 || p.Reject <= p.Approve {
		return fmt.Errorf("%w: got t_approve=%v t_reject=%v", ErrInvalidThresholds, p.Approve, p.Reject)
	}
	return nil
}

// Decide maps a probability of default to a decision. It is the single decision rule
// shared by offline evaluation and the serving API, and it is safe for concurrent use.
func Decide(score float64, p ThresholdPair) Decision {
	if score < p.Approve {
		return Approve
	}
	if score < p.Reject {
		return Review
	}
	return Reject
}
