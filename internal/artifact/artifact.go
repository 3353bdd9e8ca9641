package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"creditpolicy/internal/metrics"
	"creditpolicy/internal/policy"
)

var (
	ErrInvalidArtifact = errors.New("artifact: invalid threshold artifact")
	ErrNotFound        = errors.New("artifact: not found")
)

// ThresholdArtifact is the durable output of a policy run and the only policy input
// of the serving process.
type ThresholdArtifact struct {
	TApprove      float64             `json:"t_approve"`
	TReject       float64             `json:"t_reject"`
	CostSchedule  policy.CostSchedule `json:"cost_schedule"`
	MaxReviewRate *float64            `json:"max_review_rate"`
	SourceModel   string              `json:"source_model_identifier"`
	RunID         string              `json:"run_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func (a ThresholdArtifact) Pair() policy.ThresholdPair {
	return policy.ThresholdPair{Approve: a.TApprove, Reject: a.TReject}
}

func (a ThresholdArtifact) Validate() error {
	if err := a.Pair().Validate(); err != nil {
		return err
	}
	if err := a.CostSchedule.Validate(); err != nil {
		return err
	}
	if a.MaxReviewRate != nil {
		v := *a.MaxReviewRate
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: max_review_rate=%v outside [0,1]", ErrInvalidArtifact, v)
		}
	}
	if strings.TrimSpace(a.SourceModel) == "" {
		return fmt.Errorf("%w: source_model_identifier is required", ErrInvalidArtifact)
	}
	return nil
}

func Encode(a ThresholdArtifact) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return json.MarshalIndent(a, "", "  ")
}

// Decode parses and validates an artifact. Both cutoffs must be present; a missing
// key is not read as zero.
func Decode(data []byte) (ThresholdArtifact, error) {
	var raw struct {
		TApprove *float64 `json:"t_approve"`
		TReject  *float64 `json:"t_reject"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ThresholdArtifact{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if raw.TApprove == nil || raw.TReject == nil {
		return ThresholdArtifact{}, fmt.Errorf("%w: t_approve and t_reject are required", ErrInvalidArtifact)
	}
	var a ThresholdArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return ThresholdArtifact{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return ThresholdArtifact{}, err
	}
	return a, nil
}

// SearchSummary describes the threshold search on the validation split.
type SearchSummary struct {
	Cost           float64 `json:"cost"`
	N              int     `json:"n_total"`
	PairsEvaluated int     `json:"pairs_evaluated"`
	PairsFeasible  int     `json:"pairs_feasible"`
}

// Report is the human-facing summary written next to the artifact.
type Report struct {
	RunID         string               `json:"run_id"`
	CreatedAt     time.Time            `json:"created_at"`
	Model         string               `json:"model"`
	Thresholds    policy.ThresholdPair `json:"thresholds"`
	CostSchedule  policy.CostSchedule  `json:"cost_schedule"`
	MaxReviewRate *float64             `json:"max_review_rate"`
	Validation    SearchSummary        `json:"validation"`
	TestPolicy    policy.Outcome       `json:"test_policy"`
	TestMetrics   *metrics.Report      `json:"test_metrics"`
	Leaderboard   []metrics.Entry      `json:"leaderboard"`
}
