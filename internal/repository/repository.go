package repository

import (
	"context"
	"time"

	"creditpolicy/internal/models"
)

// PolicyRunRepository records offline policy runs.
type PolicyRunRepository interface {
	InsertPolicyRun(ctx context.Context, item *models.PolicyRun) error
	GetPolicyRun(ctx context.Context, runID string) (*models.PolicyRun, error)
	ListPolicyRuns(ctx context.Context, params ListPolicyRunsParams) ([]models.PolicyRun, error)
	CountPolicyRuns(ctx context.Context, params ListPolicyRunsParams) (int64, error)
}

type ListPolicyRunsParams struct {
	Limit   int
	Offset  int
	Model   *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}
