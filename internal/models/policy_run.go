package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PolicyRun is one offline threshold selection: the deployed pair, the costs it was
// chosen under and the test-split outcome.
type PolicyRun struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"type:varchar(36);not null;uniqueIndex"`
	Model string `gorm:"type:varchar(100);not null;index"`

	TApprove      decimal.Decimal  `gorm:"column:t_approve;type:numeric(10,6);not null"`
	TReject       decimal.Decimal  `gorm:"column:t_reject;type:numeric(10,6);not null"`
	MaxReviewRate *decimal.Decimal `gorm:"type:numeric(10,6)"`

	CostDefaultApproved decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CostGoodRejected    decimal.Decimal `gorm:"type:numeric(20,6);not null"`
	CostReview          decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	ValidationCost decimal.Decimal `gorm:"type:numeric(30,6);not null"`
	TestCost       decimal.Decimal `gorm:"type:numeric(30,6);not null"`
	NTest          int             `gorm:"column:n_test;not null"`
	ApproveRate    float64         `gorm:"not null"`
	ReviewRate     float64         `gorm:"not null"`
	RejectRate     float64         `gorm:"not null"`
	TestROCAUC     float64         `gorm:"column:test_roc_auc"`

	Report      datatypes.JSON `gorm:"type:jsonb"`
	Leaderboard datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PolicyRun) TableName() string {
	return "policy_runs"
}
