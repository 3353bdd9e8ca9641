package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"creditpolicy/internal/models"
	"creditpolicy/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertPolicyRun(ctx context.Context, item *models.PolicyRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetPolicyRun(ctx context.Context, runID string) (*models.PolicyRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if strings.TrimSpace(runID) == "" {
		return nil, nil
	}
	var item models.PolicyRun
	err := s.db.WithContext(ctx).
		Model(&models.PolicyRun{}).
		Where("run_id = ?", strings.TrimSpace(runID)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPolicyRuns(ctx context.Context, params repository.ListPolicyRunsParams) ([]models.PolicyRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPolicyRunFilters(s.db.WithContext(ctx).Model(&models.PolicyRun{}), params)
	query = applyOrder(query, policyRunOrderColumn(params.OrderBy), params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var items []models.PolicyRun
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPolicyRuns(ctx context.Context, params repository.ListPolicyRunsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	err := applyPolicyRunFilters(s.db.WithContext(ctx).Model(&models.PolicyRun{}), params).Count(&total).Error
	return total, err
}

func applyPolicyRunFilters(query *gorm.DB, params repository.ListPolicyRunsParams) *gorm.DB {
	if params.Model != nil && strings.TrimSpace(*params.Model) != "" {
		query = query.Where("model = ?", strings.TrimSpace(*params.Model))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	return query
}

// policyRunOrderColumn maps a public sort key to a column; unknown keys fall back
// to the default order.
func policyRunOrderColumn(key string) string {
	switch strings.TrimSpace(strings.ToLower(key)) {
	case "created_at":
		return "created_at"
	case "test_cost":
		return "test_cost"
	case "validation_cost":
		return "validation_cost"
	case "review_rate":
		return "review_rate"
	case "test_roc_auc":
		return "test_roc_auc"
	}
	return ""
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
