package gormrepository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"creditpolicy/internal/models"
	"creditpolicy/internal/repository"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return New(gdb), mock
}

func TestInsertPolicyRun(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO "policy_runs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	run := &models.PolicyRun{
		RunID:               "2b1f0f7e-7a55-4a43-9f43-54b5b8a0e3f1",
		Model:               "calibrated_histgb",
		TApprove:            decimal.NewFromFloat(0.21),
		TReject:             decimal.NewFromFloat(0.61),
		CostDefaultApproved: decimal.NewFromInt(100),
		CostGoodRejected:    decimal.NewFromInt(10),
		CostReview:          decimal.NewFromInt(2),
		ValidationCost:      decimal.NewFromInt(2),
		TestCost:            decimal.NewFromInt(4),
		NTest:               5,
		Report:              datatypes.JSON(`{"run_id":"x"}`),
		Leaderboard:         datatypes.JSON(`[]`),
	}
	if err := store.InsertPolicyRun(context.Background(), run); err != nil {
		t.Fatalf("err=%v", err)
	}
	if run.ID != 7 {
		t.Fatalf("id=%d want=7", run.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListAndCountPolicyRuns(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "policy_runs" WHERE model = \$1 ORDER BY test_cost asc`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "run_id", "model", "t_approve", "t_reject", "created_at"}).
			AddRow(2, "run-b", "logreg", "0.2", "0.6", created).
			AddRow(1, "run-a", "logreg", "0.15", "0.55", created))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "policy_runs" WHERE model = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	model := "logreg"
	asc := true
	params := repository.ListPolicyRunsParams{Model: &model, OrderBy: "test_cost", Asc: &asc, Limit: 10}
	items, err := store.ListPolicyRuns(context.Background(), params)
	if err != nil {
		t.Fatalf("list err=%v", err)
	}
	if len(items) != 2 || items[0].RunID != "run-b" || !items[0].TApprove.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("items=%+v", items)
	}
	total, err := store.CountPolicyRuns(context.Background(), params)
	if err != nil || total != 2 {
		t.Fatalf("total=%d err=%v", total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPolicyRuns_UnknownOrderFallsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "policy_runs" ORDER BY created_at desc`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.ListPolicyRuns(context.Background(), repository.ListPolicyRunsParams{OrderBy: "id; DROP TABLE policy_runs"})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetPolicyRun_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "policy_runs" WHERE run_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	item, err := store.GetPolicyRun(context.Background(), "missing")
	if err != nil || item != nil {
		t.Fatalf("item=%v err=%v want nil/nil", item, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	if err := s.InsertPolicyRun(context.Background(), &models.PolicyRun{}); err != nil {
		t.Fatalf("err=%v", err)
	}
	if items, err := s.ListPolicyRuns(context.Background(), repository.ListPolicyRunsParams{}); err != nil || items != nil {
		t.Fatalf("items=%v err=%v", items, err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 50},
		{-3, 50},
		{20, 20},
		{900, 500},
	}
	for _, tt := range tests {
		if got := normalizeLimit(tt.in, 50); got != tt.want {
			t.Fatalf("normalizeLimit(%d)=%d want=%d", tt.in, got, tt.want)
		}
	}
}
