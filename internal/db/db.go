package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"creditpolicy/internal/config"
)

// ErrNoDSN is returned when the run history store is not configured.
var ErrNoDSN = errors.New("db: dsn is empty")

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func Open(cfg config.DBConfig) (*DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, ErrNoDSN
	}
	return OpenDialector(postgres.Open(cfg.DSN), cfg)
}

// OpenDialector opens gorm on an arbitrary dialector and applies the pool settings.
func OpenDialector(dialector gorm.Dialector, cfg config.DBConfig) (*DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(ctx context.Context, db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.SQL.PingContext(ctx)
}

// SetTimezone sets the session time zone. Only IANA names accepted by
// time.LoadLocation are passed to the server.
func SetTimezone(ctx context.Context, db *DB, tz string) error {
	if db == nil || db.SQL == nil || tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil || strings.ContainsRune(tz, '\'') {
		return fmt.Errorf("db: invalid timezone %q", tz)
	}
	_, err := db.SQL.ExecContext(ctx, "SET TIME ZONE '"+tz+"'")
	return err
}
