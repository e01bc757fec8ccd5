package pgconn

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq" // postgres driver
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/leadpipe/config"
)

const pingAttempts = 3

// ConnectDB opens a pooled postgres handle and verifies it answers.
func ConnectDB(cfg config.DataSourceConfig) (*sql.DB, error) {
	if cfg.Dns == "" {
		return nil, errors.New("data source DNS is required")
	}

	db, err := sql.Open("postgres", cfg.Dns)
	if err != nil {
		return nil, err
	}
	ApplyPoolSettings(db, cfg)

	if err := Ping(context.Background(), db); err != nil {
		logrus.Errorf("database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	logrus.Info("database connection established ✅")
	return db, nil
}

// ApplyPoolSettings copies the configured pool limits onto db. Zero values keep
// the driver defaults.
func ApplyPoolSettings(db *sql.DB, cfg config.DataSourceConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// Ping retries a few times with a short exponential backoff.
func Ping(ctx context.Context, db *sql.DB) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	return backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(b, pingAttempts-1), ctx))
}
