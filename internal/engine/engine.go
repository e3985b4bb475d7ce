package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"annoline/internal/config"
	"annoline/internal/events"
	"annoline/internal/logging"
	"annoline/internal/metrics"
	"annoline/internal/repo"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Logger  *slog.Logger
	Metrics metrics.Collector
	Now     func() time.Time

	locks *itemLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{Now: time.Now},
		Config:  cfg,
		Logger:  logging.Discard(),
		Metrics: metrics.NewNop(),
		Now:     time.Now,
		locks:   newItemLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(timeLayout)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) metrics() metrics.Collector {
	if e.Metrics != nil {
		return e.Metrics
	}
	return metrics.NewNop()
}

// inTx runs fn inside one write transaction and commits when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
