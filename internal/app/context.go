package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"annoline/internal/config"
	"annoline/internal/db"
	"annoline/internal/engine"
	"annoline/internal/metrics"
	"annoline/internal/migrate"
	"annoline/internal/repo"
)

// Env is an opened workspace: migrated database, config and engine.
type Env struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
}

// Options tune Open. Zero values use the engine defaults.
type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Collector
}

// Open prepares the workspace directory, reads annoline.yml (defaults when
// absent), opens and migrates the database and builds an engine over it.
func Open(ctx context.Context, workspace string, opts Options) (*Env, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if opts.Logger != nil {
		e.Logger = opts.Logger
	}
	if opts.Metrics != nil {
		e.Metrics = opts.Metrics
	}
	return &Env{Workspace: workspace, DB: conn, Config: cfg, Engine: e}, nil
}

func (env *Env) Close() error {
	return env.DB.Close()
}

// ResolveProject picks the project a command works on: the override when
// given, otherwise the only project in the workspace.
func ResolveProject(ctx context.Context, r repo.Repo, override string) (string, error) {
	if override != "" {
		if _, err := r.GetProject(ctx, nil, override); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("project %s not found", override)
			}
			return "", err
		}
		return override, nil
	}
	p, err := r.SingleProject(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("no project in workspace; create one with al project create")
		}
		return "", err
	}
	return p.ID, nil
}
