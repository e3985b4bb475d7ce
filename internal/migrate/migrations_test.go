package migrate_test

import (
	"context"
	"testing"

	"annoline/internal/db"
	"annoline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if v, err := migrate.Current(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh db version = %d, err %v", v, err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	current, err := migrate.Current(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if current != latest {
		t.Fatalf("current %d != latest %d", current, latest)
	}
}

func TestConsensusColumnDefaults(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO projects(id,name,created_at) VALUES ('legacy','Legacy','2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var threshold, maxAssignments int
	if err := conn.QueryRowContext(ctx, `SELECT consensus_threshold, max_assignments FROM projects WHERE id='legacy'`).Scan(&threshold, &maxAssignments); err != nil {
		t.Fatalf("select: %v", err)
	}
	if threshold != 0 || maxAssignments != 1 {
		t.Fatalf("defaults threshold=%d max=%d", threshold, maxAssignments)
	}
}
