package auth_test

import (
	"context"
	"errors"
	"testing"

	"annoline/internal/config"
	"annoline/internal/db"
	"annoline/internal/engine"
	"annoline/internal/engine/auth"
	"annoline/internal/migrate"
)

func TestRequireResolvesMembershipRoles(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	eng := engine.New(conn, cfg)
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "p1", Name: "Birds", ActorID: "lead"}); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddMember(ctx, "p1", "rita", engine.RoleReviewer, "lead"); err != nil {
		t.Fatal(err)
	}

	svc := auth.Service{Repo: eng.Repo, Config: cfg}
	if err := svc.Require(ctx, "p1", "lead", config.PermItemsLoad); err != nil {
		t.Fatalf("manager should load items: %v", err)
	}
	if err := svc.Require(ctx, "p1", "rita", config.PermAssignmentReview); err != nil {
		t.Fatalf("reviewer should review: %v", err)
	}
	err = svc.Require(ctx, "p1", "rita", config.PermItemsLoad)
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != config.PermItemsLoad {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if engine.Kind(err) != engine.KindUnauthorized {
		t.Fatalf("forbidden should classify as unauthorized, got %s", engine.Kind(err))
	}
	if err := svc.Require(ctx, "p1", "stranger", config.PermEventsRead); err == nil {
		t.Fatal("non-member should be forbidden")
	}
}
