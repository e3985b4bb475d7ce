package auth

import (
	"context"
	"fmt"
	"slices"

	"annoline/internal/config"
	"annoline/internal/repo"
)

// ForbiddenError indicates a missing project permission.
type ForbiddenError struct {
	ProjectID  string
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required on project %s", e.Permission, e.ProjectID)
}

// ErrorKind classifies the error like any other ownership violation.
func (ForbiddenError) ErrorKind() string { return "unauthorized" }

// Service resolves project membership roles into permissions using the rbac config.
type Service struct {
	Repo   repo.Repo
	Config *config.Config
}

func (s Service) Roles(ctx context.Context, projectID, actorID string) ([]string, error) {
	return s.Repo.MemberRoles(ctx, nil, projectID, actorID)
}

func (s Service) Permissions(ctx context.Context, projectID, actorID string) ([]string, error) {
	roles, err := s.Roles(ctx, projectID, actorID)
	if err != nil {
		return nil, err
	}
	return s.Config.RolePermissions(roles), nil
}

func (s Service) HasPermission(ctx context.Context, projectID, actorID, perm string) (bool, error) {
	perms, err := s.Permissions(ctx, projectID, actorID)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, perm), nil
}

// Require fails with ForbiddenError unless the actor holds perm in the project.
func (s Service) Require(ctx context.Context, projectID, actorID, perm string) error {
	ok, err := s.HasPermission(ctx, projectID, actorID, perm)
	if err != nil {
		return fmt.Errorf("resolve permissions: %w", err)
	}
	if !ok {
		return ForbiddenError{ProjectID: projectID, Permission: perm}
	}
	return nil
}
