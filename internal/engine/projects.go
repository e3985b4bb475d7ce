package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"annoline/internal/domain"
	"annoline/internal/events"
	"annoline/internal/repo"
)

// validateConsensusConfig enforces max >= 1 and 1 <= threshold <= max.
func validateConsensusConfig(maxAssignments, threshold int) error {
	if maxAssignments < 1 {
		return errors.New("max_assignments must be at least 1")
	}
	if threshold < 1 {
		return errors.New("consensus_threshold must be configured (at least 1)")
	}
	if threshold > maxAssignments {
		return fmt.Errorf("consensus_threshold %d exceeds max_assignments %d", threshold, maxAssignments)
	}
	return nil
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID                 string
	Name               string
	Description        string
	MaxAssignments     int
	ConsensusThreshold int
	LabelClasses       []domain.LabelClass
	ActorID            string
}

// CreateProject stores a project with its label taxonomy. Zero redundancy
// settings take the configured defaults. The creator becomes its manager.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.Project{}, validationf("name is required")
	}
	if opts.MaxAssignments == 0 {
		opts.MaxAssignments = e.Config.Defaults.MaxAssignments
	}
	if opts.ConsensusThreshold == 0 {
		opts.ConsensusThreshold = e.Config.Defaults.ConsensusThreshold
	}
	if err := validateConsensusConfig(opts.MaxAssignments, opts.ConsensusThreshold); err != nil {
		return domain.Project{}, ValidationError{Msg: err.Error()}
	}
	seen := map[string]bool{}
	for _, lc := range opts.LabelClasses {
		name := strings.ToLower(strings.TrimSpace(lc.Name))
		if name == "" {
			return domain.Project{}, validationf("label class name is required")
		}
		if seen[name] {
			return domain.Project{}, validationf("duplicate label class %q", lc.Name)
		}
		seen[name] = true
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := e.Repo.GetProject(ctx, nil, id); err == nil {
		return domain.Project{}, validationf("project %s already exists", id)
	}
	// The lookup above is advisory; the primary key decides concurrent creates.

	now := e.timestamp()
	p := domain.Project{
		ID:                 id,
		Name:               opts.Name,
		Description:        opts.Description,
		Status:             "active",
		MaxAssignments:     opts.MaxAssignments,
		ConsensusThreshold: opts.ConsensusThreshold,
		CreatedAt:          now,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			if errors.Is(err, repo.ErrExists) {
				return validationf("project %s already exists", id)
			}
			return fmt.Errorf("insert project: %w", err)
		}
		for _, lc := range opts.LabelClasses {
			lc.ProjectID = p.ID
			lc.Name = strings.TrimSpace(lc.Name)
			lcID, err := e.Repo.InsertLabelClass(ctx, tx, lc)
			if err != nil {
				return fmt.Errorf("insert label class %s: %w", lc.Name, err)
			}
			lc.ID = lcID
			p.LabelClasses = append(p.LabelClasses, lc)
		}
		if opts.ActorID != "" {
			if err := e.Repo.EnsureActor(ctx, tx, opts.ActorID, now); err != nil {
				return err
			}
			if err := e.Repo.AddMember(ctx, tx, p.ID, opts.ActorID, RoleManager); err != nil {
				return err
			}
		}
		return e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
			"max_assignments":     p.MaxAssignments,
			"consensus_threshold": p.ConsensusThreshold,
			"label_classes":       len(p.LabelClasses),
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.logger().Info("project created", "project_id", p.ID, "max_assignments", p.MaxAssignments, "consensus_threshold", p.ConsensusThreshold)
	return p, nil
}

// ConfigureConsensus replaces a project's redundancy settings and re-evaluates
// every item that is not done yet under the new settings.
func (e Engine) ConfigureConsensus(ctx context.Context, projectID string, maxAssignments, threshold int, actorID string) (domain.Project, error) {
	if err := validateConsensusConfig(maxAssignments, threshold); err != nil {
		return domain.Project{}, ValidationError{Msg: err.Error()}
	}
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return domain.Project{}, lookupErr("project", projectID, err)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateConsensus(ctx, tx, projectID, maxAssignments, threshold); err != nil {
			return fmt.Errorf("update project %s: %w", projectID, err)
		}
		return e.Events.Append(ctx, tx, events.ProjectConfigured, projectID, "project", projectID, actorID, events.EventPayload{
			"max_assignments":     maxAssignments,
			"consensus_threshold": threshold,
			"previous":            map[string]int{"max_assignments": p.MaxAssignments, "consensus_threshold": p.ConsensusThreshold},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	ids, err := e.Repo.OpenItemIDs(ctx, projectID)
	if err != nil {
		return domain.Project{}, fmt.Errorf("list open items: %w", err)
	}
	for _, id := range ids {
		if _, err := e.Evaluate(ctx, id, actorID); err != nil {
			return domain.Project{}, fmt.Errorf("re-evaluate item %d: %w", id, err)
		}
	}
	return e.GetProject(ctx, projectID)
}

// GetProject returns a project with its label classes.
func (e Engine) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, nil, projectID)
	if err != nil {
		return domain.Project{}, lookupErr("project", projectID, err)
	}
	p.LabelClasses, err = e.Repo.ListLabelClasses(ctx, nil, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return e.Repo.ListProjects(ctx)
}

// DataItemInput is one item to load.
type DataItemInput struct {
	ExternalRef string          `json:"external_ref,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// LoadDataItems appends pending items to a project in the given order.
func (e Engine) LoadDataItems(ctx context.Context, projectID string, items []DataItemInput, actorID string) ([]domain.DataItem, error) {
	if len(items) == 0 {
		return nil, validationf("at least one data item is required")
	}
	for i, in := range items {
		if len(in.Payload) > 0 && !json.Valid(in.Payload) {
			return nil, validationf("item %d: payload is not valid JSON", i)
		}
	}
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return nil, lookupErr("project", projectID, err)
	}
	now := e.timestamp()
	var out []domain.DataItem
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		out = out[:0]
		for _, in := range items {
			it := domain.DataItem{
				ProjectID:   projectID,
				ExternalRef: strings.TrimSpace(in.ExternalRef),
				Payload:     in.Payload,
				Status:      domain.ItemPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			id, err := e.Repo.InsertDataItem(ctx, tx, it)
			if err != nil {
				return fmt.Errorf("insert data item: %w", err)
			}
			it.ID = id
			out = append(out, it)
		}
		return e.Events.Append(ctx, tx, events.ItemsLoaded, projectID, "project", projectID, actorID, events.EventPayload{
			"count":    len(out),
			"first_id": strconv.FormatInt(out[0].ID, 10),
		})
	})
	if err != nil {
		return nil, err
	}
	e.logger().Info("data items loaded", "project_id", projectID, "count", len(out))
	return out, nil
}

// Project roles granted through membership.
const (
	RoleManager   = "manager"
	RoleReviewer  = "reviewer"
	RoleAnnotator = "annotator"
)

// AddMember grants an actor a project role defined in the rbac config.
func (e Engine) AddMember(ctx context.Context, projectID, memberID, role, actorID string) (domain.ProjectMember, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return domain.ProjectMember{}, validationf("actor_id is required")
	}
	if !e.Config.HasRole(role) {
		return domain.ProjectMember{}, validationf("unknown role %q", role)
	}
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return domain.ProjectMember{}, lookupErr("project", projectID, err)
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.EnsureActor(ctx, tx, memberID, e.timestamp()); err != nil {
			return err
		}
		if err := e.Repo.AddMember(ctx, tx, projectID, memberID, role); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.MemberAdded, projectID, "actor", memberID, actorID, events.EventPayload{"role": role})
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	return domain.ProjectMember{ProjectID: projectID, ActorID: memberID, Role: role}, nil
}
