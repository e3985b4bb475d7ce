package engine

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"annoline/internal/domain"
	"annoline/internal/events"
)

// AssignOptions are parameters for pulling work.
type AssignOptions struct {
	ProjectID   string
	AnnotatorID string
	Quantity    int
	// ActorID is who asked; it defaults to the annotator.
	ActorID string
}

// AssignTasks hands up to Quantity eligible items to the annotator. Items are
// taken in insertion order; fewer eligible items than requested is not an error.
func (e Engine) AssignTasks(ctx context.Context, opts AssignOptions) ([]domain.Assignment, error) {
	opts.AnnotatorID = strings.TrimSpace(opts.AnnotatorID)
	if opts.AnnotatorID == "" {
		return nil, validationf("annotator_id is required")
	}
	if opts.Quantity <= 0 {
		return nil, validationf("quantity must be positive")
	}
	if limit := e.Config.Allocation.MaxQuantity; limit > 0 && opts.Quantity > limit {
		return nil, validationf("quantity must not exceed %d", limit)
	}
	if opts.ActorID == "" {
		opts.ActorID = opts.AnnotatorID
	}
	p, err := e.Repo.GetProject(ctx, nil, opts.ProjectID)
	if err != nil {
		return nil, lookupErr("project", opts.ProjectID, err)
	}
	if err := validateConsensusConfig(p.MaxAssignments, p.ConsensusThreshold); err != nil {
		return nil, validationf("project %s is not ready for allocation: %s", p.ID, err)
	}

	start := time.Now()
	var (
		created []domain.Assignment
		evals   []evaluation
	)
	err = e.withRetry(ctx, "assign", func() error {
		created, evals = nil, nil
		return e.inTx(ctx, func(tx *sql.Tx) error {
			if err := e.Repo.EnsureActor(ctx, tx, opts.AnnotatorID, e.timestamp()); err != nil {
				return err
			}
			ids, err := e.Repo.CandidateItems(ctx, tx, p.ID, opts.AnnotatorID, p.MaxAssignments, opts.Quantity)
			if err != nil {
				return err
			}
			for _, itemID := range ids {
				a := domain.Assignment{
					ProjectID:   p.ID,
					DataItemID:  itemID,
					AnnotatorID: opts.AnnotatorID,
					Status:      domain.AssignmentAssigned,
					AssignedAt:  e.timestamp(),
				}
				id, ok, err := e.Repo.InsertAssignmentIfFree(ctx, tx, a, p.MaxAssignments)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				a.ID = id
				if err := e.Events.Append(ctx, tx, events.AssignmentCreated, p.ID, "assignment", strconv.FormatInt(id, 10), opts.ActorID,
					events.EventPayload{"data_item_id": itemID, "annotator_id": opts.AnnotatorID}); err != nil {
					return err
				}
				ev, err := e.evaluateTx(ctx, tx, itemID, opts.ActorID)
				if err != nil {
					return err
				}
				created = append(created, a)
				evals = append(evals, ev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range evals {
		e.record(ev)
	}
	e.metrics().AssignmentsCreated(len(created))
	e.metrics().AllocationLatency(time.Since(start).Seconds())
	e.logger().Info("tasks assigned",
		"project_id", p.ID,
		"annotator_id", opts.AnnotatorID,
		"requested", opts.Quantity,
		"assigned", len(created),
	)
	return created, nil
}
