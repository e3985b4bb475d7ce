package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"annoline/internal/domain"
	"annoline/internal/events"
	"annoline/internal/repo"
)

// ReviewOptions are parameters for a reviewer decision.
type ReviewOptions struct {
	AssignmentID int64
	ReviewerID   string
	Decision     domain.ReviewDecision
}

// ReviewQueue lists submitted assignments of a project, oldest submission first.
func (e Engine) ReviewQueue(ctx context.Context, projectID string) ([]domain.Assignment, error) {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return nil, lookupErr("project", projectID, err)
	}
	return e.Repo.SubmittedAssignments(ctx, projectID)
}

// ReviewAssignment approves or rejects a submitted assignment and re-evaluates
// its item. Approving work on an item flagged for review resolves the item
// with that assignment's labels.
func (e Engine) ReviewAssignment(ctx context.Context, opts ReviewOptions) (domain.Assignment, error) {
	if opts.ReviewerID == "" {
		return domain.Assignment{}, validationf("reviewer is required")
	}
	if _, err := domain.ParseReviewDecision(string(opts.Decision)); err != nil {
		return domain.Assignment{}, ValidationError{Msg: err.Error()}
	}
	a, err := e.Repo.GetAssignment(ctx, nil, opts.AssignmentID)
	if err != nil {
		return domain.Assignment{}, lookupErr("assignment", opts.AssignmentID, err)
	}
	if a.AnnotatorID == opts.ReviewerID {
		return domain.Assignment{}, UnauthorizedError{Msg: "reviewers cannot review their own assignments"}
	}
	if a.Status != domain.AssignmentSubmitted {
		return domain.Assignment{}, validationf("assignment %d is %s; only submitted work can be reviewed", a.ID, a.Status)
	}
	to := domain.AssignmentCompleted
	if opts.Decision == domain.ReviewReject {
		to = domain.AssignmentRejected
	}

	unlock := e.locks.lock(a.DataItemID)
	defer unlock()
	var (
		ev      evaluation
		current domain.Assignment
	)
	err = e.withRetry(ctx, "review", func() error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			now := e.timestamp()
			reviewer := opts.ReviewerID
			if err := e.Repo.CloseAssignment(ctx, tx, a.ID, to, now, &reviewer); err != nil {
				if errors.Is(err, repo.ErrStale) {
					return validationf("assignment %d was already reviewed", a.ID)
				}
				return fmt.Errorf("review assignment %d: %w", a.ID, err)
			}
			if err := e.Events.Append(ctx, tx, events.AssignmentReviewed, a.ProjectID, "assignment", strconv.FormatInt(a.ID, 10), opts.ReviewerID,
				events.EventPayload{"decision": opts.Decision, "data_item_id": a.DataItemID}); err != nil {
				return err
			}
			var err error
			if opts.Decision == domain.ReviewApprove {
				ev, err = e.resolveFlaggedTx(ctx, tx, a, opts.ReviewerID)
			} else {
				ev, err = e.evaluateTx(ctx, tx, a.DataItemID, opts.ReviewerID)
			}
			if err != nil {
				return err
			}
			current, err = e.Repo.GetAssignment(ctx, tx, a.ID)
			return err
		})
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	e.metrics().Reviewed(string(opts.Decision))
	e.record(ev)
	e.logger().Info("assignment reviewed", "assignment_id", a.ID, "reviewer", opts.ReviewerID, "decision", opts.Decision)
	return current, nil
}

// resolveFlaggedTx closes an item flagged for review with the approved
// assignment's labels. Items in any other state go through the evaluator.
func (e Engine) resolveFlaggedTx(ctx context.Context, tx *sql.Tx, approved domain.Assignment, reviewerID string) (evaluation, error) {
	item, err := e.Repo.GetDataItem(ctx, tx, approved.DataItemID)
	if err != nil {
		return evaluation{}, lookupErr("data item", approved.DataItemID, err)
	}
	if item.Status != domain.ItemDone || !item.NeedsReview {
		return e.evaluateTx(ctx, tx, item.ID, reviewerID)
	}
	anns, err := e.Repo.ListAnnotations(ctx, tx, approved.ID)
	if err != nil {
		return evaluation{}, err
	}
	return e.applyVerdict(ctx, tx, item, verdict{
		Status:     domain.ItemDone,
		Resolution: domain.ResolutionReviewed,
		Labels:     NormalizeLabels(anns),
	}, reviewerID)
}
