package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"annoline/internal/domain"
	"annoline/internal/events"
	"annoline/internal/repo"
)

// SubmitOptions are parameters for submitting labels.
type SubmitOptions struct {
	AnnotatorID  string
	AssignmentID int64
	Labels       []domain.Annotation
}

// SubmitTask stores the annotator's labels, moves the assignment to submitted
// and re-evaluates the data item in the same transaction.
func (e Engine) SubmitTask(ctx context.Context, opts SubmitOptions) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, nil, opts.AssignmentID)
	if err != nil {
		return domain.Assignment{}, lookupErr("assignment", opts.AssignmentID, err)
	}
	if a.AnnotatorID != opts.AnnotatorID {
		return domain.Assignment{}, UnauthorizedError{Msg: fmt.Sprintf("assignment %d belongs to another annotator", a.ID)}
	}
	if err := checkSubmittable(a); err != nil {
		return domain.Assignment{}, err
	}
	labels := NormalizeLabels(opts.Labels)
	if len(labels) == 0 {
		return domain.Assignment{}, validationf("at least one label is required")
	}
	if err := e.checkTaxonomy(ctx, a.ProjectID, labels); err != nil {
		return domain.Assignment{}, err
	}
	fp := Fingerprint(labels)
	anns := make([]domain.Annotation, 0, len(opts.Labels))
	for _, l := range opts.Labels {
		if strings.TrimSpace(l.Label) == "" {
			continue
		}
		anns = append(anns, domain.Annotation{Label: strings.TrimSpace(l.Label), Value: l.Value})
	}

	unlock := e.locks.lock(a.DataItemID)
	defer unlock()
	var (
		ev      evaluation
		current domain.Assignment
	)
	err = e.withRetry(ctx, "submit", func() error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			now := e.timestamp()
			if err := e.Repo.MarkSubmitted(ctx, tx, a.ID, now, fp); err != nil {
				if errors.Is(err, repo.ErrStale) {
					// Lost a race with another submit of the same assignment.
					latest, gerr := e.Repo.GetAssignment(ctx, tx, a.ID)
					if gerr != nil {
						return gerr
					}
					return checkSubmittable(latest)
				}
				return fmt.Errorf("submit assignment %d: %w", a.ID, err)
			}
			if err := e.Repo.InsertAnnotations(ctx, tx, a.ID, anns, now); err != nil {
				return fmt.Errorf("store annotations: %w", err)
			}
			if err := e.Events.Append(ctx, tx, events.AssignmentSubmit, a.ProjectID, "assignment", strconv.FormatInt(a.ID, 10), opts.AnnotatorID,
				events.EventPayload{"data_item_id": a.DataItemID, "labels": labels, "fingerprint": fp}); err != nil {
				return err
			}
			var err error
			if ev, err = e.evaluateTx(ctx, tx, a.DataItemID, opts.AnnotatorID); err != nil {
				return err
			}
			current, err = e.Repo.GetAssignment(ctx, tx, a.ID)
			return err
		})
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	current.Annotations = anns
	e.metrics().SubmissionRecorded()
	e.record(ev)
	e.logger().Debug("assignment submitted", "assignment_id", a.ID, "data_item_id", a.DataItemID, "status", current.Status)
	return current, nil
}

func checkSubmittable(a domain.Assignment) error {
	if a.Status != domain.AssignmentAssigned {
		return validationf("assignment %d is already %s", a.ID, a.Status)
	}
	return nil
}

// checkTaxonomy rejects labels outside the project's label classes. Projects
// without label classes accept any label.
func (e Engine) checkTaxonomy(ctx context.Context, projectID string, labels []string) error {
	classes, err := e.Repo.ListLabelClasses(ctx, nil, projectID)
	if err != nil {
		return fmt.Errorf("load label classes: %w", err)
	}
	if len(classes) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		known[strings.ToLower(strings.TrimSpace(c.Name))] = struct{}{}
	}
	for _, l := range labels {
		if _, ok := known[l]; !ok {
			return validationf("label %q is not defined for project %s", l, projectID)
		}
	}
	return nil
}
