package engine

import (
	"context"
	"fmt"

	"annoline/internal/domain"
	"annoline/internal/repo"
)

// GetMyTasks lists an annotator's assignments, newest first. An empty
// projectID spans all projects; status filters when set.
func (e Engine) GetMyTasks(ctx context.Context, projectID, annotatorID, status string) ([]domain.TaskSummary, error) {
	if annotatorID == "" {
		return nil, validationf("annotator_id is required")
	}
	if status != "" {
		if _, err := domain.ParseAssignmentStatus(status); err != nil {
			return nil, ValidationError{Msg: err.Error()}
		}
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilter{ProjectID: projectID, AnnotatorID: annotatorID, Status: status})
}

// GetTaskDetail returns an assignment with its item and the project taxonomy.
// Assignments of other annotators are reported as not found.
func (e Engine) GetTaskDetail(ctx context.Context, assignmentID int64, annotatorID string) (domain.TaskDetail, error) {
	a, err := e.Repo.GetAssignment(ctx, nil, assignmentID)
	if err != nil {
		return domain.TaskDetail{}, lookupErr("assignment", assignmentID, err)
	}
	if a.AnnotatorID != annotatorID {
		return domain.TaskDetail{}, NotFoundError{Entity: "assignment", ID: fmt.Sprint(assignmentID)}
	}
	if a.Annotations, err = e.Repo.ListAnnotations(ctx, nil, a.ID); err != nil {
		return domain.TaskDetail{}, err
	}
	item, err := e.Repo.GetDataItem(ctx, nil, a.DataItemID)
	if err != nil {
		return domain.TaskDetail{}, lookupErr("data item", a.DataItemID, err)
	}
	classes, err := e.Repo.ListLabelClasses(ctx, nil, a.ProjectID)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	if classes == nil {
		classes = []domain.LabelClass{}
	}
	return domain.TaskDetail{Assignment: a, DataItem: item, LabelClasses: classes}, nil
}

// GetAnnotatorStats counts an annotator's assignments by status.
func (e Engine) GetAnnotatorStats(ctx context.Context, annotatorID string) (domain.AnnotatorStats, error) {
	if annotatorID == "" {
		return domain.AnnotatorStats{}, validationf("annotator_id is required")
	}
	counts, err := e.Repo.AssignmentCounts(ctx, "", annotatorID)
	if err != nil {
		return domain.AnnotatorStats{}, err
	}
	st := domain.AnnotatorStats{
		AnnotatorID: annotatorID,
		Assigned:    counts[string(domain.AssignmentAssigned)],
		Submitted:   counts[string(domain.AssignmentSubmitted)],
		Completed:   counts[string(domain.AssignmentCompleted)],
		Rejected:    counts[string(domain.AssignmentRejected)],
	}
	st.Total = st.Assigned + st.Submitted + st.Completed + st.Rejected
	return st, nil
}

// ProjectProgress summarizes item and assignment states of a project.
func (e Engine) ProjectProgress(ctx context.Context, projectID string) (domain.ProjectProgress, error) {
	if _, err := e.Repo.GetProject(ctx, nil, projectID); err != nil {
		return domain.ProjectProgress{}, lookupErr("project", projectID, err)
	}
	items, flagged, err := e.Repo.ItemCounts(ctx, projectID)
	if err != nil {
		return domain.ProjectProgress{}, err
	}
	assignments, err := e.Repo.AssignmentCounts(ctx, projectID, "")
	if err != nil {
		return domain.ProjectProgress{}, err
	}
	return domain.ProjectProgress{ProjectID: projectID, ItemCounts: items, Flagged: flagged, Assignments: assignments}, nil
}

// ListDataItems lists a project's items in insertion order.
func (e Engine) ListDataItems(ctx context.Context, f repo.ItemFilter) ([]domain.DataItem, error) {
	if f.Status != "" {
		if _, err := domain.ParseDataItemStatus(f.Status); err != nil {
			return nil, ValidationError{Msg: err.Error()}
		}
	}
	if _, err := e.Repo.GetProject(ctx, nil, f.ProjectID); err != nil {
		return nil, lookupErr("project", f.ProjectID, err)
	}
	return e.Repo.ListDataItems(ctx, f)
}

// ListEvents returns the audit log of a project.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, f)
}
