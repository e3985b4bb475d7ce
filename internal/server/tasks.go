package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"annoline/internal/config"
	"annoline/internal/domain"
	"annoline/internal/engine"
	"annoline/internal/repo"
)

func (a handlers) registerTasks(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-tasks",
		Method:      http.MethodPost,
		Path:        "/tasks/assign",
		Summary:     "Pull data items for an annotator",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body AssignTasksRequest `json:"body"`
	}) (*struct {
		Body AssignTasksResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		annotator := strings.TrimSpace(input.Body.AnnotatorID)
		if annotator == "" {
			annotator = principal.ActorID
		}
		if annotator != principal.ActorID {
			if _, err := a.require(ctx, input.Body.ProjectID, config.PermTaskAssignOthers); err != nil {
				return nil, a.fail(ctx, "assign-tasks", err)
			}
		}
		created, err := a.e.AssignTasks(ctx, engine.AssignOptions{
			ProjectID:   input.Body.ProjectID,
			AnnotatorID: annotator,
			Quantity:    input.Body.Quantity,
			ActorID:     principal.ActorID,
		})
		if err != nil {
			return nil, a.fail(ctx, "assign-tasks", err)
		}
		resp := AssignTasksResponse{AssignmentIDs: []int64{}, Assignments: nonNilSlice(created)}
		for _, as := range created {
			resp.AssignmentIDs = append(resp.AssignmentIDs, as.ID)
		}
		return &struct {
			Body AssignTasksResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks/mine",
		Summary:     "List the caller's assignments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Status    string `query:"status"`
	}) (*struct {
		Body []domain.TaskSummary `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := a.e.GetMyTasks(ctx, input.ProjectID, principal.ActorID, input.Status)
		if err != nil {
			return nil, a.fail(ctx, "my-tasks", err)
		}
		return &struct {
			Body []domain.TaskSummary `json:"body"`
		}{Body: nonNilSlice(tasks)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-stats",
		Method:      http.MethodGet,
		Path:        "/tasks/stats",
		Summary:     "Assignment counts for the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.AnnotatorStats `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stats, err := a.e.GetAnnotatorStats(ctx, principal.ActorID)
		if err != nil {
			return nil, a.fail(ctx, "task-stats", err)
		}
		return &struct {
			Body domain.AnnotatorStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-detail",
		Method:      http.MethodGet,
		Path:        "/tasks/{assignment_id}",
		Summary:     "Get an assignment with its data item and taxonomy",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssignmentID int64 `path:"assignment_id"`
	}) (*struct {
		Body domain.TaskDetail `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := a.e.GetTaskDetail(ctx, input.AssignmentID, principal.ActorID)
		if err != nil {
			return nil, a.fail(ctx, "task-detail", err)
		}
		return &struct {
			Body domain.TaskDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-task",
		Method:      http.MethodPost,
		Path:        "/tasks/submit",
		Summary:     "Submit labels for an assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body SubmitTaskRequest `json:"body"`
	}) (*struct {
		Body SubmitTaskResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		anns, err := annotations(input.Body.Labels)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid label value", nil)
		}
		as, err := a.e.SubmitTask(ctx, engine.SubmitOptions{
			AnnotatorID:  principal.ActorID,
			AssignmentID: input.Body.AssignmentID,
			Labels:       anns,
		})
		if err != nil {
			return nil, a.fail(ctx, "submit-task", err)
		}
		item, err := a.e.Repo.GetDataItem(ctx, nil, as.DataItemID)
		if err != nil {
			return nil, a.fail(ctx, "submit-task", err)
		}
		return &struct {
			Body SubmitTaskResponse `json:"body"`
		}{Body: SubmitTaskResponse{Assignment: as, DataItem: item}}, nil
	})
}

func (a handlers) registerReview(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "review-queue",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/review-queue",
		Summary:     "Submitted assignments awaiting review",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Assignment `json:"body"`
	}, error) {
		if _, err := a.require(ctx, input.ProjectID, config.PermAssignmentReview); err != nil {
			return nil, a.fail(ctx, "review-queue", err)
		}
		queue, err := a.e.ReviewQueue(ctx, input.ProjectID)
		if err != nil {
			return nil, a.fail(ctx, "review-queue", err)
		}
		return &struct {
			Body []domain.Assignment `json:"body"`
		}{Body: nonNilSlice(queue)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/review",
		Summary:     "Approve or reject a submitted assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssignmentID int64         `path:"assignment_id"`
		Body         ReviewRequest `json:"body"`
	}) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		as, err := a.e.Repo.GetAssignment(ctx, nil, input.AssignmentID)
		if errors.Is(err, repo.ErrNotFound) {
			err = engine.NotFoundError{Entity: "assignment", ID: strconv.FormatInt(input.AssignmentID, 10)}
		}
		if err != nil {
			return nil, a.fail(ctx, "review-assignment", err)
		}
		reviewer, err := a.require(ctx, as.ProjectID, config.PermAssignmentReview)
		if err != nil {
			return nil, a.fail(ctx, "review-assignment", err)
		}
		reviewed, err := a.e.ReviewAssignment(ctx, engine.ReviewOptions{
			AssignmentID: input.AssignmentID,
			ReviewerID:   reviewer,
			Decision:     domain.ReviewDecision(input.Body.Decision),
		})
		if err != nil {
			return nil, a.fail(ctx, "review-assignment", err)
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: reviewed}, nil
	})
}
