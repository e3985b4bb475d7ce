package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"annoline/internal/config"
	"annoline/internal/domain"
	"annoline/internal/engine"
	"annoline/internal/repo"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectBody struct {
	Body domain.Project `json:"body"`
}

func (a handlers) registerProjects(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectBody, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := a.e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:                 input.Body.ID,
			Name:               input.Body.Name,
			Description:        input.Body.Description,
			MaxAssignments:     input.Body.MaxAssignments,
			ConsensusThreshold: input.Body.ConsensusThreshold,
			LabelClasses:       labelClasses(input.Body.LabelClasses),
			ActorID:            principal.ActorID,
		})
		if err != nil {
			return nil, a.fail(ctx, "create-project", err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		list, err := a.e.ListProjects(ctx)
		if err != nil {
			return nil, a.fail(ctx, "list-projects", err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project with its label classes",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*projectBody, error) {
		p, err := a.e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, a.fail(ctx, "get-project", err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "configure-consensus",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/consensus",
		Summary:     "Set redundancy and consensus threshold",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                    `path:"project_id"`
		Body      ConfigureConsensusRequest `json:"body"`
	}) (*projectBody, error) {
		actor, err := a.require(ctx, input.ProjectID, config.PermProjectConfigure)
		if err != nil {
			return nil, a.fail(ctx, "configure-consensus", err)
		}
		p, err := a.e.ConfigureConsensus(ctx, input.ProjectID, input.Body.MaxAssignments, input.Body.ConsensusThreshold, actor)
		if err != nil {
			return nil, a.fail(ctx, "configure-consensus", err)
		}
		return &projectBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Item and assignment counts for a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.ProjectProgress `json:"body"`
	}, error) {
		progress, err := a.e.ProjectProgress(ctx, input.ProjectID)
		if err != nil {
			return nil, a.fail(ctx, "project-progress", err)
		}
		return &struct {
			Body domain.ProjectProgress `json:"body"`
		}{Body: progress}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "load-items",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/items",
		Summary:       "Load data items",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      LoadItemsRequest `json:"body"`
	}) (*struct {
		Body LoadItemsResponse `json:"body"`
	}, error) {
		actor, err := a.require(ctx, input.ProjectID, config.PermItemsLoad)
		if err != nil {
			return nil, a.fail(ctx, "load-items", err)
		}
		inputs, err := itemInputs(input.Body.Items)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid item payload", nil)
		}
		items, err := a.e.LoadDataItems(ctx, input.ProjectID, inputs, actor)
		if err != nil {
			return nil, a.fail(ctx, "load-items", err)
		}
		return &struct {
			Body LoadItemsResponse `json:"body"`
		}{Body: LoadItemsResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/items",
		Summary:     "List data items",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		Status      string `query:"status"`
		NeedsReview bool   `query:"needs_review"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.DataItem `json:"body"`
	}, error) {
		f := repo.ItemFilter{ProjectID: input.ProjectID, Status: input.Status, Limit: normalizeLimit(input.Limit)}
		if input.NeedsReview {
			flagged := true
			f.NeedsReview = &flagged
		}
		items, err := a.e.ListDataItems(ctx, f)
		if err != nil {
			return nil, a.fail(ctx, "list-items", err)
		}
		return &struct {
			Body []domain.DataItem `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Grant a project role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.ProjectMember `json:"body"`
	}, error) {
		actor, err := a.require(ctx, input.ProjectID, config.PermMembersManage)
		if err != nil {
			return nil, a.fail(ctx, "add-member", err)
		}
		m, err := a.e.AddMember(ctx, input.ProjectID, input.Body.ActorID, input.Body.Role, actor)
		if err != nil {
			return nil, a.fail(ctx, "add-member", err)
		}
		return &struct {
			Body domain.ProjectMember `json:"body"`
		}{Body: m}, nil
	})
}
