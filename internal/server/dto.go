package server

import (
	"encoding/json"

	"annoline/internal/domain"
	"annoline/internal/engine"
)

// Request payloads

type LabelClassRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type CreateProjectRequest struct {
	ID                 string              `json:"id,omitempty"`
	Name               string              `json:"name"`
	Description        string              `json:"description,omitempty"`
	MaxAssignments     int                 `json:"max_assignments,omitempty" minimum:"0"`
	ConsensusThreshold int                 `json:"consensus_threshold,omitempty" minimum:"0"`
	LabelClasses       []LabelClassRequest `json:"label_classes,omitempty"`
}

type ConfigureConsensusRequest struct {
	MaxAssignments     int `json:"max_assignments"`
	ConsensusThreshold int `json:"consensus_threshold"`
}

type LoadItemsRequest struct {
	Items []ItemInput `json:"items"`
}

type ItemInput struct {
	ExternalRef string         `json:"external_ref,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role"`
}

type AssignTasksRequest struct {
	ProjectID   string `json:"project_id"`
	AnnotatorID string `json:"annotator_id,omitempty" doc:"Defaults to the caller"`
	Quantity    int    `json:"quantity"`
}

type LabelInput struct {
	Label string `json:"label"`
	Value any    `json:"value,omitempty"`
}

type SubmitTaskRequest struct {
	AssignmentID int64        `json:"assignment_id"`
	Labels       []LabelInput `json:"labels"`
}

type ReviewRequest struct {
	Decision string `json:"decision" enum:"approve,reject"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type AssignTasksResponse struct {
	AssignmentIDs []int64             `json:"assignment_ids"`
	Assignments   []domain.Assignment `json:"assignments"`
}

type SubmitTaskResponse struct {
	Assignment domain.Assignment `json:"assignment"`
	DataItem   domain.DataItem   `json:"data_item"`
}

type LoadItemsResponse struct {
	Items []domain.DataItem `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID      string              `json:"actor_id"`
	Source       string              `json:"source"`
	Permissions  []string            `json:"permissions"`
	ProjectRoles map[string][]string `json:"project_roles"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func eventResponse(evt domain.Event) EventResponse {
	out := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &out.Payload)
	}
	return out
}

func labelClasses(in []LabelClassRequest) []domain.LabelClass {
	out := make([]domain.LabelClass, 0, len(in))
	for _, lc := range in {
		out = append(out, domain.LabelClass{Name: lc.Name, Color: lc.Color, Description: lc.Description})
	}
	return out
}

func itemInputs(in []ItemInput) ([]engine.DataItemInput, error) {
	out := make([]engine.DataItemInput, 0, len(in))
	for _, it := range in {
		var payload json.RawMessage
		if it.Payload != nil {
			data, err := json.Marshal(it.Payload)
			if err != nil {
				return nil, err
			}
			payload = data
		}
		out = append(out, engine.DataItemInput{ExternalRef: it.ExternalRef, Payload: payload})
	}
	return out, nil
}

func annotations(in []LabelInput) ([]domain.Annotation, error) {
	out := make([]domain.Annotation, 0, len(in))
	for _, l := range in {
		ann := domain.Annotation{Label: l.Label}
		if l.Value != nil {
			data, err := json.Marshal(l.Value)
			if err != nil {
				return nil, err
			}
			ann.Value = data
		}
		out = append(out, ann)
	}
	return out, nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
