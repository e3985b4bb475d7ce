package domain

import "encoding/json"

type Project struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Description        string       `json:"description,omitempty"`
	Status             string       `json:"status"`
	MaxAssignments     int          `json:"max_assignments"`
	ConsensusThreshold int          `json:"consensus_threshold"`
	LabelClasses       []LabelClass `json:"label_classes,omitempty"`
	CreatedAt          string       `json:"created_at" format:"date-time"`
}

type LabelClass struct {
	ID          int64  `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

type DataItem struct {
	ID              int64           `json:"id"`
	ProjectID       string          `json:"project_id"`
	ExternalRef     string          `json:"external_ref,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Status          DataItemStatus  `json:"status" enum:"pending,in_progress,done"`
	Resolution      Resolution      `json:"resolution,omitempty" enum:"consensus,no_consensus,reviewed"`
	ConsensusLabels []string        `json:"consensus_labels,omitempty"`
	NeedsReview     bool            `json:"needs_review"`
	Version         int64           `json:"version"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

type Assignment struct {
	ID               int64            `json:"id"`
	ProjectID        string           `json:"project_id"`
	DataItemID       int64            `json:"data_item_id"`
	AnnotatorID      string           `json:"annotator_id"`
	Status           AssignmentStatus `json:"status" enum:"assigned,submitted,completed,rejected"`
	AssignedAt       string           `json:"assigned_at" format:"date-time"`
	SubmittedAt      *string          `json:"submitted_at,omitempty" format:"date-time"`
	CompletedAt      *string          `json:"completed_at,omitempty" format:"date-time"`
	ReviewedBy       *string          `json:"reviewed_by,omitempty"`
	LabelFingerprint *string          `json:"label_fingerprint,omitempty"`
	Annotations      []Annotation     `json:"annotations,omitempty"`
}

// Annotation is a single label attached to a submitted assignment.
type Annotation struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value,omitempty"`
}

// TaskSummary is one row of an annotator's task list.
type TaskSummary struct {
	AssignmentID int64            `json:"assignment_id"`
	ProjectID    string           `json:"project_id"`
	DataItemID   int64            `json:"data_item_id"`
	ExternalRef  string           `json:"external_ref,omitempty"`
	Status       AssignmentStatus `json:"status"`
	AssignedAt   string           `json:"assigned_at" format:"date-time"`
	SubmittedAt  *string          `json:"submitted_at,omitempty" format:"date-time"`
}

// TaskDetail is an assignment with everything needed to label it.
type TaskDetail struct {
	Assignment   Assignment   `json:"assignment"`
	DataItem     DataItem     `json:"data_item"`
	LabelClasses []LabelClass `json:"label_classes"`
}

type AnnotatorStats struct {
	AnnotatorID string `json:"annotator_id"`
	Assigned    int    `json:"assigned"`
	Submitted   int    `json:"submitted"`
	Completed   int    `json:"completed"`
	Rejected    int    `json:"rejected"`
	Total       int    `json:"total"`
}

type ProjectProgress struct {
	ProjectID   string         `json:"project_id"`
	ItemCounts  map[string]int `json:"item_counts"`
	Flagged     int            `json:"flagged"`
	Assignments map[string]int `json:"assignment_counts"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role"`
}
