package annolinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal annoline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Assignment is one annotator's attempt at one data item.
type Assignment struct {
	ID          int64        `json:"id"`
	ProjectID   string       `json:"project_id"`
	DataItemID  int64        `json:"data_item_id"`
	AnnotatorID string       `json:"annotator_id"`
	Status      string       `json:"status"`
	AssignedAt  string       `json:"assigned_at"`
	SubmittedAt string       `json:"submitted_at,omitempty"`
	CompletedAt string       `json:"completed_at,omitempty"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation is a single submitted label.
type Annotation struct {
	Label string `json:"label"`
	Value any    `json:"value,omitempty"`
}

// DataItem is the API data item model.
type DataItem struct {
	ID              int64          `json:"id"`
	ProjectID       string         `json:"project_id"`
	ExternalRef     string         `json:"external_ref,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
	Status          string         `json:"status"`
	Resolution      string         `json:"resolution,omitempty"`
	ConsensusLabels []string       `json:"consensus_labels,omitempty"`
	NeedsReview     bool           `json:"needs_review"`
}

// LabelClass is one entry of a project taxonomy.
type LabelClass struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// TaskSummary is one row of GET /tasks/mine.
type TaskSummary struct {
	AssignmentID int64  `json:"assignment_id"`
	ProjectID    string `json:"project_id"`
	DataItemID   int64  `json:"data_item_id"`
	ExternalRef  string `json:"external_ref,omitempty"`
	Status       string `json:"status"`
	AssignedAt   string `json:"assigned_at"`
}

// TaskDetail is an assignment with its item and taxonomy.
type TaskDetail struct {
	Assignment   Assignment   `json:"assignment"`
	DataItem     DataItem     `json:"data_item"`
	LabelClasses []LabelClass `json:"label_classes"`
}

// SubmitResult is the assignment after submission and its re-evaluated item.
type SubmitResult struct {
	Assignment Assignment `json:"assignment"`
	DataItem   DataItem   `json:"data_item"`
}

// Stats counts an annotator's assignments by status.
type Stats struct {
	Assigned  int `json:"assigned"`
	Submitted int `json:"submitted"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`
	Total     int `json:"total"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// AssignTasks pulls up to quantity items. An empty annotatorID assigns to the caller.
func (c *Client) AssignTasks(ctx context.Context, projectID, annotatorID string, quantity int) ([]Assignment, error) {
	body := map[string]any{"project_id": projectID, "quantity": quantity}
	if annotatorID != "" {
		body["annotator_id"] = annotatorID
	}
	var resp struct {
		Assignments []Assignment `json:"assignments"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/assign", body, &resp)
	return resp.Assignments, err
}

// MyTasks lists the caller's assignments; empty filters are ignored.
func (c *Client) MyTasks(ctx context.Context, projectID, status string) ([]TaskSummary, error) {
	q := url.Values{}
	if projectID != "" {
		q.Set("project_id", projectID)
	}
	if status != "" {
		q.Set("status", status)
	}
	endpoint := "tasks/mine"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []TaskSummary
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Task fetches one of the caller's assignments.
func (c *Client) Task(ctx context.Context, assignmentID int64) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", assignmentID), nil, &resp)
	return resp, err
}

// Submit sends labels for an assignment.
func (c *Client) Submit(ctx context.Context, assignmentID int64, labels ...string) (SubmitResult, error) {
	anns := make([]Annotation, 0, len(labels))
	for _, l := range labels {
		anns = append(anns, Annotation{Label: l})
	}
	var resp SubmitResult
	err := c.do(ctx, http.MethodPost, "tasks/submit", map[string]any{"assignment_id": assignmentID, "labels": anns}, &resp)
	return resp, err
}

// Stats returns the caller's assignment counts.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "tasks/stats", nil, &resp)
	return resp, err
}

// Review approves or rejects a submitted assignment.
func (c *Client) Review(ctx context.Context, assignmentID int64, decision string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("assignments/%d/review", assignmentID), map[string]any{"decision": decision}, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing for a project.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("projects/%s/events", url.PathEscape(projectID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
