package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"annoline/internal/config"
	"annoline/internal/db"
	"annoline/internal/domain"
	"annoline/internal/engine"
	"annoline/internal/migrate"
)

type hookRecorder struct {
	mu       sync.Mutex
	failures int
	got      []webhookEvent
	headers  []http.Header
	bodies   [][]byte
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		http.Error(w, "try later", http.StatusServiceUnavailable)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.got = append(h.got, evt)
	h.headers = append(h.headers, r.Header.Clone())
	h.bodies = append(h.bodies, body)
	w.WriteHeader(http.StatusNoContent)
}

func newWebhookEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, config.Default())
}

// resolveOne creates a threshold-1 project and resolves its only item.
func resolveOne(t *testing.T, e engine.Engine, projectID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: projectID, Name: projectID, MaxAssignments: 1, ConsensusThreshold: 1, ActorID: "lead"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := e.LoadDataItems(ctx, projectID, []engine.DataItemInput{{ExternalRef: "a", Payload: json.RawMessage(`{}`)}}, "lead"); err != nil {
		t.Fatalf("load items: %v", err)
	}
	as, err := e.AssignTasks(ctx, engine.AssignOptions{ProjectID: projectID, AnnotatorID: "ann", Quantity: 1})
	if err != nil || len(as) != 1 {
		t.Fatalf("assign: %v (%d)", err, len(as))
	}
	if _, err := e.SubmitTask(ctx, engine.SubmitOptions{AnnotatorID: "ann", AssignmentID: as[0].ID, Labels: []domain.Annotation{{Label: "cat"}}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestWebhookDeliversMatchingEvents(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)
	resolveOne(t, e, "before")

	rec := &hookRecorder{}
	hookSrv := httptest.NewServer(rec)
	defer hookSrv.Close()

	d := newWebhookDispatcher(e.Repo, []config.WebhookConfig{{
		URL:    hookSrv.URL,
		Events: []string{"item.resolved", "item.flagged"},
		Secret: "s3cret",
	}}, nil)
	d.dispatchAll(ctx)

	resolveOne(t, e, "after")
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.got) != 1 {
		t.Fatalf("expected 1 delivery, got %d: %+v", len(rec.got), rec.got)
	}
	evt := rec.got[0]
	if evt.Type != "item.resolved" || evt.ProjectID != "after" {
		t.Fatalf("unexpected event %+v", evt)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil || payload["resolution"] != "consensus" {
		t.Fatalf("unexpected payload %s (%v)", evt.Payload, err)
	}
	h := rec.headers[0]
	if h.Get("X-Annoline-Event") != "item.resolved" || h.Get("X-Annoline-Project") != "after" {
		t.Fatalf("unexpected headers %v", h)
	}
	if want := "sha256=" + signPayload("s3cret", rec.bodies[0]); h.Get("X-Annoline-Signature") != want {
		t.Fatalf("signature mismatch: %s", h.Get("X-Annoline-Signature"))
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	ctx := context.Background()
	e := newWebhookEngine(t)

	rec := &hookRecorder{failures: 1}
	hookSrv := httptest.NewServer(rec)
	defer hookSrv.Close()

	d := newWebhookDispatcher(e.Repo, []config.WebhookConfig{
		{URL: hookSrv.URL, Events: []string{"project.created"}, Project: "p2"},
		{URL: hookSrv.URL, Enabled: new(bool)},
	}, nil)
	d.dispatchAll(ctx)
	resolveOne(t, e, "p1")
	resolveOne(t, e, "p2")

	d.dispatchAll(ctx)
	rec.mu.Lock()
	if len(rec.got) != 0 {
		t.Fatalf("expected failed first delivery, got %+v", rec.got)
	}
	rec.mu.Unlock()

	d.dispatchAll(ctx)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.got) != 1 || rec.got[0].ProjectID != "p2" || rec.got[0].Type != "project.created" {
		t.Fatalf("expected redelivery of p2 project.created, got %+v", rec.got)
	}
}
