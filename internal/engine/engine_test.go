package engine_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"annoline/internal/config"
	"annoline/internal/db"
	"annoline/internal/domain"
	"annoline/internal/engine"
	"annoline/internal/migrate"
	"annoline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn))

	eng := engine.New(conn, config.Default())
	var tick atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Millisecond) }
	eng.Events.Now = eng.Now
	return testEnv{Engine: eng, Ctx: ctx}
}

// project creates a project with n items.
func (env testEnv) project(t *testing.T, id string, maxAssignments, threshold, n int, classes ...string) []domain.DataItem {
	t.Helper()
	var lcs []domain.LabelClass
	for _, c := range classes {
		lcs = append(lcs, domain.LabelClass{Name: c})
	}
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: id, Name: id, MaxAssignments: maxAssignments, ConsensusThreshold: threshold, LabelClasses: lcs, ActorID: "lead",
	})
	require.NoError(t, err)
	inputs := make([]engine.DataItemInput, n)
	for i := range inputs {
		inputs[i] = engine.DataItemInput{ExternalRef: id + "-" + string(rune('a'+i)), Payload: json.RawMessage(`{"url":"x"}`)}
	}
	items, err := env.Engine.LoadDataItems(env.Ctx, id, inputs, "lead")
	require.NoError(t, err)
	return items
}

func (env testEnv) assign(t *testing.T, projectID, annotator string, qty int) []domain.Assignment {
	t.Helper()
	as, err := env.Engine.AssignTasks(env.Ctx, engine.AssignOptions{ProjectID: projectID, AnnotatorID: annotator, Quantity: qty})
	require.NoError(t, err)
	return as
}

func (env testEnv) submit(t *testing.T, a domain.Assignment, labels ...string) domain.Assignment {
	t.Helper()
	var anns []domain.Annotation
	for _, l := range labels {
		anns = append(anns, domain.Annotation{Label: l})
	}
	out, err := env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: a.AnnotatorID, AssignmentID: a.ID, Labels: anns})
	require.NoError(t, err)
	return out
}

func (env testEnv) item(t *testing.T, id int64) domain.DataItem {
	t.Helper()
	it, err := env.Engine.Repo.GetDataItem(env.Ctx, nil, id)
	require.NoError(t, err)
	return it
}

func (env testEnv) assignment(t *testing.T, id int64) domain.Assignment {
	t.Helper()
	a, err := env.Engine.Repo.GetAssignment(env.Ctx, nil, id)
	require.NoError(t, err)
	return a
}

func TestAssignTasksValidation(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "p1", 1, 1, 1)

	cases := []engine.AssignOptions{
		{ProjectID: "p1", AnnotatorID: "ann", Quantity: 0},
		{ProjectID: "p1", AnnotatorID: "ann", Quantity: -1},
		{ProjectID: "p1", AnnotatorID: "  ", Quantity: 1},
		{ProjectID: "p1", AnnotatorID: "ann", Quantity: 101},
	}
	for _, opts := range cases {
		_, err := env.Engine.AssignTasks(env.Ctx, opts)
		require.Equal(t, engine.KindValidation, engine.Kind(err), "opts %+v", opts)
	}

	_, err := env.Engine.AssignTasks(env.Ctx, engine.AssignOptions{ProjectID: "missing", AnnotatorID: "ann", Quantity: 1})
	var nf engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "project", nf.Entity)
}

func TestUnconfiguredThresholdBlocksAllocation(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "legacy", 2, 1, 2)
	_, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE projects SET consensus_threshold=0 WHERE id='legacy'`)
	require.NoError(t, err)

	_, err = env.Engine.AssignTasks(env.Ctx, engine.AssignOptions{ProjectID: "legacy", AnnotatorID: "ann", Quantity: 1})
	require.Equal(t, engine.KindValidation, engine.Kind(err))

	_, err = env.Engine.ConfigureConsensus(env.Ctx, "legacy", 2, 2, "lead")
	require.NoError(t, err)
	require.Len(t, env.assign(t, "legacy", "ann", 1), 1)
}

func TestPartialFulfilment(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 1, 1, 2)

	as := env.assign(t, "p1", "ann", 5)
	require.Len(t, as, 2)
	require.Equal(t, items[0].ID, as[0].DataItemID)
	require.Equal(t, items[1].ID, as[1].DataItemID)
	for _, a := range as {
		require.Equal(t, domain.AssignmentAssigned, a.Status)
		require.Equal(t, domain.ItemInProgress, env.item(t, a.DataItemID).Status)
	}
	require.Empty(t, env.assign(t, "p1", "other", 5))
}

func TestCapacityAndExclusion(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 2, 2, 1)

	a := env.assign(t, "p1", "alice", 1)
	require.Len(t, a, 1)
	require.Empty(t, env.assign(t, "p1", "alice", 1), "annotator must not receive an item twice")
	require.Len(t, env.assign(t, "p1", "bob", 1), 1)
	require.Empty(t, env.assign(t, "p1", "carol", 1), "item is at capacity")

	env.submit(t, a[0], "cat")
	require.Empty(t, env.assign(t, "p1", "alice", 1), "submitted work still excludes the annotator")
	require.Equal(t, domain.ItemInProgress, env.item(t, items[0].ID).Status)
}

func TestConcurrentAllocationNeverOverAssigns(t *testing.T) {
	env := newTestEnv(t)
	const (
		items      = 6
		maxAssign  = 2
		annotators = 12
	)
	env.project(t, "p1", maxAssign, 1, items)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for i := 0; i < annotators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			as, err := env.Engine.AssignTasks(env.Ctx, engine.AssignOptions{
				ProjectID: "p1", AnnotatorID: "ann-" + string(rune('a'+i)), Quantity: 3,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total += len(as)
		}(i)
	}
	wg.Wait()
	require.Empty(t, errs)
	require.Equal(t, items*maxAssign, total)

	rows, err := env.Engine.DB.QueryContext(env.Ctx, `SELECT data_item_id, COUNT(*) FROM assignments GROUP BY data_item_id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id, n int64
		require.NoError(t, rows.Scan(&id, &n))
		require.LessOrEqual(t, n, int64(maxAssign), "item %d over-assigned", id)
	}
	require.NoError(t, rows.Err())
}

func TestSubmitPreconditions(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "p1", 2, 2, 1, "cat", "dog")
	a := env.assign(t, "p1", "alice", 1)[0]

	_, err := env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: "mallory", AssignmentID: a.ID, Labels: []domain.Annotation{{Label: "cat"}}})
	require.Equal(t, engine.KindUnauthorized, engine.Kind(err))

	_, err = env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: "alice", AssignmentID: 9999, Labels: []domain.Annotation{{Label: "cat"}}})
	require.Equal(t, engine.KindNotFound, engine.Kind(err))

	_, err = env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: "alice", AssignmentID: a.ID, Labels: []domain.Annotation{{Label: " "}}})
	require.Equal(t, engine.KindValidation, engine.Kind(err))

	_, err = env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: "alice", AssignmentID: a.ID, Labels: []domain.Annotation{{Label: "horse"}}})
	require.Equal(t, engine.KindValidation, engine.Kind(err))

	got := env.submit(t, a, "Cat")
	require.Equal(t, domain.AssignmentSubmitted, got.Status)
	require.NotNil(t, got.SubmittedAt)
	require.NotNil(t, got.LabelFingerprint)
	require.Equal(t, engine.Fingerprint([]string{"cat"}), *got.LabelFingerprint)

	_, err = env.Engine.SubmitTask(env.Ctx, engine.SubmitOptions{AnnotatorID: "alice", AssignmentID: a.ID, Labels: []domain.Annotation{{Label: "cat"}}})
	require.Equal(t, engine.KindValidation, engine.Kind(err), "resubmission must fail")
}

func TestThresholdOneResolvesOnFirstSubmission(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 3, 1, 1)
	a := env.assign(t, "p1", "alice", 1)[0]

	got := env.submit(t, a, "cat")
	require.Equal(t, domain.AssignmentCompleted, got.Status)
	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionConsensus, it.Resolution)
	require.Equal(t, []string{"cat"}, it.ConsensusLabels)
	require.Empty(t, env.assign(t, "p1", "bob", 1), "done items are never allocated")
}

func TestConsensusScenario(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 3, 2, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	b := env.assign(t, "p1", "bob", 1)[0]
	c := env.assign(t, "p1", "carol", 1)[0]

	env.submit(t, a, "cat", "outdoor")
	require.Equal(t, domain.ItemInProgress, env.item(t, items[0].ID).Status)

	env.submit(t, b, "Outdoor", "cat", "cat")
	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionConsensus, it.Resolution)
	require.Equal(t, []string{"cat", "outdoor"}, it.ConsensusLabels)
	require.False(t, it.NeedsReview)
	require.Equal(t, domain.AssignmentCompleted, env.assignment(t, a.ID).Status)
	require.Equal(t, domain.AssignmentCompleted, env.assignment(t, b.ID).Status)

	late := env.submit(t, c, "dog")
	require.Equal(t, domain.AssignmentSubmitted, late.Status, "late work is recorded but not counted")
	after := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, after.Status)
	require.Equal(t, []string{"cat", "outdoor"}, after.ConsensusLabels)
	require.Equal(t, it.Version, after.Version)
}

func TestNoConsensusAtMaxFlagsItem(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 2, 2, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	b := env.assign(t, "p1", "bob", 1)[0]

	env.submit(t, a, "cat")
	env.submit(t, b, "dog")
	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionNoConsensus, it.Resolution)
	require.True(t, it.NeedsReview)
	require.Empty(t, it.ConsensusLabels)
	require.Equal(t, domain.AssignmentSubmitted, env.assignment(t, a.ID).Status)
	require.Empty(t, env.assign(t, "p1", "carol", 1))

	progress, err := env.Engine.ProjectProgress(env.Ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, progress.Flagged)
	require.Equal(t, 1, progress.ItemCounts["done"])
	require.Equal(t, 2, progress.Assignments["submitted"])
}

func TestReviewResolvesFlaggedItem(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 2, 2, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	b := env.assign(t, "p1", "bob", 1)[0]
	env.submit(t, a, "cat")
	env.submit(t, b, "dog")

	queue, err := env.Engine.ReviewQueue(env.Ctx, "p1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
	require.Equal(t, a.ID, queue[0].ID)
	require.Equal(t, "cat", queue[0].Annotations[0].Label)

	_, err = env.Engine.ReviewAssignment(env.Ctx, engine.ReviewOptions{AssignmentID: a.ID, ReviewerID: "alice", Decision: domain.ReviewApprove})
	require.Equal(t, engine.KindUnauthorized, engine.Kind(err))

	got, err := env.Engine.ReviewAssignment(env.Ctx, engine.ReviewOptions{AssignmentID: b.ID, ReviewerID: "rita", Decision: domain.ReviewApprove})
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentCompleted, got.Status)
	require.NotNil(t, got.ReviewedBy)
	require.Equal(t, "rita", *got.ReviewedBy)

	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionReviewed, it.Resolution)
	require.Equal(t, []string{"dog"}, it.ConsensusLabels)
	require.False(t, it.NeedsReview)

	_, err = env.Engine.ReviewAssignment(env.Ctx, engine.ReviewOptions{AssignmentID: b.ID, ReviewerID: "rita", Decision: domain.ReviewReject})
	require.Equal(t, engine.KindValidation, engine.Kind(err), "terminal assignments never change")
}

func TestRejectFreesRedundancySlot(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 2, 2, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	env.assign(t, "p1", "bob", 1)
	env.submit(t, a, "cat")
	require.Empty(t, env.assign(t, "p1", "carol", 1))

	got, err := env.Engine.ReviewAssignment(env.Ctx, engine.ReviewOptions{AssignmentID: a.ID, ReviewerID: "rita", Decision: domain.ReviewReject})
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentRejected, got.Status)
	require.Equal(t, domain.ItemInProgress, env.item(t, items[0].ID).Status)

	require.Len(t, env.assign(t, "p1", "carol", 1), 1)
	require.Empty(t, env.assign(t, "p1", "alice", 1), "a rejected annotator is not re-assigned the item")
}

func TestConfigureConsensusValidation(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "p1", 1, 1, 1)

	for _, tc := range []struct{ max, threshold int }{{0, 0}, {2, 0}, {2, 3}, {-1, 1}} {
		_, err := env.Engine.ConfigureConsensus(env.Ctx, "p1", tc.max, tc.threshold, "lead")
		require.Equal(t, engine.KindValidation, engine.Kind(err), "max=%d threshold=%d", tc.max, tc.threshold)
	}
	_, err := env.Engine.ConfigureConsensus(env.Ctx, "nope", 2, 1, "lead")
	require.Equal(t, engine.KindNotFound, engine.Kind(err))

	p, err := env.Engine.ConfigureConsensus(env.Ctx, "p1", 3, 2, "lead")
	require.NoError(t, err)
	require.Equal(t, 3, p.MaxAssignments)
	require.Equal(t, 2, p.ConsensusThreshold)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "bad", Name: "bad", MaxAssignments: 1, ConsensusThreshold: 2})
	require.Equal(t, engine.KindValidation, engine.Kind(err))
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "p1", Name: "again"})
	require.Equal(t, engine.KindValidation, engine.Kind(err))
}

func TestQueryFacade(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "p1", 2, 2, 3, "cat", "dog")
	env.project(t, "p2", 1, 1, 1)
	mine := env.assign(t, "p1", "alice", 2)
	env.assign(t, "p2", "alice", 1)
	env.submit(t, mine[0], "cat")

	all, err := env.Engine.GetMyTasks(env.Ctx, "", "alice", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "p2", all[0].ProjectID, "newest first")

	submitted, err := env.Engine.GetMyTasks(env.Ctx, "p1", "alice", "submitted")
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	require.Equal(t, mine[0].ID, submitted[0].AssignmentID)

	_, err = env.Engine.GetMyTasks(env.Ctx, "p1", "alice", "Done")
	require.Equal(t, engine.KindValidation, engine.Kind(err))

	detail, err := env.Engine.GetTaskDetail(env.Ctx, mine[0].ID, "alice")
	require.NoError(t, err)
	require.Equal(t, mine[0].DataItemID, detail.DataItem.ID)
	require.JSONEq(t, `{"url":"x"}`, string(detail.DataItem.Payload))
	require.Len(t, detail.LabelClasses, 2)
	require.Len(t, detail.Assignment.Annotations, 1)

	_, err = env.Engine.GetTaskDetail(env.Ctx, mine[0].ID, "bob")
	require.Equal(t, engine.KindNotFound, engine.Kind(err), "foreign assignments are invisible")

	stats, err := env.Engine.GetAnnotatorStats(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.AnnotatorStats{AnnotatorID: "alice", Assigned: 2, Submitted: 1, Total: 3}, stats)
}

func TestEventsRecordStateChanges(t *testing.T) {
	env := newTestEnv(t)
	env.project(t, "p1", 1, 1, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	env.submit(t, a, "cat")

	evts, err := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilter{ProjectID: "p1"})
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	require.Equal(t, []string{
		"project.created",
		"items.loaded",
		"assignment.created",
		"item.status",
		"assignment.submitted",
		"assignment.completed",
		"item.status",
		"item.resolved",
	}, types)
}

func TestConcurrentSubmitsResolveOnce(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 5, 3, 1)
	// A second engine over the same database has its own item locks, so only
	// the version guard keeps the two apart.
	other := engine.New(env.Engine.DB, config.Default())
	other.Now = env.Engine.Now
	other.Events.Now = env.Engine.Now

	var as []domain.Assignment
	for _, name := range []string{"ann-a", "ann-b", "ann-c", "ann-d", "ann-e"} {
		as = append(as, env.assign(t, "p1", name, 1)...)
	}
	require.Len(t, as, 5)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, a := range as {
		eng := env.Engine
		if i%2 == 1 {
			eng = other
		}
		wg.Add(1)
		go func(eng engine.Engine, a domain.Assignment) {
			defer wg.Done()
			_, err := eng.SubmitTask(env.Ctx, engine.SubmitOptions{
				AnnotatorID: a.AnnotatorID, AssignmentID: a.ID, Labels: []domain.Annotation{{Label: "cat"}},
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(eng, a)
	}
	wg.Wait()
	require.Empty(t, errs)

	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionConsensus, it.Resolution)
	require.Equal(t, []string{"cat"}, it.ConsensusLabels)

	counts := map[domain.AssignmentStatus]int{}
	for _, a := range as {
		counts[env.assignment(t, a.ID).Status]++
	}
	require.Equal(t, 3, counts[domain.AssignmentCompleted])
	require.Equal(t, 2, counts[domain.AssignmentSubmitted], "work after resolution stays submitted")

	resolved, err := env.Engine.Repo.ListEvents(env.Ctx, repo.EventFilter{ProjectID: "p1", Type: "item.resolved"})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
}

func TestConfigureConsensusResolvesStalledItems(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 3, 2, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	b := env.assign(t, "p1", "bob", 1)[0]
	env.submit(t, a, "cat")
	env.submit(t, b, "dog")
	require.Equal(t, domain.ItemInProgress, env.item(t, items[0].ID).Status)

	_, err := env.Engine.ConfigureConsensus(env.Ctx, "p1", 2, 2, "lead")
	require.NoError(t, err)
	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionNoConsensus, it.Resolution)
	require.True(t, it.NeedsReview)
	require.Empty(t, env.assign(t, "p1", "carol", 1))

	queue, err := env.Engine.ReviewQueue(env.Ctx, "p1")
	require.NoError(t, err)
	require.Len(t, queue, 2)
}

func TestLoweredThresholdResolvesWithoutNewWork(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 4, 3, 1)
	a := env.assign(t, "p1", "alice", 1)[0]
	b := env.assign(t, "p1", "bob", 1)[0]
	env.submit(t, a, "cat")
	env.submit(t, b, "cat")
	require.Equal(t, domain.ItemInProgress, env.item(t, items[0].ID).Status)

	_, err := env.Engine.ConfigureConsensus(env.Ctx, "p1", 4, 2, "lead")
	require.NoError(t, err)
	it := env.item(t, items[0].ID)
	require.Equal(t, domain.ItemDone, it.Status)
	require.Equal(t, domain.ResolutionConsensus, it.Resolution)
	require.Equal(t, []string{"cat"}, it.ConsensusLabels)
	require.Equal(t, domain.AssignmentCompleted, env.assignment(t, a.ID).Status)
	require.Equal(t, domain.AssignmentCompleted, env.assignment(t, b.ID).Status)
	require.Empty(t, env.assign(t, "p1", "carol", 1))
}

func TestEvaluateLeavesSettledItemsAlone(t *testing.T) {
	env := newTestEnv(t)
	items := env.project(t, "p1", 2, 1, 2)
	a := env.assign(t, "p1", "alice", 1)[0]
	env.submit(t, a, "cat")

	done := env.item(t, a.DataItemID)
	got, err := env.Engine.Evaluate(env.Ctx, done.ID, "lead")
	require.NoError(t, err)
	require.Equal(t, done.Version, got.Version)
	require.Equal(t, domain.ItemDone, got.Status)

	got, err = env.Engine.Evaluate(env.Ctx, items[1].ID, "lead")
	require.NoError(t, err)
	require.Equal(t, domain.ItemPending, got.Status)

	_, err = env.Engine.Evaluate(env.Ctx, 9999, "lead")
	require.Equal(t, engine.KindNotFound, engine.Kind(err))
}

func TestConcurrentCreateProjectRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	const n = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		kinds   []string
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
				ID: "shared", Name: "shared", MaxAssignments: 1, ConsensusThreshold: 1, ActorID: "lead",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			kinds = append(kinds, engine.Kind(err))
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
	require.Len(t, kinds, n-1)
	for _, k := range kinds {
		require.Equal(t, engine.KindValidation, k)
	}
}
