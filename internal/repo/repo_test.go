package repo_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"annoline/internal/db"
	"annoline/internal/domain"
	"annoline/internal/migrate"
	"annoline/internal/repo"
)

const ts = "2024-01-01T00:00:00.000000000Z"

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn))
	return repo.Repo{DB: conn}, ctx
}

func inTx(t *testing.T, r repo.Repo, ctx context.Context, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func seedItem(t *testing.T, r repo.Repo, ctx context.Context, maxAssignments int) int64 {
	t.Helper()
	var id int64
	inTx(t, r, ctx, func(tx *sql.Tx) {
		require.NoError(t, r.InsertProject(ctx, tx, domain.Project{ID: "p1", Name: "p1", Status: "active", MaxAssignments: maxAssignments, ConsensusThreshold: 1, CreatedAt: ts}))
		var err error
		id, err = r.InsertDataItem(ctx, tx, domain.DataItem{ProjectID: "p1", ExternalRef: "a", CreatedAt: ts})
		require.NoError(t, err)
	})
	return id
}

func TestInsertAssignmentIfFreeGuards(t *testing.T) {
	r, ctx := newRepo(t)
	itemID := seedItem(t, r, ctx, 2)
	insert := func(annotator string) bool {
		var ok bool
		inTx(t, r, ctx, func(tx *sql.Tx) {
			var err error
			_, ok, err = r.InsertAssignmentIfFree(ctx, tx, domain.Assignment{ProjectID: "p1", DataItemID: itemID, AnnotatorID: annotator, AssignedAt: ts}, 2)
			require.NoError(t, err)
		})
		return ok
	}
	require.True(t, insert("ann1"))
	require.False(t, insert("ann1"), "same annotator twice")
	require.True(t, insert("ann2"))
	require.False(t, insert("ann3"), "capacity reached")

	ids, err := r.CandidateItems(ctx, nil, "p1", "ann3", 2, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestUpdateItemStateDetectsStaleVersion(t *testing.T) {
	r, ctx := newRepo(t)
	itemID := seedItem(t, r, ctx, 1)
	st := repo.ItemState{ID: itemID, Status: domain.ItemInProgress, UpdatedAt: ts}
	inTx(t, r, ctx, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateItemState(ctx, tx, st, 0))
		require.ErrorIs(t, r.UpdateItemState(ctx, tx, st, 0), repo.ErrStale)
	})
	it, err := r.GetDataItem(ctx, nil, itemID)
	require.NoError(t, err)
	require.Equal(t, int64(1), it.Version)
	require.Equal(t, domain.ItemInProgress, it.Status)
}

func TestAPIKeyLifecycle(t *testing.T) {
	r, ctx := newRepo(t)
	inTx(t, r, ctx, func(tx *sql.Tx) {
		require.NoError(t, r.EnsureActor(ctx, tx, "bot", ts))
		require.NoError(t, r.InsertAPIKey(ctx, tx, domain.APIKey{ID: "k1", ActorID: "bot", KeyHash: repo.HashAPIKey("al_raw"), CreatedAt: ts}))
	})
	key, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" al_raw "))
	require.NoError(t, err)
	require.Equal(t, "bot", key.ActorID)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	require.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey("al_raw"))
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestInsertProjectReportsDuplicate(t *testing.T) {
	r, ctx := newRepo(t)
	seedItem(t, r, ctx, 1)
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	err = r.InsertProject(ctx, tx, domain.Project{ID: "p1", Name: "again", Status: "active", MaxAssignments: 1, ConsensusThreshold: 1, CreatedAt: ts})
	require.ErrorIs(t, err, repo.ErrExists)
}

func TestOpenItemIDsSkipsDoneItems(t *testing.T) {
	r, ctx := newRepo(t)
	first := seedItem(t, r, ctx, 1)
	var second int64
	inTx(t, r, ctx, func(tx *sql.Tx) {
		var err error
		second, err = r.InsertDataItem(ctx, tx, domain.DataItem{ProjectID: "p1", ExternalRef: "b", CreatedAt: ts})
		require.NoError(t, err)
		require.NoError(t, r.UpdateItemState(ctx, tx, repo.ItemState{ID: first, Status: domain.ItemDone, Resolution: domain.ResolutionConsensus, ConsensusLabels: []string{"cat"}, UpdatedAt: ts}, 0))
	})
	ids, err := r.OpenItemIDs(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, []int64{second}, ids)
}
