package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"annoline/internal/config"
	"annoline/internal/domain"
)

func submitted(id int64, at string, status domain.AssignmentStatus, labels ...string) domain.Assignment {
	a := domain.Assignment{ID: id, Status: status, AssignedAt: "2024-01-01T00:00:00.000000000Z"}
	if status.Counted() {
		a.SubmittedAt = &at
	}
	for _, l := range labels {
		a.Annotations = append(a.Annotations, domain.Annotation{Label: l})
	}
	return a
}

func TestNormalizeLabels(t *testing.T) {
	got := NormalizeLabels([]domain.Annotation{{Label: " Dog"}, {Label: "cat"}, {Label: "dog"}, {Label: ""}})
	require.Equal(t, []string{"cat", "dog"}, got)
	require.Equal(t, Fingerprint(got), Fingerprint([]string{"cat", "dog"}))
	require.NotEqual(t, Fingerprint([]string{"catdog"}), Fingerprint(got))
}

func TestDecide(t *testing.T) {
	p := domain.Project{MaxAssignments: 3, ConsensusThreshold: 2}
	open := domain.DataItem{Status: domain.ItemInProgress}

	t.Run("pending without assignments", func(t *testing.T) {
		v := decide(p, open, nil)
		require.Equal(t, domain.ItemPending, v.Status)
	})
	t.Run("rejected work does not hold the item", func(t *testing.T) {
		v := decide(p, open, []domain.Assignment{submitted(1, "t1", domain.AssignmentRejected, "cat")})
		require.Equal(t, domain.ItemPending, v.Status)
	})
	t.Run("in progress below threshold", func(t *testing.T) {
		v := decide(p, open, []domain.Assignment{
			submitted(1, "t1", domain.AssignmentSubmitted, "cat"),
			submitted(2, "", domain.AssignmentAssigned),
		})
		require.Equal(t, domain.ItemInProgress, v.Status)
		require.Empty(t, v.Agreeing)
	})
	t.Run("agreement reaches threshold", func(t *testing.T) {
		v := decide(p, open, []domain.Assignment{
			submitted(1, "t1", domain.AssignmentSubmitted, "cat"),
			submitted(2, "t2", domain.AssignmentSubmitted, "dog"),
			submitted(3, "t3", domain.AssignmentSubmitted, "CAT "),
		})
		require.Equal(t, domain.ItemDone, v.Status)
		require.Equal(t, domain.ResolutionConsensus, v.Resolution)
		require.Equal(t, []string{"cat"}, v.Labels)
		require.Equal(t, []int64{1, 3}, v.Agreeing)
	})
	t.Run("tie goes to earliest submission", func(t *testing.T) {
		p := domain.Project{MaxAssignments: 4, ConsensusThreshold: 2}
		v := decide(p, open, []domain.Assignment{
			submitted(1, "t4", domain.AssignmentSubmitted, "cat"),
			submitted(2, "t1", domain.AssignmentSubmitted, "dog"),
			submitted(3, "t3", domain.AssignmentSubmitted, "cat"),
			submitted(4, "t2", domain.AssignmentSubmitted, "dog"),
		})
		require.Equal(t, []string{"dog"}, v.Labels)
		require.Equal(t, []int64{2, 4}, v.Agreeing)
	})
	t.Run("no agreement at max flags", func(t *testing.T) {
		v := decide(p, open, []domain.Assignment{
			submitted(1, "t1", domain.AssignmentSubmitted, "cat"),
			submitted(2, "t2", domain.AssignmentSubmitted, "dog"),
			submitted(3, "t3", domain.AssignmentSubmitted, "bird"),
		})
		require.Equal(t, domain.ItemDone, v.Status)
		require.Equal(t, domain.ResolutionNoConsensus, v.Resolution)
		require.True(t, v.NeedsReview)
	})
	t.Run("completed work counts without being promoted again", func(t *testing.T) {
		v := decide(p, open, []domain.Assignment{
			submitted(1, "t1", domain.AssignmentCompleted, "cat"),
			submitted(2, "t2", domain.AssignmentSubmitted, "cat"),
		})
		require.Equal(t, domain.ResolutionConsensus, v.Resolution)
		require.Equal(t, []int64{2}, v.Agreeing)
	})
	t.Run("done items never reopen", func(t *testing.T) {
		done := domain.DataItem{Status: domain.ItemDone, Resolution: domain.ResolutionConsensus, ConsensusLabels: []string{"cat"}}
		v := decide(p, done, []domain.Assignment{submitted(9, "t9", domain.AssignmentSubmitted, "dog")})
		require.True(t, sameVerdict(done, v))
	})
}

func TestWithRetry(t *testing.T) {
	cfg := config.Default()
	cfg.Allocation.RetryAttempts = 3
	cfg.Allocation.RetryInitialBackoff = time.Millisecond
	cfg.Allocation.RetryMaxBackoff = 2 * time.Millisecond
	e := Engine{Config: cfg}
	ctx := context.Background()

	calls := 0
	err := e.withRetry(ctx, "test", func() error {
		calls++
		return ErrConflict
	})
	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, KindInternal, Kind(err))

	calls = 0
	err = e.withRetry(ctx, "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	calls = 0
	err = e.withRetry(ctx, "test", func() error {
		calls++
		return ValidationError{Msg: "nope"}
	})
	require.Equal(t, 1, calls)
	require.Equal(t, KindValidation, Kind(err))
}
