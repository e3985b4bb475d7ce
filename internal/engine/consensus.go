package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"annoline/internal/domain"
	"annoline/internal/events"
	"annoline/internal/repo"
)

// NormalizeLabels reduces annotations to the label set used for agreement:
// trimmed, lower-cased, de-duplicated and sorted. Values do not take part.
func NormalizeLabels(anns []domain.Annotation) []string {
	seen := make(map[string]struct{}, len(anns))
	out := make([]string, 0, len(anns))
	for _, a := range anns {
		l := strings.ToLower(strings.TrimSpace(a.Label))
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Fingerprint is a stable digest of a normalized label set.
func Fingerprint(labels []string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(strings.Join(labels, "\x1f")))
}

// verdict is the item state the evaluator derives from its assignments.
type verdict struct {
	Status      domain.DataItemStatus
	Resolution  domain.Resolution
	Labels      []string
	NeedsReview bool
	// Agreeing lists the submitted assignments to promote to completed.
	Agreeing []int64
}

type labelGroup struct {
	labels  []string
	members []domain.Assignment
}

// decide applies the agreement rule. It never reopens a done item.
func decide(p domain.Project, item domain.DataItem, as []domain.Assignment) verdict {
	if item.Status == domain.ItemDone {
		return verdict{Status: item.Status, Resolution: item.Resolution, Labels: item.ConsensusLabels, NeedsReview: item.NeedsReview}
	}
	var considered []domain.Assignment
	active := 0
	for _, a := range as {
		if a.Status.ConsumesCapacity() {
			active++
		}
		if a.Status.Counted() {
			considered = append(considered, a)
		}
	}
	sort.SliceStable(considered, func(i, j int) bool {
		return submittedAt(considered[i]) < submittedAt(considered[j])
	})

	threshold := p.ConsensusThreshold
	if threshold >= 1 && len(considered) >= threshold {
		if g := largestGroup(considered); len(g.members) >= threshold {
			v := verdict{Status: domain.ItemDone, Resolution: domain.ResolutionConsensus, Labels: g.labels}
			for _, m := range g.members {
				if m.Status == domain.AssignmentSubmitted {
					v.Agreeing = append(v.Agreeing, m.ID)
				}
			}
			return v
		}
	}
	if len(considered) >= p.MaxAssignments {
		return verdict{Status: domain.ItemDone, Resolution: domain.ResolutionNoConsensus, NeedsReview: true}
	}
	if active > 0 {
		return verdict{Status: domain.ItemInProgress}
	}
	return verdict{Status: domain.ItemPending}
}

// largestGroup groups assignments by label set. considered must be ordered by
// submission time; ties go to the group that was submitted first.
func largestGroup(considered []domain.Assignment) labelGroup {
	var groups []*labelGroup
	index := map[string]*labelGroup{}
	for _, a := range considered {
		labels := NormalizeLabels(a.Annotations)
		key := strings.Join(labels, "\x1f")
		g, ok := index[key]
		if !ok {
			g = &labelGroup{labels: labels}
			index[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, a)
	}
	var best labelGroup
	for _, g := range groups {
		if len(g.members) > len(best.members) {
			best = *g
		}
	}
	return best
}

func submittedAt(a domain.Assignment) string {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.AssignedAt
}

func sameVerdict(item domain.DataItem, v verdict) bool {
	return item.Status == v.Status &&
		item.Resolution == v.Resolution &&
		item.NeedsReview == v.NeedsReview &&
		slices.Equal(item.ConsensusLabels, v.Labels) &&
		len(v.Agreeing) == 0
}

// evaluation is what one evaluator pass changed, reported after commit.
type evaluation struct {
	Item     domain.DataItem
	Changed  bool
	Resolved domain.Resolution
}

// evaluateTx recomputes the item's state from its assignments inside tx.
// The item row is written with a version check; a concurrent writer yields ErrConflict.
func (e Engine) evaluateTx(ctx context.Context, tx *sql.Tx, itemID int64, actorID string) (evaluation, error) {
	item, err := e.Repo.GetDataItem(ctx, tx, itemID)
	if err != nil {
		return evaluation{}, lookupErr("data item", itemID, err)
	}
	p, err := e.Repo.GetProject(ctx, tx, item.ProjectID)
	if err != nil {
		return evaluation{}, lookupErr("project", item.ProjectID, err)
	}
	as, err := e.Repo.ListItemAssignments(ctx, tx, itemID)
	if err != nil {
		return evaluation{}, fmt.Errorf("load assignments of item %d: %w", itemID, err)
	}
	v := decide(p, item, as)
	if sameVerdict(item, v) {
		return evaluation{Item: item}, nil
	}
	return e.applyVerdict(ctx, tx, item, v, actorID)
}

func (e Engine) applyVerdict(ctx context.Context, tx *sql.Tx, item domain.DataItem, v verdict, actorID string) (evaluation, error) {
	now := e.timestamp()
	st := repo.ItemState{
		ID:              item.ID,
		Status:          v.Status,
		Resolution:      v.Resolution,
		ConsensusLabels: v.Labels,
		NeedsReview:     v.NeedsReview,
		UpdatedAt:       now,
	}
	if err := e.Repo.UpdateItemState(ctx, tx, st, item.Version); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return evaluation{}, ErrConflict
		}
		return evaluation{}, fmt.Errorf("update item %d: %w", item.ID, err)
	}
	for _, id := range v.Agreeing {
		if err := e.Repo.CloseAssignment(ctx, tx, id, domain.AssignmentCompleted, now, nil); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return evaluation{}, ErrConflict
			}
			return evaluation{}, fmt.Errorf("complete assignment %d: %w", id, err)
		}
		if err := e.Events.Append(ctx, tx, events.AssignmentComplete, item.ProjectID, "assignment", strconv.FormatInt(id, 10), actorID,
			events.EventPayload{"data_item_id": item.ID, "by": "consensus"}); err != nil {
			return evaluation{}, err
		}
	}

	entityID := strconv.FormatInt(item.ID, 10)
	if item.Status != v.Status {
		if err := e.Events.Append(ctx, tx, events.ItemStatusChanged, item.ProjectID, "data_item", entityID, actorID,
			events.EventPayload{"from": item.Status, "to": v.Status}); err != nil {
			return evaluation{}, err
		}
	}
	switch {
	case v.Resolution == domain.ResolutionNoConsensus && item.Resolution != v.Resolution:
		if err := e.Events.Append(ctx, tx, events.ItemFlagged, item.ProjectID, "data_item", entityID, actorID,
			events.EventPayload{"resolution": v.Resolution}); err != nil {
			return evaluation{}, err
		}
	case v.Resolution != domain.ResolutionNone && item.Resolution != v.Resolution:
		if err := e.Events.Append(ctx, tx, events.ItemResolved, item.ProjectID, "data_item", entityID, actorID,
			events.EventPayload{"resolution": v.Resolution, "labels": v.Labels, "agreeing": v.Agreeing}); err != nil {
			return evaluation{}, err
		}
	}

	updated := item
	updated.Status = v.Status
	updated.Resolution = v.Resolution
	updated.ConsensusLabels = v.Labels
	updated.NeedsReview = v.NeedsReview
	updated.Version = item.Version + 1
	updated.UpdatedAt = now
	ev := evaluation{Item: updated, Changed: true}
	if item.Resolution != v.Resolution {
		ev.Resolved = v.Resolution
	}
	return ev, nil
}

// record reports a committed evaluation.
func (e Engine) record(ev evaluation) {
	if ev.Resolved == domain.ResolutionNone {
		return
	}
	e.metrics().ItemResolved(string(ev.Resolved))
	e.logger().Info("data item resolved",
		"project_id", ev.Item.ProjectID,
		"data_item_id", ev.Item.ID,
		"resolution", ev.Resolved,
		"needs_review", ev.Item.NeedsReview,
	)
}

// Evaluate recomputes a data item's state from its assignments.
func (e Engine) Evaluate(ctx context.Context, itemID int64, actorID string) (domain.DataItem, error) {
	unlock := e.locks.lock(itemID)
	defer unlock()
	var ev evaluation
	err := e.withRetry(ctx, "evaluate", func() error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			ev, err = e.evaluateTx(ctx, tx, itemID, actorID)
			return err
		})
	})
	if err != nil {
		return domain.DataItem{}, err
	}
	e.record(ev)
	return ev.Item, nil
}
