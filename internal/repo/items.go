package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"annoline/internal/domain"
)

const itemColumns = `id,project_id,COALESCE(external_ref,''),payload_json,status,COALESCE(resolution,''),consensus_labels_json,needs_review,version,created_at,updated_at`

func scanItem(row rowScanner) (domain.DataItem, error) {
	var (
		it      domain.DataItem
		payload sql.NullString
		labels  sql.NullString
		status  string
		res     string
		flagged int
	)
	err := row.Scan(&it.ID, &it.ProjectID, &it.ExternalRef, &payload, &status, &res, &labels, &flagged, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Payload = rawJSON(payload)
	it.Status = domain.DataItemStatus(status)
	it.Resolution = domain.Resolution(res)
	it.NeedsReview = flagged != 0
	if labels.Valid && labels.String != "" {
		if err := json.Unmarshal([]byte(labels.String), &it.ConsensusLabels); err != nil {
			return it, fmt.Errorf("decode consensus labels of item %d: %w", it.ID, err)
		}
	}
	return it, nil
}

// InsertDataItem stores a pending item and returns its id.
func (r Repo) InsertDataItem(ctx context.Context, tx *sql.Tx, it domain.DataItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO data_items(project_id,external_ref,payload_json,status,needs_review,version,created_at,updated_at) VALUES (?,?,?,?,0,0,?,?)`,
		it.ProjectID, nullable(it.ExternalRef), rawJSONArg(it.Payload), string(domain.ItemPending), it.CreatedAt, it.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetDataItem(ctx context.Context, q Querier, id int64) (domain.DataItem, error) {
	return scanItem(r.q(q).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM data_items WHERE id=?`, id))
}

type ItemFilter struct {
	ProjectID   string
	Status      string
	NeedsReview *bool
	Limit       int
}

func (r Repo) ListDataItems(ctx context.Context, f ItemFilter) ([]domain.DataItem, error) {
	query := `SELECT ` + itemColumns + ` FROM data_items WHERE project_id=?`
	args := []any{f.ProjectID}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	if f.NeedsReview != nil {
		query += ` AND needs_review=?`
		args = append(args, boolToInt(*f.NeedsReview))
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DataItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

// OpenItemIDs returns the ids of the project's items that are not done.
func (r Repo) OpenItemIDs(ctx context.Context, projectID string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM data_items WHERE project_id=? AND status<>'done' ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CandidateItems returns, in insertion order, the ids of items that are not
// done, still have free capacity and were never assigned to the annotator.
func (r Repo) CandidateItems(ctx context.Context, q Querier, projectID, annotatorID string, maxAssignments, limit int) ([]int64, error) {
	rows, err := r.q(q).QueryContext(ctx, `
SELECT d.id FROM data_items d
WHERE d.project_id=? AND d.status<>'done'
  AND (SELECT COUNT(*) FROM assignments a WHERE a.data_item_id=d.id AND a.status<>'rejected') < ?
  AND NOT EXISTS (SELECT 1 FROM assignments a WHERE a.data_item_id=d.id AND a.annotator_id=?)
ORDER BY d.id ASC
LIMIT ?`, projectID, maxAssignments, annotatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ItemState is the evaluator-owned part of a data item row.
type ItemState struct {
	ID              int64
	Status          domain.DataItemStatus
	Resolution      domain.Resolution
	ConsensusLabels []string
	NeedsReview     bool
	UpdatedAt       string
}

// UpdateItemState writes a new item state if the row is still at
// expectedVersion and bumps the version. It returns ErrStale otherwise.
func (r Repo) UpdateItemState(ctx context.Context, tx *sql.Tx, st ItemState, expectedVersion int64) error {
	var labels any
	if len(st.ConsensusLabels) > 0 {
		data, err := json.Marshal(st.ConsensusLabels)
		if err != nil {
			return err
		}
		labels = string(data)
	}
	res, err := tx.ExecContext(ctx, `UPDATE data_items SET status=?, resolution=?, consensus_labels_json=?, needs_review=?, updated_at=?, version=version+1 WHERE id=? AND version=?`,
		string(st.Status), nullable(string(st.Resolution)), labels, boolToInt(st.NeedsReview), st.UpdatedAt, st.ID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// ItemCounts returns item counts by status and the number of flagged items.
func (r Repo) ItemCounts(ctx context.Context, projectID string) (map[string]int, int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*), SUM(needs_review) FROM data_items WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for _, st := range []domain.DataItemStatus{domain.ItemPending, domain.ItemInProgress, domain.ItemDone} {
		counts[string(st)] = 0
	}
	flagged := 0
	for rows.Next() {
		var (
			status string
			n, f   int
		)
		if err := rows.Scan(&status, &n, &f); err != nil {
			return nil, 0, err
		}
		counts[status] = n
		flagged += f
	}
	return counts, flagged, rows.Err()
}
