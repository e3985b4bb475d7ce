package repo

import (
	"context"
	"database/sql"
	"strings"

	"annoline/internal/domain"
)

const assignmentColumns = `a.id,a.project_id,a.data_item_id,a.annotator_id,a.status,a.assigned_at,a.submitted_at,a.completed_at,a.reviewed_by,a.label_fingerprint`

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var (
		a         domain.Assignment
		status    string
		submitted sql.NullString
		completed sql.NullString
		reviewer  sql.NullString
		fp        sql.NullString
	)
	err := row.Scan(&a.ID, &a.ProjectID, &a.DataItemID, &a.AnnotatorID, &status, &a.AssignedAt, &submitted, &completed, &reviewer, &fp)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.AssignmentStatus(status)
	a.SubmittedAt = ptrFromNull(submitted)
	a.CompletedAt = ptrFromNull(completed)
	a.ReviewedBy = ptrFromNull(reviewer)
	a.LabelFingerprint = ptrFromNull(fp)
	return a, nil
}

func collectAssignments(rows *sql.Rows) ([]domain.Assignment, error) {
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// InsertAssignmentIfFree creates an assignment only while the item still has
// free capacity and the annotator has never held it. The bool is false when
// the guard rejected the insert.
func (r Repo) InsertAssignmentIfFree(ctx context.Context, tx *sql.Tx, a domain.Assignment, maxAssignments int) (int64, bool, error) {
	res, err := tx.ExecContext(ctx, `
INSERT INTO assignments(project_id,data_item_id,annotator_id,status,assigned_at)
SELECT ?,?,?,?,?
WHERE (SELECT COUNT(*) FROM assignments WHERE data_item_id=? AND status<>'rejected') < ?
  AND NOT EXISTS (SELECT 1 FROM assignments WHERE data_item_id=? AND annotator_id=?)`,
		a.ProjectID, a.DataItemID, a.AnnotatorID, string(domain.AssignmentAssigned), a.AssignedAt,
		a.DataItemID, maxAssignments,
		a.DataItemID, a.AnnotatorID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, err == nil, err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r Repo) GetAssignment(ctx context.Context, q Querier, id int64) (domain.Assignment, error) {
	return scanAssignment(r.q(q).QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments a WHERE a.id=?`, id))
}

// ListItemAssignments returns every assignment of an item with annotations, oldest first.
func (r Repo) ListItemAssignments(ctx context.Context, q Querier, itemID int64) ([]domain.Assignment, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments a WHERE a.data_item_id=? ORDER BY a.id`, itemID)
	if err != nil {
		return nil, err
	}
	res, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	return res, r.attachAnnotations(ctx, q, res)
}

// MarkSubmitted moves an assigned assignment to submitted.
func (r Repo) MarkSubmitted(ctx context.Context, tx *sql.Tx, id int64, submittedAt, fingerprint string) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status='submitted', submitted_at=?, label_fingerprint=? WHERE id=? AND status='assigned'`,
		submittedAt, fingerprint, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

// CloseAssignment moves a submitted assignment to completed or rejected.
func (r Repo) CloseAssignment(ctx context.Context, tx *sql.Tx, id int64, to domain.AssignmentStatus, closedAt string, reviewedBy *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=?, completed_at=?, reviewed_by=COALESCE(?, reviewed_by) WHERE id=? AND status='submitted'`,
		string(to), closedAt, nullablePtr(reviewedBy), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) InsertAnnotations(ctx context.Context, tx *sql.Tx, assignmentID int64, anns []domain.Annotation, now string) error {
	for _, ann := range anns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO annotations(assignment_id,label,value_json,created_at) VALUES (?,?,?,?)`,
			assignmentID, ann.Label, rawJSONArg(ann.Value), now); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListAnnotations(ctx context.Context, q Querier, assignmentID int64) ([]domain.Annotation, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT label,value_json FROM annotations WHERE assignment_id=? ORDER BY id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Annotation
	for rows.Next() {
		var (
			ann domain.Annotation
			val sql.NullString
		)
		if err := rows.Scan(&ann.Label, &val); err != nil {
			return nil, err
		}
		ann.Value = rawJSON(val)
		res = append(res, ann)
	}
	return res, rows.Err()
}

func (r Repo) attachAnnotations(ctx context.Context, q Querier, as []domain.Assignment) error {
	for i := range as {
		anns, err := r.ListAnnotations(ctx, q, as[i].ID)
		if err != nil {
			return err
		}
		as[i].Annotations = anns
	}
	return nil
}

type TaskFilter struct {
	ProjectID   string
	AnnotatorID string
	Status      string
}

// ListTasks returns an annotator's assignments, most recent first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.TaskSummary, error) {
	query := `SELECT a.id,a.project_id,a.data_item_id,COALESCE(d.external_ref,''),a.status,a.assigned_at,a.submitted_at
FROM assignments a JOIN data_items d ON d.id=a.data_item_id
WHERE a.annotator_id=?`
	args := []any{f.AnnotatorID}
	if f.ProjectID != "" {
		query += ` AND a.project_id=?`
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		query += ` AND a.status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY a.assigned_at DESC, a.id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskSummary
	for rows.Next() {
		var (
			ts        domain.TaskSummary
			status    string
			submitted sql.NullString
		)
		if err := rows.Scan(&ts.AssignmentID, &ts.ProjectID, &ts.DataItemID, &ts.ExternalRef, &status, &ts.AssignedAt, &submitted); err != nil {
			return nil, err
		}
		ts.Status = domain.AssignmentStatus(status)
		ts.SubmittedAt = ptrFromNull(submitted)
		res = append(res, ts)
	}
	return res, rows.Err()
}

// AssignmentCounts groups assignments by status. Empty filters are ignored.
func (r Repo) AssignmentCounts(ctx context.Context, projectID, annotatorID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM assignments WHERE 1=1`
	var args []any
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	if annotatorID != "" {
		query += ` AND annotator_id=?`
		args = append(args, annotatorID)
	}
	query += ` GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for _, st := range domain.AssignmentStatuses() {
		counts[string(st)] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SubmittedAssignments lists submitted work of a project awaiting review, oldest submission first.
func (r Repo) SubmittedAssignments(ctx context.Context, projectID string) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments a
WHERE a.project_id=? AND a.status='submitted'
ORDER BY a.submitted_at ASC, a.id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	res, err := collectAssignments(rows)
	if err != nil {
		return nil, err
	}
	return res, r.attachAnnotations(ctx, nil, res)
}
