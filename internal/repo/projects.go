package repo

import (
	"context"
	"database/sql"
	"fmt"

	"annoline/internal/domain"
)

const projectColumns = `id,name,COALESCE(description,''),status,max_assignments,consensus_threshold,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.MaxAssignments, &p.ConsensusThreshold, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,max_assignments,consensus_threshold,created_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Status, p.MaxAssignments, p.ConsensusThreshold, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrExists
	}
	return err
}

// GetProject loads a project without its label classes.
func (r Repo) GetProject(ctx context.Context, q Querier, id string) (domain.Project, error) {
	return scanProject(r.q(q).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// SingleProject returns the only project in the workspace.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateConsensus replaces the redundancy settings of a project.
func (r Repo) UpdateConsensus(ctx context.Context, tx *sql.Tx, projectID string, maxAssignments, threshold int) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET max_assignments=?, consensus_threshold=? WHERE id=?`, maxAssignments, threshold, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertLabelClass(ctx context.Context, tx *sql.Tx, lc domain.LabelClass) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO label_classes(project_id,name,color,description) VALUES (?,?,?,?)`,
		lc.ProjectID, lc.Name, nullable(lc.Color), nullable(lc.Description))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListLabelClasses(ctx context.Context, q Querier, projectID string) ([]domain.LabelClass, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT id,project_id,name,COALESCE(color,''),COALESCE(description,'') FROM label_classes WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LabelClass
	for rows.Next() {
		var lc domain.LabelClass
		if err := rows.Scan(&lc.ID, &lc.ProjectID, &lc.Name, &lc.Color, &lc.Description); err != nil {
			return nil, err
		}
		res = append(res, lc)
	}
	return res, rows.Err()
}
