package repo

import (
	"context"
	"database/sql"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

// AddMember grants a project role. Granting an existing role is a no-op.
func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, projectID, actorID, role string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id, actor_id, role) VALUES (?,?,?)`, projectID, actorID, role)
	return err
}

// MemberRoles returns the roles an actor holds in a project.
func (r Repo) MemberRoles(ctx context.Context, q Querier, projectID, actorID string) ([]string, error) {
	rows, err := r.q(q).QueryContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND actor_id=? ORDER BY role`, projectID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ActorProjectRoles maps project id to the actor's roles there.
func (r Repo) ActorProjectRoles(ctx context.Context, actorID string) (map[string][]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id, role FROM project_members WHERE actor_id=? ORDER BY project_id, role`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var projectID, role string
		if err := rows.Scan(&projectID, &role); err != nil {
			return nil, err
		}
		res[projectID] = append(res[projectID], role)
	}
	return res, rows.Err()
}
