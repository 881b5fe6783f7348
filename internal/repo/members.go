package repo

import (
	"context"
	"database/sql"

	"taskflow/internal/domain"
)

func (r Repo) IsMember(ctx context.Context, projectID, actorID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM project_members WHERE project_id=? AND actor_id=?`, projectID, actorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertMember records a membership. The composite primary key makes the
// insert race-safe; a duplicate pair reports false without an error.
func (r Repo) InsertMember(ctx context.Context, tx *sql.Tx, projectID, actorID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id, actor_id, joined_at) VALUES (?,?,?)`,
		projectID, actorID, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveMember reports false when no membership row existed.
func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, projectID, actorID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=? AND actor_id=?`, projectID, actorID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.ProjectMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.project_id, m.actor_id, COALESCE(a.email,''), COALESCE(a.name,''), m.joined_at
FROM project_members m JOIN actors a ON a.id=m.actor_id
WHERE m.project_id=? ORDER BY m.joined_at ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectMember
	for rows.Next() {
		var m domain.ProjectMember
		if err := rows.Scan(&m.ProjectID, &m.ActorID, &m.Email, &m.Name, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListNonMembers returns actors not yet on the project, ordered by email.
func (r Repo) ListNonMembers(ctx context.Context, projectID string) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(email,''), COALESCE(name,''), created_at FROM actors
WHERE NOT EXISTS (SELECT 1 FROM project_members m WHERE m.project_id=? AND m.actor_id=actors.id)
ORDER BY email ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
