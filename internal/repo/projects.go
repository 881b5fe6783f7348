package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskflow/internal/domain"
)

const projectCols = `id,owner_id,name,COALESCE(description,''),is_approved,created_at,COALESCE(updated_at,'')`

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.IsApproved, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,owner_id,name,description,is_approved,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.OwnerID, p.Name, nullable(p.Description), p.IsApproved, p.CreatedAt, nullable(p.UpdatedAt))
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name, description *string, now string) error {
	var (
		fields []string
		args   []any
	)
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApproveProject flips the approval flag. It reports false when the
// project was already approved, making a second approve a no-op.
func (r Repo) ApproveProject(ctx context.Context, tx *sql.Tx, id, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET is_approved=1, updated_at=? WHERE id=? AND is_approved=0`, now, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListPendingProjects(ctx context.Context) ([]domain.Project, error) {
	return r.listProjects(ctx, `SELECT `+projectCols+` FROM projects WHERE is_approved=0 ORDER BY created_at ASC`)
}

// ListProjectsForActor applies role visibility: admins see every approved
// project, managers additionally see approved projects they own, and
// everyone sees approved projects they are a member of.
func (r Repo) ListProjectsForActor(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	if actor.HasRole(domain.RoleAdmin) {
		return r.listProjects(ctx, `SELECT `+projectCols+` FROM projects WHERE is_approved=1 ORDER BY created_at DESC`)
	}
	memberClause := `EXISTS (SELECT 1 FROM project_members m WHERE m.project_id=projects.id AND m.actor_id=?)`
	if actor.HasRole(domain.RoleManager) {
		return r.listProjects(ctx, `SELECT `+projectCols+` FROM projects WHERE is_approved=1 AND (owner_id=? OR `+memberClause+`) ORDER BY created_at DESC`,
			actor.ID, actor.ID)
	}
	return r.listProjects(ctx, `SELECT `+projectCols+` FROM projects WHERE is_approved=1 AND `+memberClause+` ORDER BY created_at DESC`, actor.ID)
}

func (r Repo) listProjects(ctx context.Context, query string, args ...any) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.IsApproved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
