package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskflow/internal/domain"
)

// EnsureActor records an actor if it is not already known. Existing rows
// keep their email and name.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, a domain.Actor, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, email, name, created_at) VALUES (?,?,?,?)`,
		a.ID, nullable(strings.ToLower(a.Email)), nullable(a.Name), now)
	return err
}

func scanActor(row *sql.Row) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(email,''),COALESCE(name,''),created_at FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorByEmail(ctx context.Context, email string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(email,''),COALESCE(name,''),created_at FROM actors WHERE email=?`, strings.ToLower(email)))
}

// ResolveActor looks an actor up by id, or by email when the reference
// contains an '@'.
func (r Repo) ResolveActor(ctx context.Context, ref string) (domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if strings.Contains(ref, "@") {
		return r.GetActorByEmail(ctx, ref)
	}
	return r.GetActor(ctx, ref)
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(email,''),COALESCE(name,''),created_at FROM actors ORDER BY email ASC`)
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

func (r Repo) GrantRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role) VALUES (?,?)`, actorID, string(role))
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role=?`, actorID, string(role))
	return err
}

// ActorRoles returns the recorded global roles. Rows holding values
// outside the closed enumeration are skipped.
func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role FROM actor_roles WHERE actor_id=?`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []domain.Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if role, ok := domain.ParseRole(raw); ok {
			roles = append(roles, role)
		}
	}
	return roles, rows.Err()
}
