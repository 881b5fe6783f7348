package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskflow/internal/domain"
)

const taskCols = `id,project_id,title,COALESCE(description,''),status,priority,created_at,updated_at`

func scanTask(row *sql.Row) (domain.TaskItem, error) {
	var t domain.TaskItem
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.TaskItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,project_id,title,description,status,priority,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), string(t.Status), string(t.Priority), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.TaskItem, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.TaskItem, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, title, description *string, priority *domain.TaskPriority, now string) error {
	var (
		fields []string
		args   []any
	)
	if title != nil {
		fields = append(fields, "title=?")
		args = append(args, *title)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, string(*priority))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id string, status domain.TaskStatus, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, string(status), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskQuery describes one page of a filtered task listing. Status and
// Priority are already-validated enum values; empty means no filter.
type TaskQuery struct {
	ProjectID string
	Status    domain.TaskStatus
	Priority  domain.TaskPriority
	Search    string
	SortBy    string
	Desc      bool
	Page      int
	Size      int
	Scope     VisibilityScope
}

// VisibilityScope restricts a query to the projects an actor may see.
// Admin widens the scope to every project.
type VisibilityScope struct {
	ActorID string
	Admin   bool
	Manager bool
}

func (q TaskQuery) whereClause() (string, []any) {
	var clauses []string
	var args []any
	if q.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, q.ProjectID)
	}
	if q.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(q.Status))
	}
	if q.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(q.Priority))
	}
	if q.Search != "" {
		clauses = append(clauses, "(title LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE)")
		pattern := "%" + q.Search + "%"
		args = append(args, pattern, pattern)
	}
	// Listings only ever surface tasks of approved projects, for admins
	// included; unapproved projects live in the pending queue alone.
	if q.Scope.Admin {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM projects p WHERE p.id=tasks.project_id AND p.is_approved=1)`)
	} else {
		member := `EXISTS (SELECT 1 FROM project_members m WHERE m.project_id=p.id AND m.actor_id=?)`
		if q.Scope.Manager {
			clauses = append(clauses, `EXISTS (SELECT 1 FROM projects p WHERE p.id=tasks.project_id AND p.is_approved=1 AND (p.owner_id=? OR `+member+`))`)
			args = append(args, q.Scope.ActorID, q.Scope.ActorID)
		} else {
			clauses = append(clauses, `EXISTS (SELECT 1 FROM projects p WHERE p.id=tasks.project_id AND p.is_approved=1 AND `+member+`)`)
			args = append(args, q.Scope.ActorID)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// orderClause maps the sort name onto a column. An empty name sorts by
// creation time descending; an unrecognized name falls back to creation
// time ascending rather than erroring.
func (q TaskQuery) orderClause() string {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	switch strings.ToLower(strings.TrimSpace(q.SortBy)) {
	case "title":
		return "ORDER BY title " + dir
	case "createdat":
		return "ORDER BY created_at " + dir
	case "status":
		return "ORDER BY status " + dir
	case "priority":
		return "ORDER BY priority " + dir
	case "":
		return "ORDER BY created_at DESC"
	}
	return "ORDER BY created_at ASC"
}

// QueryTasks counts the filtered set, then fetches the requested page.
func (r Repo) QueryTasks(ctx context.Context, q TaskQuery) (domain.PagedTasks, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = 20
	}
	where, args := q.whereClause()

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM tasks `+where, args...).Scan(&total); err != nil {
		return domain.PagedTasks{}, err
	}

	query := `SELECT ` + taskCols + ` FROM tasks ` + where + ` ` + q.orderClause() + ` LIMIT ? OFFSET ?`
	args = append(args, q.Size, (q.Page-1)*q.Size)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.PagedTasks{}, err
	}
	defer rows.Close()
	var items []domain.TaskItem
	for rows.Next() {
		var t domain.TaskItem
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return domain.PagedTasks{}, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return domain.PagedTasks{}, err
	}
	return domain.PagedTasks{
		Items:      items,
		Page:       q.Page,
		Size:       q.Size,
		TotalCount: total,
		TotalPages: (total + q.Size - 1) / q.Size,
	}, nil
}
