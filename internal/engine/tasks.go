package engine

import (
	"context"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/engine/auth"
	"taskflow/internal/events"
	"taskflow/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Priority    string
}

// CreateTask records a new task under an existing project the actor can
// access. A missing parent project is a hard not-found.
func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, opts TaskCreateOptions) (domain.TaskItem, error) {
	if opts.Title == "" {
		return domain.TaskItem{}, ValidationError{Reason: "title is required"}
	}
	if opts.ProjectID == "" {
		return domain.TaskItem{}, ValidationError{Reason: "project is required"}
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.TaskItem{}, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return domain.TaskItem{}, err
	}
	priority := domain.PriorityMedium
	if opts.Priority != "" {
		p, ok := domain.ParseTaskPriority(opts.Priority)
		if !ok {
			return domain.TaskItem{}, ValidationError{Reason: "unknown priority " + opts.Priority}
		}
		priority = p
	}
	now := e.timestamp()
	t := domain.TaskItem{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.StatusTodo,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TaskItem{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.TaskItem{}, err
	}
	if err := e.audit().Append(ctx, tx, events.TaskCreated, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{"title": t.Title}); err != nil {
		return domain.TaskItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TaskItem{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, actor domain.Actor, id string) (domain.TaskItem, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if err := e.requireTaskAccess(ctx, actor, t); err != nil {
		return domain.TaskItem{}, err
	}
	return t, nil
}

// requireTaskAccess applies the parent project's membership rules to a
// task. Status changes stay with the dedicated lifecycle check.
func (e Engine) requireTaskAccess(ctx context.Context, actor domain.Actor, t domain.TaskItem) error {
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	return e.requireProjectAccess(ctx, actor, p)
}

// TaskUpdateOptions encapsulates allowed field updates. Status is not
// among them; it moves only through UpdateTaskStatus.
type TaskUpdateOptions struct {
	Title       *string
	Description *string
	Priority    *string
}

func (e Engine) UpdateTask(ctx context.Context, actor domain.Actor, id string, opts TaskUpdateOptions) (domain.TaskItem, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if err := e.requireTaskAccess(ctx, actor, t); err != nil {
		return domain.TaskItem{}, err
	}
	if opts.Title != nil && *opts.Title == "" {
		return t, ValidationError{Reason: "title must not be empty"}
	}
	var priority *domain.TaskPriority
	if opts.Priority != nil {
		p, ok := domain.ParseTaskPriority(*opts.Priority)
		if !ok {
			return t, ValidationError{Reason: "unknown priority " + *opts.Priority}
		}
		priority = &p
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, id, opts.Title, opts.Description, priority, e.timestamp()); err != nil {
		return t, err
	}
	if err := e.audit().Append(ctx, tx, events.TaskUpdated, t.ProjectID, "task", t.ID, actor.ID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.Repo.GetTask(ctx, id)
}

// UpdateTaskStatus is the one authorization-gated field write. Any move
// between statuses in the closed enumeration is legal once the decision
// is Allow; the write stamps updated_at.
func (e Engine) UpdateTaskStatus(ctx context.Context, actor domain.Actor, id, status string) (domain.TaskItem, error) {
	next, ok := domain.ParseTaskStatus(status)
	if !ok {
		return domain.TaskItem{}, ValidationError{Reason: "unknown status " + status}
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	decision, err := e.Auth.CanChangeTaskStatus(ctx, actor, t)
	if err != nil {
		return t, err
	}
	if decision != auth.Allow {
		return t, auth.DeniedError{ActorID: actor.ID, Resource: "task " + id}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, next, e.timestamp()); err != nil {
		return t, err
	}
	if err := e.audit().Append(ctx, tx, events.TaskStatusChanged, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{
		"from": string(t.Status),
		"to":   string(next),
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) DeleteTask(ctx context.Context, actor domain.Actor, id string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := e.requireTaskAccess(ctx, actor, t); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, events.TaskDeleted, t.ProjectID, "task", t.ID, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskQueryOptions carries raw filter input. Status, priority, and sort
// are parsed tolerantly: values outside their enumerations silently
// skip the filter or fall back to the default sort.
type TaskQueryOptions struct {
	ProjectID string
	Status    string
	Priority  string
	Search    string
	SortBy    string
	Desc      bool
	Page      int
	Size      int
}

// QueryTasks returns one page of tasks visible to the actor.
func (e Engine) QueryTasks(ctx context.Context, actor domain.Actor, opts TaskQueryOptions) (domain.PagedTasks, error) {
	q := repo.TaskQuery{
		ProjectID: opts.ProjectID,
		Search:    opts.Search,
		SortBy:    opts.SortBy,
		Desc:      opts.Desc,
		Page:      opts.Page,
		Size:      opts.Size,
		Scope: repo.VisibilityScope{
			ActorID: actor.ID,
			Admin:   actor.HasRole(domain.RoleAdmin),
			Manager: actor.HasRole(domain.RoleManager),
		},
	}
	if s, ok := domain.ParseTaskStatus(opts.Status); ok {
		q.Status = s
	}
	if p, ok := domain.ParseTaskPriority(opts.Priority); ok {
		q.Priority = p
	}
	if e.Config != nil {
		if q.Size < 1 {
			q.Size = e.Config.Pagination.DefaultSize
		}
		if q.Size > e.Config.Pagination.MaxSize {
			q.Size = e.Config.Pagination.MaxSize
		}
	}
	return e.Repo.QueryTasks(ctx, q)
}

// TailEvents exposes the audit log, admins only.
func (e Engine) TailEvents(ctx context.Context, actor domain.Actor, f repo.EventFilters) ([]domain.Event, error) {
	if !actor.HasRole(domain.RoleAdmin) {
		return nil, auth.DeniedError{ActorID: actor.ID, Resource: "event log"}
	}
	return e.Repo.LatestEvents(ctx, f)
}
