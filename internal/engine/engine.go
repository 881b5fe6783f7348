package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/config"
	"taskflow/internal/domain"
	"taskflow/internal/engine/auth"
	"taskflow/internal/events"
	"taskflow/internal/repo"
	"taskflow/internal/storage"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Auth    auth.Service
	Storage storage.FileStorage
	Config  *config.Config
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, store storage.FileStorage) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Events:  events.Writer{DB: db},
		Auth:    auth.Service{Repo: r},
		Storage: store,
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// audit returns the event writer bound to the engine clock, so event
// rows carry the same timestamps as the entities they describe.
func (e Engine) audit() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w
}

// ValidationError reports input that fails a business rule, as opposed
// to a missing resource or a denied access.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return e.Reason
}

// CreateProject records a new project owned by the creating actor. New
// projects start unapproved and enter the pending queue.
func (e Engine) CreateProject(ctx context.Context, actor domain.Actor, name, description string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, ValidationError{Reason: "name is required"}
	}
	now := e.timestamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID,
		Name:        name,
		Description: description,
		IsApproved:  false,
		CreatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.EnsureActor(ctx, tx, actor, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.audit().Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, actor.ID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, actor domain.Actor, id string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, actor domain.Actor, id string, name, description *string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return domain.Project{}, err
	}
	if name != nil && *name == "" {
		return domain.Project{}, ValidationError{Reason: "name must not be empty"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateProject(ctx, tx, id, name, description, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.audit().Append(ctx, tx, events.ProjectUpdated, id, "project", id, actor.ID, nil); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

// ApproveProject moves a project out of the pending queue. Approval is
// one-way and idempotent; approving twice succeeds without a second
// event.
func (e Engine) ApproveProject(ctx context.Context, actor domain.Actor, id string) (domain.Project, error) {
	if !actor.HasRole(domain.RoleAdmin) {
		return domain.Project{}, auth.DeniedError{ActorID: actor.ID, Resource: "project " + id}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, id); err != nil {
		return domain.Project{}, err
	}
	changed, err := e.Repo.ApproveProject(ctx, tx, id, e.timestamp())
	if err != nil {
		return domain.Project{}, err
	}
	if changed {
		if err := e.audit().Append(ctx, tx, events.ProjectApproved, id, "project", id, actor.ID, nil); err != nil {
			return domain.Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) DeleteProject(ctx context.Context, actor domain.Actor, id string) error {
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.audit().Append(ctx, tx, events.ProjectDeleted, id, "project", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ListProjects returns approved projects visible to the actor under the
// role visibility rules.
func (e Engine) ListProjects(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	return e.Repo.ListProjectsForActor(ctx, actor)
}

// ListPendingProjects is the approval queue, oldest first.
func (e Engine) ListPendingProjects(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	if !actor.HasRole(domain.RoleAdmin) {
		return nil, auth.DeniedError{ActorID: actor.ID, Resource: "pending projects"}
	}
	return e.Repo.ListPendingProjects(ctx)
}

// AddMember adds the referenced actor to an approved project. It reports
// false without an error when the project is unapproved or the actor is
// already a member. A missing project or target actor is a hard
// not-found.
func (e Engine) AddMember(ctx context.Context, actor domain.Actor, projectID, targetRef string) (bool, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return false, err
	}
	target, err := e.Repo.ResolveActor(ctx, targetRef)
	if err != nil {
		return false, err
	}
	if !p.IsApproved {
		return false, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	added, err := e.Repo.InsertMember(ctx, tx, projectID, target.ID, e.timestamp())
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}
	if err := e.audit().Append(ctx, tx, events.MemberAdded, projectID, "member", target.ID, actor.ID, events.EventPayload{"email": target.Email}); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveMember reports false when the actor was not a member.
func (e Engine) RemoveMember(ctx context.Context, actor domain.Actor, projectID, targetRef string) (bool, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return false, err
	}
	target, err := e.Repo.ResolveActor(ctx, targetRef)
	if err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	removed, err := e.Repo.RemoveMember(ctx, tx, projectID, target.ID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if err := e.audit().Append(ctx, tx, events.MemberRemoved, projectID, "member", target.ID, actor.ID, nil); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (e Engine) ListMembers(ctx context.Context, actor domain.Actor, projectID string) ([]domain.ProjectMember, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, projectID)
}

// ListAvailableActors returns actors who could still be added to the
// project.
func (e Engine) ListAvailableActors(ctx context.Context, actor domain.Actor, projectID string) ([]domain.Actor, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := e.requireProjectAccess(ctx, actor, p); err != nil {
		return nil, err
	}
	return e.Repo.ListNonMembers(ctx, projectID)
}

// RegisterActor adds an actor to the directory. The CLI and the dev
// login use this; JWT-authenticated requests record actors lazily.
func (e Engine) RegisterActor(ctx context.Context, id, email, name string) (domain.Actor, error) {
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.Actor{ID: id, Email: email, Name: name}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureActor(ctx, tx, a, e.timestamp()); err != nil {
		return domain.Actor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Actor{}, err
	}
	return e.Repo.GetActor(ctx, id)
}

func (e Engine) GrantRole(ctx context.Context, actor domain.Actor, targetRef string, role domain.Role) error {
	if !actor.HasRole(domain.RoleAdmin) {
		return auth.DeniedError{ActorID: actor.ID, Resource: "roles"}
	}
	target, err := e.Repo.ResolveActor(ctx, targetRef)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.GrantRole(ctx, tx, target.ID, role); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RevokeRole(ctx context.Context, actor domain.Actor, targetRef string, role domain.Role) error {
	if !actor.HasRole(domain.RoleAdmin) {
		return auth.DeniedError{ActorID: actor.ID, Resource: "roles"}
	}
	target, err := e.Repo.ResolveActor(ctx, targetRef)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.RevokeRole(ctx, tx, target.ID, role); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a new key for an actor and returns the plaintext
// once; only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor domain.Actor, targetID, name string) (domain.APIKey, string, error) {
	if targetID == "" {
		targetID = actor.ID
	}
	if targetID != actor.ID && !actor.HasRole(domain.RoleAdmin) {
		return domain.APIKey{}, "", auth.DeniedError{ActorID: actor.ID, Resource: "api keys"}
	}
	if _, err := e.Repo.GetActor(ctx, targetID); err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := uuid.NewString() + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   targetID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

func (e Engine) requireProjectAccess(ctx context.Context, actor domain.Actor, p domain.Project) error {
	decision, err := e.Auth.CanAccessProjectResource(ctx, actor, p)
	if err != nil {
		return err
	}
	if decision != auth.Allow {
		return auth.DeniedError{ActorID: actor.ID, Resource: "project " + p.ID}
	}
	return nil
}

// IsNotFound reports whether err maps to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
