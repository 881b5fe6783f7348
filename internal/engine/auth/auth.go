package auth

import (
	"context"
	"errors"
	"fmt"

	"taskflow/internal/domain"
	"taskflow/internal/repo"
)

// Decision is the outcome of an authorization check. The zero value is
// Deny; a check must evaluate every rule to produce Allow.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DeniedError indicates an actor was refused access to a resource.
type DeniedError struct {
	ActorID  string
	Resource string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("actor %s denied access to %s", e.ActorID, e.Resource)
}

// ProjectAccess is the pure decision core. Rules apply in order: admins
// may access anything; managers may access projects they own; recorded
// members may access their project; everyone else is denied.
func ProjectAccess(actor domain.Actor, project domain.Project, isMember bool) Decision {
	if d, decided := rolesDecide(actor, project); decided {
		return d
	}
	if isMember {
		return Allow
	}
	return Deny
}

// rolesDecide reports whether roles and ownership alone settle the
// decision, letting callers skip the membership lookup.
func rolesDecide(actor domain.Actor, project domain.Project) (Decision, bool) {
	if actor.HasRole(domain.RoleAdmin) {
		return Allow, true
	}
	if actor.HasRole(domain.RoleManager) && project.OwnerID == actor.ID {
		return Allow, true
	}
	return Deny, false
}

// Service evaluates authorization against recorded membership state. It
// performs the membership lookup only when roles do not already decide.
type Service struct {
	Repo repo.Repo
}

func (s Service) CanAccessProjectResource(ctx context.Context, actor domain.Actor, project domain.Project) (Decision, error) {
	if d, decided := rolesDecide(actor, project); decided {
		return d, nil
	}
	member, err := s.Repo.IsMember(ctx, project.ID, actor.ID)
	if err != nil {
		return Deny, err
	}
	return ProjectAccess(actor, project, member), nil
}

// CanChangeTaskStatus resolves the task's parent project and applies the
// project rules. A task pointing at a missing project fails closed with
// Deny rather than an error.
func (s Service) CanChangeTaskStatus(ctx context.Context, actor domain.Actor, task domain.TaskItem) (Decision, error) {
	project, err := s.Repo.GetProject(ctx, task.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return Deny, nil
	}
	if err != nil {
		return Deny, err
	}
	return s.CanAccessProjectResource(ctx, actor, project)
}
