// Package app resolves the acting identity for CLI commands. The CLI
// trusts the local operator; the identity flag names an actor and the
// recorded global roles are loaded from the directory.
package app

import (
	"context"
	"errors"
	"strings"

	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/repo"
)

// ResolveActor turns an --actor-id value into a full actor. Unknown
// actors are recorded on first use so a fresh workspace is usable
// without a separate registration step. References containing '@' are
// looked up by email and must already exist.
func ResolveActor(ctx context.Context, e engine.Engine, ref string) (domain.Actor, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Actor{}, errors.New("an acting identity is required; pass --actor-id or set TASKFLOW_ACTOR_ID")
	}
	if strings.Contains(ref, "@") {
		a, err := e.Repo.GetActorByEmail(ctx, ref)
		if err != nil {
			return domain.Actor{}, err
		}
		return withRoles(ctx, e.Repo, a)
	}
	a, err := e.Repo.GetActor(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		a, err = e.RegisterActor(ctx, ref, "", "")
	}
	if err != nil {
		return domain.Actor{}, err
	}
	return withRoles(ctx, e.Repo, a)
}

func withRoles(ctx context.Context, r repo.Repo, a domain.Actor) (domain.Actor, error) {
	roles, err := r.ActorRoles(ctx, a.ID)
	if err != nil {
		return domain.Actor{}, err
	}
	a.Roles = roles
	return a, nil
}
