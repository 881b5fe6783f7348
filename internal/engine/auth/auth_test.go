package auth

import (
	"testing"

	"taskflow/internal/domain"
)

func TestProjectAccess(t *testing.T) {
	project := domain.Project{ID: "p1", OwnerID: "owner-1"}

	cases := []struct {
		name     string
		actor    domain.Actor
		isMember bool
		want     Decision
	}{
		{
			name:  "admin always allowed",
			actor: domain.Actor{ID: "a1", Roles: []domain.Role{domain.RoleAdmin}},
			want:  Allow,
		},
		{
			name:  "manager owning the project allowed",
			actor: domain.Actor{ID: "owner-1", Roles: []domain.Role{domain.RoleManager}},
			want:  Allow,
		},
		{
			name:  "manager without ownership or membership denied",
			actor: domain.Actor{ID: "a2", Roles: []domain.Role{domain.RoleManager}},
			want:  Deny,
		},
		{
			name:     "manager who is a member allowed",
			actor:    domain.Actor{ID: "a2", Roles: []domain.Role{domain.RoleManager}},
			isMember: true,
			want:     Allow,
		},
		{
			name:     "plain member allowed",
			actor:    domain.Actor{ID: "a3"},
			isMember: true,
			want:     Allow,
		},
		{
			name:  "non-member denied",
			actor: domain.Actor{ID: "a4"},
			want:  Deny,
		},
		{
			name:  "owner without manager role or membership denied",
			actor: domain.Actor{ID: "owner-1"},
			want:  Deny,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProjectAccess(tc.actor, project, tc.isMember)
			if got != tc.want {
				t.Fatalf("ProjectAccess = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRolesDecideShortCircuit(t *testing.T) {
	project := domain.Project{ID: "p1", OwnerID: "owner-1"}

	if d, ok := rolesDecide(domain.Actor{ID: "x", Roles: []domain.Role{domain.RoleAdmin}}, project); !ok || d != Allow {
		t.Fatalf("admin should decide without membership, got %v/%v", d, ok)
	}
	if d, ok := rolesDecide(domain.Actor{ID: "owner-1", Roles: []domain.Role{domain.RoleManager}}, project); !ok || d != Allow {
		t.Fatalf("owning manager should decide without membership, got %v/%v", d, ok)
	}
	if _, ok := rolesDecide(domain.Actor{ID: "x"}, project); ok {
		t.Fatal("plain actor should fall through to the membership lookup")
	}
}

func TestDeniedErrorMessage(t *testing.T) {
	err := DeniedError{ActorID: "u1", Resource: "project p1"}
	want := "actor u1 denied access to project p1"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
