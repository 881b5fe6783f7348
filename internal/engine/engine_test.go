package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/engine/auth"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
	"taskflow/internal/storage"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Admin   domain.Actor
	Manager domain.Actor
	Member  domain.Actor
	Guest   domain.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := storage.NewDisk(filepath.Join(dir, "uploads"))
	eng := engine.New(conn, config.Default(), store)

	// Monotonic clock so created_at ordering is deterministic.
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	eng.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := context.Background()
	env := testEnv{
		Engine:  eng,
		Ctx:     ctx,
		Admin:   domain.Actor{ID: "admin-1", Email: "admin@example.com", Roles: []domain.Role{domain.RoleAdmin}},
		Manager: domain.Actor{ID: "mgr-1", Email: "mgr@example.com", Roles: []domain.Role{domain.RoleManager}},
		Member:  domain.Actor{ID: "member-1", Email: "member@example.com"},
		Guest:   domain.Actor{ID: "guest-1", Email: "guest@example.com"},
	}
	for _, a := range []domain.Actor{env.Admin, env.Manager, env.Member, env.Guest} {
		if _, err := eng.RegisterActor(ctx, a.ID, a.Email, a.Name); err != nil {
			t.Fatalf("register actor %s: %v", a.ID, err)
		}
	}
	return env
}

// approvedProject creates a project owned by the manager, approves it
// and adds the member.
func approvedProject(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, env.Manager, "build", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.Engine.ApproveProject(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatalf("approve project: %v", err)
	}
	added, err := env.Engine.AddMember(env.Ctx, env.Manager, p.ID, env.Member.ID)
	if err != nil || !added {
		t.Fatalf("add member: added=%v err=%v", added, err)
	}
	p, err = env.Engine.GetProject(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("reload project: %v", err)
	}
	return p
}

func TestProjectApprovalFlow(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.CreateProject(env.Ctx, env.Manager, "rollout", "desc")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.IsApproved {
		t.Fatal("new project must start unapproved")
	}

	pending, err := env.Engine.ListPendingProjects(env.Ctx, env.Admin)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != p.ID {
		t.Fatalf("pending queue = %+v, want the new project", pending)
	}

	var denied auth.DeniedError
	if _, err := env.Engine.ListPendingProjects(env.Ctx, env.Manager); !errors.As(err, &denied) {
		t.Fatalf("pending queue for non-admin: got %v, want DeniedError", err)
	}
	if _, err := env.Engine.ApproveProject(env.Ctx, env.Manager, p.ID); !errors.As(err, &denied) {
		t.Fatalf("approve by non-admin: got %v, want DeniedError", err)
	}

	approved, err := env.Engine.ApproveProject(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.IsApproved {
		t.Fatal("project not approved")
	}

	// Second approval is a quiet no-op.
	again, err := env.Engine.ApproveProject(env.Ctx, env.Admin, p.ID)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if !again.IsApproved {
		t.Fatal("project lost its approval")
	}
	if again.UpdatedAt != approved.UpdatedAt {
		t.Fatalf("re-approval must not touch the row: %s vs %s", again.UpdatedAt, approved.UpdatedAt)
	}

	if _, err := env.Engine.ApproveProject(env.Ctx, env.Admin, "missing"); !engine.IsNotFound(err) {
		t.Fatalf("approve missing project: got %v, want not found", err)
	}
}

func TestMembershipRules(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.Engine.CreateProject(env.Ctx, env.Manager, "team", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	// Unapproved projects accept no members.
	added, err := env.Engine.AddMember(env.Ctx, env.Manager, p.ID, env.Member.ID)
	if err != nil {
		t.Fatalf("add to unapproved: %v", err)
	}
	if added {
		t.Fatal("member added to an unapproved project")
	}

	if _, err := env.Engine.ApproveProject(env.Ctx, env.Admin, p.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	added, err = env.Engine.AddMember(env.Ctx, env.Manager, p.ID, env.Member.ID)
	if err != nil || !added {
		t.Fatalf("add member: added=%v err=%v", added, err)
	}
	// Duplicate add reports false without an error.
	added, err = env.Engine.AddMember(env.Ctx, env.Manager, p.ID, env.Member.ID)
	if err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if added {
		t.Fatal("duplicate add reported a change")
	}

	// Email references resolve through the directory.
	added, err = env.Engine.AddMember(env.Ctx, env.Manager, p.ID, "guest@example.com")
	if err != nil || !added {
		t.Fatalf("add by email: added=%v err=%v", added, err)
	}

	members, err := env.Engine.ListMembers(env.Ctx, env.Manager, p.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("member count = %d, want 2", len(members))
	}
	if members[0].ActorID != env.Member.ID {
		t.Fatalf("members not ordered by join time: %+v", members)
	}

	if _, err := env.Engine.AddMember(env.Ctx, env.Manager, p.ID, "nobody@example.com"); !engine.IsNotFound(err) {
		t.Fatalf("add unknown actor: got %v, want not found", err)
	}

	removed, err := env.Engine.RemoveMember(env.Ctx, env.Manager, p.ID, env.Guest.ID)
	if err != nil || !removed {
		t.Fatalf("remove member: removed=%v err=%v", removed, err)
	}
	removed, err = env.Engine.RemoveMember(env.Ctx, env.Manager, p.ID, env.Guest.ID)
	if err != nil {
		t.Fatalf("remove non-member: %v", err)
	}
	if removed {
		t.Fatal("removing a non-member reported a change")
	}
}

func TestProjectAccessGating(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	// Members and the owning manager see the project; outsiders do not.
	if _, err := env.Engine.GetProject(env.Ctx, env.Member, p.ID); err != nil {
		t.Fatalf("member read: %v", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, env.Manager, p.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	var denied auth.DeniedError
	if _, err := env.Engine.GetProject(env.Ctx, env.Guest, p.ID); !errors.As(err, &denied) {
		t.Fatalf("outsider read: got %v, want DeniedError", err)
	}
	if _, err := env.Engine.GetProject(env.Ctx, env.Guest, "missing"); !engine.IsNotFound(err) {
		t.Fatalf("missing project: got %v, want not found", err)
	}
}

func TestTaskCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	if _, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: "missing", Title: "x"}); !engine.IsNotFound(err) {
		t.Fatalf("create in missing project: got %v, want not found", err)
	}

	var ve engine.ValidationError
	if _, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID}); !errors.As(err, &ve) {
		t.Fatalf("empty title: got %v, want ValidationError", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "x", Priority: "urgent"}); !errors.As(err, &ve) {
		t.Fatalf("bad priority: got %v, want ValidationError", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "first"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("status = %s, want todo", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %s, want medium", task.Priority)
	}
}

func TestTaskStatusChangeAuthorization(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "work"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	var ve engine.ValidationError
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "paused"); !errors.As(err, &ve) {
		t.Fatalf("unknown status: got %v, want ValidationError", err)
	}

	var denied auth.DeniedError
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Guest, task.ID, "done"); !errors.As(err, &denied) {
		t.Fatalf("outsider status change: got %v, want DeniedError", err)
	}

	updated, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "in_progress")
	if err != nil {
		t.Fatalf("member status change: %v", err)
	}
	if updated.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", updated.Status)
	}
	if updated.UpdatedAt == task.UpdatedAt {
		t.Fatal("status change must stamp updated_at")
	}

	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Admin, task.ID, "done"); err != nil {
		t.Fatalf("admin status change: %v", err)
	}
}

func TestTaskQueryPaging(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	for i := 0; i < 25; i++ {
		_, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{
			ProjectID: p.ID,
			Title:     fmt.Sprintf("task-%02d", i),
		})
		if err != nil {
			t.Fatalf("create task %d: %v", i, err)
		}
	}

	page, err := env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.TotalCount != 25 || page.TotalPages != 3 {
		t.Fatalf("totals = %d/%d pages, want 25/3", page.TotalCount, page.TotalPages)
	}
	if len(page.Items) != 10 {
		t.Fatalf("page 1 size = %d, want 10", len(page.Items))
	}

	last, err := env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, Page: 3, Size: 10})
	if err != nil {
		t.Fatalf("query page 3: %v", err)
	}
	if len(last.Items) != 5 {
		t.Fatalf("page 3 size = %d, want 5", len(last.Items))
	}

	// Page and size fall back to sane defaults.
	dflt, err := env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("query defaults: %v", err)
	}
	if dflt.Page != 1 || dflt.Size != 20 {
		t.Fatalf("defaults = page %d size %d, want 1/20", dflt.Page, dflt.Size)
	}
}

func TestTaskQueryFiltersAndSort(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	seed := []struct {
		title    string
		priority string
	}{
		{"alpha build", "low"},
		{"Beta Deploy", "high"},
		{"gamma build", "medium"},
	}
	for _, s := range seed {
		if _, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: s.title, Priority: s.priority}); err != nil {
			t.Fatalf("create %s: %v", s.title, err)
		}
	}

	// Search is case-insensitive over title and description.
	res, err := env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, Search: "BUILD"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("search hits = %d, want 2", res.TotalCount)
	}

	// Unparseable filter values are skipped, not errors.
	res, err = env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, Status: "bogus", Priority: "asap"})
	if err != nil {
		t.Fatalf("tolerant filters: %v", err)
	}
	if res.TotalCount != 3 {
		t.Fatalf("tolerant filter count = %d, want 3", res.TotalCount)
	}

	// Empty sort lists newest first.
	res, err = env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("default sort: %v", err)
	}
	if res.Items[0].Title != "gamma build" {
		t.Fatalf("default sort head = %s, want gamma build", res.Items[0].Title)
	}

	// Unrecognized sort keys fall back to oldest first.
	res, err = env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, SortBy: "nonsense"})
	if err != nil {
		t.Fatalf("fallback sort: %v", err)
	}
	if res.Items[0].Title != "alpha build" {
		t.Fatalf("fallback sort head = %s, want alpha build", res.Items[0].Title)
	}

	res, err = env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{ProjectID: p.ID, SortBy: "title"})
	if err != nil {
		t.Fatalf("title sort: %v", err)
	}
	if res.Items[0].Title != "Beta Deploy" {
		t.Fatalf("title sort head = %s", res.Items[0].Title)
	}
}

func TestTaskQueryVisibility(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	other, err := env.Engine.CreateProject(env.Ctx, env.Manager, "private", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.Engine.ApproveProject(env.Ctx, env.Admin, other.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "visible"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, env.Manager, engine.TaskCreateOptions{ProjectID: other.ID, Title: "hidden"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// The member only sees tasks of projects they belong to.
	res, err := env.Engine.QueryTasks(env.Ctx, env.Member, engine.TaskQueryOptions{})
	if err != nil {
		t.Fatalf("member query: %v", err)
	}
	if res.TotalCount != 1 || res.Items[0].Title != "visible" {
		t.Fatalf("member sees %d tasks (%+v), want only the membership project", res.TotalCount, res.Items)
	}

	// Admins see every approved project's tasks.
	res, err = env.Engine.QueryTasks(env.Ctx, env.Admin, engine.TaskQueryOptions{})
	if err != nil {
		t.Fatalf("admin query: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("admin sees %d tasks, want 2", res.TotalCount)
	}
}

func TestTaskVisibilityExcludesUnapprovedProjects(t *testing.T) {
	env := newTestEnv(t)

	pending, err := env.Engine.CreateProject(env.Ctx, env.Manager, "draft", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, env.Manager, engine.TaskCreateOptions{ProjectID: pending.ID, Title: "early work"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Listings stay empty while the project sits in the approval queue,
	// for the owning manager and the admin alike.
	for _, actor := range []domain.Actor{env.Manager, env.Admin} {
		res, err := env.Engine.QueryTasks(env.Ctx, actor, engine.TaskQueryOptions{})
		if err != nil {
			t.Fatalf("query as %s: %v", actor.ID, err)
		}
		if res.TotalCount != 0 {
			t.Fatalf("%s sees %d tasks of an unapproved project, want 0", actor.ID, res.TotalCount)
		}
	}

	if _, err := env.Engine.ApproveProject(env.Ctx, env.Admin, pending.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err := env.Engine.QueryTasks(env.Ctx, env.Manager, engine.TaskQueryOptions{})
	if err != nil {
		t.Fatalf("query after approval: %v", err)
	}
	if res.TotalCount != 1 {
		t.Fatalf("manager sees %d tasks after approval, want 1", res.TotalCount)
	}
}

func TestTaskWriteAccessGating(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)

	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "guarded"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	// Outsiders get no task operation at all, not just no status change.
	var denied auth.DeniedError
	if _, err := env.Engine.CreateTask(env.Ctx, env.Guest, engine.TaskCreateOptions{ProjectID: p.ID, Title: "sneak"}); !errors.As(err, &denied) {
		t.Fatalf("outsider create: got %v, want DeniedError", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.Guest, task.ID); !errors.As(err, &denied) {
		t.Fatalf("outsider read: got %v, want DeniedError", err)
	}
	title := "renamed"
	if _, err := env.Engine.UpdateTask(env.Ctx, env.Guest, task.ID, engine.TaskUpdateOptions{Title: &title}); !errors.As(err, &denied) {
		t.Fatalf("outsider update: got %v, want DeniedError", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Guest, task.ID); !errors.As(err, &denied) {
		t.Fatalf("outsider delete: got %v, want DeniedError", err)
	}

	// Members keep the full set.
	if _, err := env.Engine.GetTask(env.Ctx, env.Member, task.ID); err != nil {
		t.Fatalf("member read: %v", err)
	}
	updated, err := env.Engine.UpdateTask(env.Ctx, env.Member, task.ID, engine.TaskUpdateOptions{Title: &title})
	if err != nil {
		t.Fatalf("member update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("title = %s, want renamed", updated.Title)
	}
	if err := env.Engine.DeleteTask(env.Ctx, env.Member, task.ID); err != nil {
		t.Fatalf("member delete: %v", err)
	}
}

func TestAttachmentValidation(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "docs"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	var ve engine.ValidationError
	upload := func(name, contentType string, size int64, data []byte) error {
		_, err := env.Engine.UploadAttachment(env.Ctx, env.Member, task.ID, name, contentType, size, bytes.NewReader(data))
		return err
	}

	if err := upload("notes.exe", "text/plain", 4, []byte("abcd")); !errors.As(err, &ve) {
		t.Fatalf("bad extension: got %v, want ValidationError", err)
	}
	if err := upload("notes.txt", "application/x-msdownload", 4, []byte("abcd")); !errors.As(err, &ve) {
		t.Fatalf("bad content type: got %v, want ValidationError", err)
	}
	if err := upload("notes.txt", "text/plain", 6*1024*1024, nil); !errors.As(err, &ve) {
		t.Fatalf("declared oversize: got %v, want ValidationError", err)
	}

	// An under-declared size must not smuggle an oversize body through.
	big := bytes.Repeat([]byte("a"), int(env.Engine.Config.Uploads.MaxSizeBytes)+1)
	if err := upload("big.txt", "text/plain", 10, big); !errors.As(err, &ve) {
		t.Fatalf("actual oversize: got %v, want ValidationError", err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "docs"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	content := []byte("hello attachment")
	a, err := env.Engine.UploadAttachment(env.Ctx, env.Member, task.ID, "notes.txt", "text/plain; charset=utf-8", int64(len(content)), bytes.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if a.Size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", a.Size, len(content))
	}

	got, rc, err := env.Engine.OpenAttachment(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Fatalf("content mismatch: %q", data)
	}
	if got.OriginalName != "notes.txt" {
		t.Fatalf("original name = %s", got.OriginalName)
	}

	list, err := env.Engine.ListAttachments(env.Ctx, task.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v (%d items)", err, len(list))
	}

	if err := env.Engine.DeleteAttachment(env.Ctx, env.Member, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := env.Engine.OpenAttachment(env.Ctx, a.ID); !engine.IsNotFound(err) {
		t.Fatalf("open after delete: got %v, want not found", err)
	}
}

func TestEventTrail(t *testing.T) {
	env := newTestEnv(t)
	p := approvedProject(t, env)
	task, err := env.Engine.CreateTask(env.Ctx, env.Member, engine.TaskCreateOptions{ProjectID: p.ID, Title: "tracked"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, env.Member, task.ID, "done"); err != nil {
		t.Fatalf("status: %v", err)
	}

	var denied auth.DeniedError
	if _, err := env.Engine.TailEvents(env.Ctx, env.Member, repo.EventFilters{ProjectID: p.ID}); !errors.As(err, &denied) {
		t.Fatalf("tail by non-admin: got %v, want DeniedError", err)
	}

	events, err := env.Engine.TailEvents(env.Ctx, env.Admin, repo.EventFilters{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	// Newest first; the status change tops the trail.
	if events[0].Type != "task.status.changed" {
		t.Fatalf("head event = %s, want task.status.changed", events[0].Type)
	}
	// Event rows share the engine clock with the entities they describe.
	for _, ev := range events {
		if !strings.HasPrefix(ev.TS, "2024-01-01T") {
			t.Fatalf("event %s ts = %s, want the test clock", ev.Type, ev.TS)
		}
	}
}
