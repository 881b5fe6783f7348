package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/engine"
	"taskflow/internal/migrate"
	"taskflow/internal/storage"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), storage.NewDisk(workspace+"/uploads"))

	ctx := context.Background()
	for _, a := range []struct{ id, email string }{
		{"admin-1", "admin@example.com"},
		{"mgr-1", "mgr@example.com"},
		{"member-1", "member@example.com"},
		{"guest-1", "guest@example.com"},
	} {
		if _, err := e.RegisterActor(ctx, a.id, a.email, ""); err != nil {
			t.Fatalf("register %s: %v", a.id, err)
		}
	}

	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func token(t *testing.T, actorID string, roles ...string) string {
	t.Helper()
	tok, err := signDevToken(testSecret, actorID, actorID+"@example.com", "", roles)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, data)
	}
	return envelope.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health = %d, want 200", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials = %d, want 401: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, bearer("not-a-token"))
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token = %d, want 401: %s", res.StatusCode, data)
	}
}

func TestProjectLifecycleHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	mgr := bearer(token(t, "mgr-1", "manager"))
	admin := bearer(token(t, "admin-1", "admin"))
	member := bearer(token(t, "member-1"))
	guest := bearer(token(t, "guest-1"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "rollout"}, mgr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", res.StatusCode, data)
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.IsApproved {
		t.Fatal("new project must be unapproved")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/pending", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending = %d: %s", res.StatusCode, data)
	}
	var pending []ProjectResponse
	_ = json.Unmarshal(data, &pending)
	if len(pending) != 1 || pending[0].ID != created.ID {
		t.Fatalf("pending queue = %+v", pending)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/pending", nil, mgr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("pending as manager = %d: %s", res.StatusCode, data)
	}

	// Members cannot join before approval.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/members", map[string]any{"actor": "member-1"}, mgr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("add before approval = %d, want 409: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/approve", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve = %d: %s", res.StatusCode, data)
	}
	var approved ProjectResponse
	_ = json.Unmarshal(data, &approved)
	if !approved.IsApproved {
		t.Fatal("approve did not set is_approved")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/members", map[string]any{"actor": "member@example.com"}, mgr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member = %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+created.ID+"/members", map[string]any{"actor": "member-1"}, mgr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add = %d, want 409: %s", res.StatusCode, data)
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("duplicate add code = %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ID, nil, member)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member read = %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+created.ID, nil, guest)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read = %d, want 403: %s", res.StatusCode, data)
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("outsider code = %s", code)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/nope", nil, admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project = %d, want 404: %s", res.StatusCode, data)
	}
}

func TestTaskStatusHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	mgr := bearer(token(t, "mgr-1", "manager"))
	admin := bearer(token(t, "admin-1", "admin"))
	member := bearer(token(t, "member-1"))
	guest := bearer(token(t, "guest-1"))

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "p"}, mgr)
	var project ProjectResponse
	_ = json.Unmarshal(data, &project)
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/approve", nil, admin)
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+project.ID+"/members", map[string]any{"actor": "member-1"}, mgr)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"project_id": project.ID,
		"title":      "ship",
	}, member)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task = %d: %s", res.StatusCode, data)
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)
	if task.Status != "todo" || task.Priority != "medium" {
		t.Fatalf("defaults = %s/%s", task.Status, task.Priority)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{"status": "done"}, guest)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider status = %d, want 403: %s", res.StatusCode, data)
	}

	// Field writes and reads are membership-gated as well.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{"title": "renamed"}, guest)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider update = %d, want 403: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+task.ID, nil, guest)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider read = %d, want 403: %s", res.StatusCode, data)
	}

	// Values outside the enum are rejected by schema validation.
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{"status": "paused"}, member)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status = %d, want 400: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/tasks/"+task.ID+"/status", map[string]any{"status": "in_progress"}, member)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("member status = %d: %s", res.StatusCode, data)
	}
	var updated TaskResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != "in_progress" {
		t.Fatalf("status = %s", updated.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?project_id="+project.ID, nil, member)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("query = %d: %s", res.StatusCode, data)
	}
	var page PagedTasksResponse
	_ = json.Unmarshal(data, &page)
	if page.TotalCount != 1 {
		t.Fatalf("total = %d, want 1", page.TotalCount)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	member := bearer(token(t, "member-1"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{"name": "ci"}, member)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key = %d: %s", res.StatusCode, data)
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("plaintext key missing from the create response")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key = %d: %s", res.StatusCode, data)
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.ActorID != "member-1" {
		t.Fatalf("actor = %s, want member-1", me.ActorID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key = %d, want 401: %s", res.StatusCode, data)
	}
}

func TestDevLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id": "admin-1",
		"roles":    []string{"admin"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login = %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %v %s", err, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/pending", nil, bearer(login.Token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending with minted token = %d: %s", res.StatusCode, data)
	}
}
