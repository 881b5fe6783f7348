// Package taskflowsdk is a minimal client for the taskflow HTTP API.
package taskflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a taskflow server. Set either BearerToken or APIKey;
// BearerToken wins when both are set.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsApproved  bool   `json:"is_approved"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// PagedTasks is one page of a task query.
type PagedTasks struct {
	Items      []Task `json:"items"`
	Page       int    `json:"page"`
	Size       int    `json:"size"`
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
}

// Member is one row of a project's member list.
type Member struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	JoinedAt  string `json:"joined_at"`
}

// TaskQuery carries the filters for ListTasks. Zero values are omitted.
type TaskQuery struct {
	ProjectID string
	Status    string
	Priority  string
	Search    string
	SortBy    string
	Desc      bool
	Page      int
	Size      int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project; it starts unapproved.
func (c *Client) CreateProject(ctx context.Context, name, description string) (Project, error) {
	body := map[string]any{"name": name, "description": description}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects returns the projects visible to the caller.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// ApproveProject approves a pending project. Requires the admin role.
func (c *Client) ApproveProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects/"+url.PathEscape(id)+"/approve", nil, &resp)
	return resp, err
}

// AddMember adds an actor, referenced by id or email, to a project.
func (c *Client) AddMember(ctx context.Context, projectID, actorRef string) error {
	body := map[string]any{"actor": actorRef}
	endpoint := "projects/" + url.PathEscape(projectID) + "/members"
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// RemoveMember removes an actor from a project.
func (c *Client) RemoveMember(ctx context.Context, projectID, actorRef string) error {
	endpoint := "projects/" + url.PathEscape(projectID) + "/members/" + url.PathEscape(actorRef)
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// ListMembers returns the member list of a project.
func (c *Client) ListMembers(ctx context.Context, projectID string) ([]Member, error) {
	var resp []Member
	endpoint := "projects/" + url.PathEscape(projectID) + "/members"
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID, title, description, priority string) (Task, error) {
	body := map[string]any{
		"project_id":  projectID,
		"title":       title,
		"description": description,
	}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetTaskStatus changes a task's status.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	body := map[string]any{"status": status}
	var resp Task
	err := c.do(ctx, http.MethodPut, "tasks/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// ListTasks runs a paged task query.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (PagedTasks, error) {
	params := url.Values{}
	if q.ProjectID != "" {
		params.Set("project_id", q.ProjectID)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Priority != "" {
		params.Set("priority", q.Priority)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.SortBy != "" {
		params.Set("sort", q.SortBy)
	}
	if q.Desc {
		params.Set("desc", "true")
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}
	endpoint := "tasks"
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var resp PagedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
