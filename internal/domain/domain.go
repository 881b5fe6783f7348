package domain

import "strings"

// Role is a global role carried by an actor. Roles form a closed set;
// membership in a specific project is a separate, recorded relation.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

// ParseRole maps a free-text role name onto the closed enumeration.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	}
	return "", false
}

// Actor is an authenticated identity. It is built per request from the
// verified principal and passed explicitly into every engine call.
type Actor struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Roles     []Role `json:"roles,omitempty"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

func (a Actor) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

type Project struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsApproved  bool   `json:"is_approved"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

// ProjectMember is one row of a project's member list, joined with the
// actor directory for display.
type ProjectMember struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
}

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// ParseTaskStatus is tolerant: it accepts any casing and reports false
// for values outside the enumeration instead of erroring.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusTodo:
		return StatusTodo, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusDone:
		return StatusDone, true
	}
	return "", false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func ParseTaskPriority(s string) (TaskPriority, bool) {
	switch TaskPriority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow, true
	case PriorityMedium:
		return PriorityMedium, true
	case PriorityHigh:
		return PriorityHigh, true
	}
	return "", false
}

type TaskItem struct {
	ID          string       `json:"id"`
	ProjectID   string       `json:"project_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      TaskStatus   `json:"status" enum:"todo,in_progress,done"`
	Priority    TaskPriority `json:"priority" enum:"low,medium,high"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type Attachment struct {
	ID           string `json:"id"`
	TaskID       string `json:"task_id"`
	OriginalName string `json:"original_name"`
	StoredName   string `json:"stored_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	UploadedBy   string `json:"uploaded_by"`
	UploadedAt   string `json:"uploaded_at" format:"date-time"`
}

// StorageKey is the blob-store key for the attachment's content.
func (a Attachment) StorageKey() string {
	return "tasks/" + a.TaskID + "/" + a.StoredName
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// PagedTasks is one page of a task query. TotalCount reflects the full
// filtered set, not the page.
type PagedTasks struct {
	Items      []TaskItem `json:"items"`
	Page       int        `json:"page"`
	Size       int        `json:"size"`
	TotalCount int        `json:"total_count"`
	TotalPages int        `json:"total_pages"`
}
