package server

import (
	"taskflow/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	// Actor is an actor id, or an email when it contains '@'.
	Actor string `json:"actor"`
}

type CreateTaskRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty" enum:"low,medium,high"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high"`
}

type SetTaskStatusRequest struct {
	Status string `json:"status" enum:"todo,in_progress,done"`
}

type RoleChangeRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role" enum:"admin,manager"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsApproved  bool   `json:"is_approved"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at,omitempty" format:"date-time"`
}

type MemberResponse struct {
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
}

type ActorResponse struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type TaskResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"todo,in_progress,done"`
	Priority    string `json:"priority" enum:"low,medium,high"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type PagedTasksResponse struct {
	Items      []TaskResponse `json:"items"`
	Page       int            `json:"page"`
	Size       int            `json:"size"`
	TotalCount int            `json:"total_count"`
	TotalPages int            `json:"total_pages"`
}

type AttachmentResponse struct {
	ID           string `json:"id"`
	TaskID       string `json:"task_id"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	UploadedBy   string `json:"uploaded_by"`
	UploadedAt   string `json:"uploaded_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MemberChangeResponse struct {
	Changed bool `json:"changed"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles"`
}

// Mappers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: p.Description,
		IsApproved:  p.IsApproved,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func memberResponse(m domain.ProjectMember) MemberResponse {
	return MemberResponse{
		ProjectID: m.ProjectID,
		ActorID:   m.ActorID,
		Email:     m.Email,
		Name:      m.Name,
		JoinedAt:  m.JoinedAt,
	}
}

func mapMembers(items []domain.ProjectMember) []MemberResponse {
	res := make([]MemberResponse, 0, len(items))
	for _, m := range items {
		res = append(res, memberResponse(m))
	}
	return res
}

func actorResponse(a domain.Actor) ActorResponse {
	return ActorResponse{ID: a.ID, Email: a.Email, Name: a.Name}
}

func mapActors(items []domain.Actor) []ActorResponse {
	res := make([]ActorResponse, 0, len(items))
	for _, a := range items {
		res = append(res, actorResponse(a))
	}
	return res
}

func taskResponse(t domain.TaskItem) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.TaskItem) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func attachmentResponse(a domain.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:           a.ID,
		TaskID:       a.TaskID,
		OriginalName: a.OriginalName,
		ContentType:  a.ContentType,
		Size:         a.Size,
		UploadedBy:   a.UploadedBy,
		UploadedAt:   a.UploadedAt,
	}
}

func mapAttachments(items []domain.Attachment) []AttachmentResponse {
	res := make([]AttachmentResponse, 0, len(items))
	for _, a := range items {
		res = append(res, attachmentResponse(a))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}
