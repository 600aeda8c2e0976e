package dto

import (
	"time"

	"github.com/helpdesk-mini/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTicketRequest payload. Version carries the expected ticket version;
// absent means the request is rejected. A supplied AssignedTo sets the
// assignee.
type UpdateTicketRequest struct {
	Version    *int    `json:"version"`
	Status     *string `json:"status"`
	AssignedTo *string `json:"assigned_to"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Content string `json:"content"`
}

// TicketSummary response.
type TicketSummary struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Status    domain.TicketStatus `json:"status"`
	Assignee  *string             `json:"assigned_to"`
	Version   int                 `json:"version"`
	DueAt     time.Time           `json:"due_at"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with thread and timeline.
type TicketDetailResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      domain.TicketStatus  `json:"status"`
	Assignee    *string              `json:"assigned_to"`
	CreatedBy   string               `json:"created_by"`
	Version     int                  `json:"version"`
	DueAt       time.Time            `json:"due_at"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Comments    []CommentResponse    `json:"comments"`
	Timeline    []AuditEventResponse `json:"timeline"`
}

// CommentResponse represents one thread entry.
type CommentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEventResponse represents one timeline entry.
type AuditEventResponse struct {
	ID        string             `json:"id"`
	ActorID   string             `json:"actor_id"`
	Action    domain.AuditAction `json:"action"`
	Details   any                `json:"details"`
	CreatedAt time.Time          `json:"created_at"`
}

// TicketListResponse is a page of tickets plus the total match count.
type TicketListResponse struct {
	Items  []TicketSummary `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}
