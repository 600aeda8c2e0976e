package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-mini/helpdesk/internal/domain"
	"github.com/helpdesk-mini/helpdesk/internal/events"
	"github.com/helpdesk-mini/helpdesk/internal/repository"
	apperrors "github.com/helpdesk-mini/helpdesk/pkg/util"
)

// TicketService is the mutation engine for tickets. Every mutating operation
// runs as one atomic unit spanning the ticket store and the audit log: the
// ticket write and its audit events either all commit or all roll back.
type TicketService struct {
	uow        repository.UnitOfWork
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	audit      repository.AuditLogRepository
	dispatcher events.Dispatcher
	dueOffset  time.Duration
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	UnitOfWork  repository.UnitOfWork
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	AuditRepo   repository.AuditLogRepository
	Dispatcher  events.Dispatcher
}

// TicketListFilter describes listing parameters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketUpdateInput describes a conditional update. ExpectedVersion is
// mandatory; Status and AssigneeID are applied only when supplied.
// AssigneeSet distinguishes "assign to AssigneeID" (nil meaning unassign)
// from "leave assignment alone".
type TicketUpdateInput struct {
	ExpectedVersion *int
	Status          *domain.TicketStatus
	AssigneeID      *string
	AssigneeSet     bool
}

// TicketDetail is a ticket with its comment thread and audit timeline.
type TicketDetail struct {
	Ticket   *domain.Ticket
	Comments []domain.Comment
	Timeline []domain.AuditEvent
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies, dueOffset time.Duration) *TicketService {
	return &TicketService{
		uow:        deps.UnitOfWork,
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		audit:      deps.AuditRepo,
		dispatcher: deps.Dispatcher,
		dueOffset:  dueOffset,
		now:        time.Now,
	}
}

// CreateTicket opens a new ticket for the actor. The ticket row and its
// CREATED audit event are written in one transaction; a storage failure
// surfaces to the caller without retry.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Principal, title, description string) (*domain.Ticket, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, apperrors.NewFieldsRequired("title and description are required")
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusOpen,
		CreatedByID: actor.ID,
		Version:     domain.InitialTicketVersion,
		DueAt:       s.now().Add(s.dueOffset),
	}

	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		if err := r.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return r.Audit.Append(ctx, &domain.AuditEvent{
			TicketID: ticket.ID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionCreated,
			Details:  domain.CreatedDetails{Title: ticket.Title},
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  actor.ID,
		Payload: events.TicketCreatedPayload{
			Title: ticket.Title,
			DueAt: ticket.DueAt,
		},
	})
	return ticket, nil
}

// UpdateTicket applies a version-gated status/assignment change. On a stale
// ExpectedVersion the caller gets a conflict and must refetch and retry; the
// engine never retries on its own, because resolving a concurrent edit is the
// caller's decision. One audit event is appended per field whose effective
// value changed, inside the same transaction as the conditional write.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Principal, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if input.ExpectedVersion == nil {
		return nil, apperrors.NewVersionRequired()
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, apperrors.NewValidationError("unknown ticket status", map[string]any{"status": *input.Status})
	}

	changes := repository.TicketChanges{
		Status:      input.Status,
		AssigneeID:  input.AssigneeID,
		AssigneeSet: input.AssigneeSet,
	}

	var snapshot, updated *domain.Ticket
	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		var err error
		snapshot, err = r.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
			}
			return err
		}

		updated, err = r.Tickets.ConditionalUpdate(ctx, ticketID, *input.ExpectedVersion, changes)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrVersionConflict):
				return apperrors.NewConflict("ticket was modified concurrently; refetch and retry", map[string]any{
					"expected_version": *input.ExpectedVersion,
					"current_version":  snapshot.Version,
				})
			case errors.Is(err, repository.ErrNotFound):
				return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
			default:
				return err
			}
		}

		if updated.Status != snapshot.Status {
			if err := r.Audit.Append(ctx, &domain.AuditEvent{
				TicketID: ticketID,
				ActorID:  actor.ID,
				Action:   domain.AuditActionStatusChanged,
				Details:  domain.StatusChangedDetails{From: snapshot.Status, To: updated.Status},
			}); err != nil {
				return err
			}
		}
		if assigneeChanged(snapshot.AssigneeID, updated.AssigneeID) {
			if err := r.Audit.Append(ctx, &domain.AuditEvent{
				TicketID: ticketID,
				ActorID:  actor.ID,
				Action:   domain.AuditActionAssigned,
				Details:  domain.AssignedDetails{To: derefOrEmpty(updated.AssigneeID)},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishUpdateEvents(ctx, actor, snapshot, updated)
	return updated, nil
}

// AddComment appends an immutable comment and its COMMENT_ADDED audit event
// in one transaction. Comments never touch the ticket version: they are
// append-only and cannot conflict, so they need no optimistic lock.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Principal, ticketID, content string) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewFieldsRequired("content is required")
	}

	comment := &domain.Comment{
		TicketID: ticketID,
		AuthorID: actor.ID,
		Content:  content,
	}

	err := s.uow.Do(ctx, func(r repository.Repositories) error {
		if _, err := r.Tickets.GetByID(ctx, ticketID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
			}
			return err
		}
		if err := r.Comments.Create(ctx, comment); err != nil {
			return err
		}
		return r.Audit.Append(ctx, &domain.AuditEvent{
			TicketID: ticketID,
			ActorID:  actor.ID,
			Action:   domain.AuditActionCommentAdded,
			Details:  domain.CommentAddedDetails{CommentID: comment.ID},
		})
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticketID,
		ActorID:  actor.ID,
		Payload: events.TicketCommentAddedPayload{
			CommentID:      comment.ID,
			ContentPreview: stringPreview(comment.Content, 120),
		},
	})
	return comment, nil
}

// GetTicket returns a ticket together with its comments and audit timeline.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	timeline, err := s.audit.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Comments: comments, Timeline: timeline}, nil
}

// ListTickets returns a page of tickets plus the total match count.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, int, error) {
	items, total, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   filter.Statuses,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return items, total, nil
}

func (s *TicketService) publishUpdateEvents(ctx context.Context, actor domain.Principal, snapshot, updated *domain.Ticket) {
	if updated.Status != snapshot.Status {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: updated.ID,
			ActorID:  actor.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: snapshot.Status,
				NewStatus: updated.Status,
			},
		})
	}
	if assigneeChanged(snapshot.AssigneeID, updated.AssigneeID) {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: updated.ID,
			ActorID:  actor.ID,
			Payload: events.TicketAssignedPayload{
				AssigneeID: derefOrEmpty(updated.AssigneeID),
			},
		})
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func assigneeChanged(before, after *string) bool {
	switch {
	case before == nil && after == nil:
		return false
	case before == nil || after == nil:
		return true
	default:
		return *before != *after
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	if max <= 3 {
		return body[:max]
	}
	return body[:max-3] + "..."
}
