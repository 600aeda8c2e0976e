package repository

import (
	"context"

	"github.com/helpdesk-mini/helpdesk/internal/domain"
)

// AuditLogRepository appends and reads immutable audit events. Append is
// expected to run inside the same transaction as the ticket mutation it
// records; if that transaction aborts, the event must not survive.
type AuditLogRepository interface {
	Append(ctx context.Context, event *domain.AuditEvent) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEvent, error)
}

type auditLogRepository struct {
	db Querier
}

// NewAuditLogRepository builds repository.
func NewAuditLogRepository(db Querier) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Append(ctx context.Context, event *domain.AuditEvent) error {
	details, err := domain.EncodeAuditDetails(event.Details)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO audit_events (ticket_id, actor_id, action, details)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		event.TicketID,
		event.ActorID,
		event.Action,
		details,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *auditLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditEvent, error) {
	const query = `
        SELECT id, ticket_id, actor_id, action, details, created_at
        FROM audit_events WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var raw []byte
		if err := rows.Scan(
			&event.ID,
			&event.TicketID,
			&event.ActorID,
			&event.Action,
			&raw,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		details, err := domain.DecodeAuditDetails(event.Action, raw)
		if err != nil {
			return nil, err
		}
		event.Details = details
		result = append(result, event)
	}
	return result, rows.Err()
}
