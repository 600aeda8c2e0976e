package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helpdesk-mini/helpdesk/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketChanges describes the fields a conditional update may touch. A nil
// Status leaves the status unchanged; AssigneeSet distinguishes "assign to
// AssigneeID (possibly nil, meaning unassign)" from "leave assignment alone".
type TicketChanges struct {
	Status      *domain.TicketStatus
	AssigneeID  *string
	AssigneeSet bool
}

// Empty reports whether the change set touches nothing.
func (c TicketChanges) Empty() bool {
	return c.Status == nil && !c.AssigneeSet
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// ConditionalUpdate applies changes and bumps the version by one, but
	// only if the stored version still equals expectedVersion. The check and
	// the write are a single UPDATE statement, so concurrent callers cannot
	// both see the same version and both succeed. Returns ErrVersionConflict
	// or ErrNotFound without modifying the record.
	ConditionalUpdate(ctx context.Context, id string, expectedVersion int, changes TicketChanges) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
}

type ticketRepository struct {
	db Querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db Querier) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, title, description, status, assignee_id, created_by_id, version, due_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, assignee_id, created_by_id, version, due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.AssigneeID,
		ticket.CreatedByID,
		ticket.Version,
		ticket.DueAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ConditionalUpdate(ctx context.Context, id string, expectedVersion int, changes TicketChanges) (*domain.Ticket, error) {
	sets := []string{"version = version + 1", "updated_at = NOW()"}
	args := []any{}

	if changes.Status != nil {
		args = append(args, *changes.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if changes.AssigneeSet {
		args = append(args, changes.AssigneeID)
		sets = append(sets, fmt.Sprintf("assignee_id=$%d", len(args)))
	}

	args = append(args, id)
	idPos := len(args)
	args = append(args, expectedVersion)
	versionPos := len(args)

	query := fmt.Sprintf(`UPDATE tickets SET %s WHERE id=$%d AND version=$%d RETURNING %s`,
		strings.Join(sets, ", "), idPos, versionPos, ticketColumns)

	var ticket domain.Ticket
	err := scanTicket(r.db.QueryRow(ctx, query, args...), &ticket)
	if err == nil {
		return &ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// The conditioned write matched no row: either the ticket is gone or the
	// stored version moved on. Probe to tell the two apart.
	var current int
	probeErr := r.db.QueryRow(ctx, `SELECT version FROM tickets WHERE id=$1`, id).Scan(&current)
	if errors.Is(probeErr, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if probeErr != nil {
		return nil, probeErr
	}
	return nil, ErrVersionConflict
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			`(LOWER(title) LIKE %s OR LOWER(description) LIKE %s
              OR EXISTS (SELECT 1 FROM comments c WHERE c.ticket_id = tickets.id AND LOWER(c.content) LIKE %s))`,
			placeholder, placeholder, placeholder))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, where)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, 0, err
		}
		result = append(result, ticket)
	}
	return result, total, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.AssigneeID,
		&ticket.CreatedByID,
		&ticket.Version,
		&ticket.DueAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}
