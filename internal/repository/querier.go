package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors surfaced by repositories. Services translate these into
// caller-facing error kinds.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict indicates a conditional write found a version other
	// than the expected one. The stored record was left untouched.
	ErrVersionConflict = errors.New("version conflict")
)

// Querier is the subset of pgx operations repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same repository code runs
// against the pool or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the repositories bound to a single querier.
type Repositories struct {
	Tickets  TicketRepository
	Comments CommentRepository
	Audit    AuditLogRepository
}

// UnitOfWork runs a function against repositories bound to one transaction.
// Either every write inside the function becomes visible or none do.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(Repositories) error) error
}

type pgxUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork builds a transaction runner over the pgx pool.
func NewUnitOfWork(pool *pgxpool.Pool) UnitOfWork {
	return &pgxUnitOfWork{pool: pool}
}

func (u *pgxUnitOfWork) Do(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(Repositories{
			Tickets:  NewTicketRepository(tx),
			Comments: NewCommentRepository(tx),
			Audit:    NewAuditLogRepository(tx),
		})
	})
}
