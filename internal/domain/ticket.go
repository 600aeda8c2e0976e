package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// IsValid reports whether the status is a known lifecycle state.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// InitialTicketVersion is the version assigned on creation. Every successful
// conditional update increments the version by exactly one; the version is the
// sole token used to detect conflicting writes.
const InitialTicketVersion = 1

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Status      TicketStatus
	AssigneeID  *string
	CreatedByID string
	Version     int
	DueAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
