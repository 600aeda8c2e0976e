package domain

import "time"

// Comment is a message appended to a ticket thread. Comments are immutable
// once created and are removed together with their ticket.
type Comment struct {
	ID        string
	TicketID  string
	AuthorID  string
	Content   string
	CreatedAt time.Time
}
