package domain

import "time"

// Role determines what ticket operations a principal may perform.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

// User is the account record behind an authenticated principal.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the resolved identity performing an operation. Handlers and
// services only ever see principals, never raw credentials.
type Principal struct {
	ID   string
	Name string
	Role Role
}

// CanManageTickets reports whether the principal may change ticket status or
// assignment.
func (p Principal) CanManageTickets() bool {
	return p.Role == RoleAgent || p.Role == RoleAdmin
}
