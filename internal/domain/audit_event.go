package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction tags the kind of mutation an audit event records.
type AuditAction string

const (
	AuditActionCreated       AuditAction = "CREATED"
	AuditActionStatusChanged AuditAction = "STATUS_CHANGED"
	AuditActionAssigned      AuditAction = "ASSIGNED"
	AuditActionCommentAdded  AuditAction = "COMMENT_ADDED"
)

// AuditDetails is the action-specific payload of an audit event. Each action
// has its own variant carrying only the fields relevant to it.
type AuditDetails interface {
	AuditAction() AuditAction
}

// CreatedDetails records the title a ticket was opened with.
type CreatedDetails struct {
	Title string `json:"title"`
}

// AuditAction implements AuditDetails.
func (CreatedDetails) AuditAction() AuditAction { return AuditActionCreated }

// StatusChangedDetails records a status transition.
type StatusChangedDetails struct {
	From TicketStatus `json:"from"`
	To   TicketStatus `json:"to"`
}

// AuditAction implements AuditDetails.
func (StatusChangedDetails) AuditAction() AuditAction { return AuditActionStatusChanged }

// AssignedDetails records an assignment change.
type AssignedDetails struct {
	To string `json:"to"`
}

// AuditAction implements AuditDetails.
func (AssignedDetails) AuditAction() AuditAction { return AuditActionAssigned }

// CommentAddedDetails links the event to the comment it records.
type CommentAddedDetails struct {
	CommentID string `json:"comment_id"`
}

// AuditAction implements AuditDetails.
func (CommentAddedDetails) AuditAction() AuditAction { return AuditActionCommentAdded }

// AuditEvent is an immutable audit trail entry for one ticket mutation.
// Events are append-only and ordered by creation time ascending.
type AuditEvent struct {
	ID        string
	TicketID  string
	ActorID   string
	Action    AuditAction
	Details   AuditDetails
	CreatedAt time.Time
}

// EncodeAuditDetails serializes a details variant for storage.
func EncodeAuditDetails(details AuditDetails) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}

// DecodeAuditDetails restores the details variant matching the action tag.
func DecodeAuditDetails(action AuditAction, raw []byte) (AuditDetails, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch action {
	case AuditActionCreated:
		var d CreatedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case AuditActionStatusChanged:
		var d StatusChangedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case AuditActionAssigned:
		var d AssignedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	case AuditActionCommentAdded:
		var d CommentAddedDetails
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
}
