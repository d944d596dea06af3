package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus      TicketChangeType = "STATUS_CHANGE"
	ChangeTypeIssueLinked TicketChangeType = "ISSUE_LINKED"
)

// SystemActor marks changes made by the service itself.
const SystemActor = "system"

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  string
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
