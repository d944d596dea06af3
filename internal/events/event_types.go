package events

import (
	"time"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
)

// Event represents a domain event emitted by the lifecycle controller.
// Ticket is a snapshot of the persisted record at publish time.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	TicketID  string        `json:"ticket_id"`
	Actor     string        `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	Ticket    domain.Ticket `json:"-"`
	Payload   interface{}   `json:"payload,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}
