package dto

import (
	"time"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
	Channel  string `json:"channel"`
}

// UpdateTicketRequest payload. Only status is mutable through the API.
type UpdateTicketRequest struct {
	Status *string `json:"status"`
}

// TicketResponse is the public ticket representation.
type TicketResponse struct {
	ID                  string              `json:"id"`
	Title               string              `json:"title"`
	Body                string              `json:"body"`
	Status              domain.TicketStatus `json:"status"`
	Priority            string              `json:"priority"`
	ExternalIssueRef    *string             `json:"externalIssueRef"`
	ExternalIssueURL    *string             `json:"externalIssueUrl,omitempty"`
	NotificationChannel *string             `json:"notificationChannel"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// TicketHistoryResponse describes an audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangedBy  string                  `json:"changedBy"`
	ChangeType domain.TicketChangeType `json:"changeType"`
	OldValue   map[string]any          `json:"oldValue"`
	NewValue   map[string]any          `json:"newValue"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// NewTicketResponse maps the domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:                  ticket.ID,
		Title:               ticket.Title,
		Body:                ticket.Body,
		Status:              ticket.Status,
		Priority:            ticket.Priority,
		NotificationChannel: ticket.NotificationChannel,
		CreatedAt:           ticket.CreatedAt,
		UpdatedAt:           ticket.UpdatedAt,
	}
	if !ticket.ExternalIssue.IsZero() {
		key := ticket.ExternalIssue.Key
		resp.ExternalIssueRef = &key
		if ticket.ExternalIssue.URL != "" {
			url := ticket.ExternalIssue.URL
			resp.ExternalIssueURL = &url
		}
	}
	return resp
}

// NewTicketHistoryResponses maps audit entries.
func NewTicketHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	items := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, TicketHistoryResponse{
			ID:         entry.ID,
			ChangedBy:  entry.ChangedBy,
			ChangeType: entry.ChangeType,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return items
}
