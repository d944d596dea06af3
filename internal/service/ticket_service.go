package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
	"github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows: it validates input, persists
// the record and hands side effects to event subscribers.
type TicketService struct {
	tickets         repository.TicketRepository
	history         repository.TicketHistoryRepository
	dispatcher      events.Dispatcher
	logger          *zap.Logger
	defaultPriority string
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo      repository.TicketRepository
	HistoryRepo     repository.TicketHistoryRepository
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	DefaultPriority string
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title    string
	Body     string
	Priority string
	Channel  string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:         deps.TicketRepo,
		history:         deps.HistoryRepo,
		dispatcher:      deps.Dispatcher,
		logger:          logger,
		defaultPriority: strings.TrimSpace(deps.DefaultPriority),
	}
}

// CreateTicket persists a NEW ticket and returns it without waiting on any
// external integration.
func (s *TicketService) CreateTicket(ctx context.Context, actor string, input TicketCreateInput) (*domain.Ticket, error) {
	if problems := domain.ValidateNewTicket(input.Title, input.Body); problems != nil {
		return nil, errorutil.NewValidationError("invalid ticket", problems)
	}

	ticket := &domain.Ticket{
		Title:    strings.TrimSpace(input.Title),
		Body:     strings.TrimSpace(input.Body),
		Status:   domain.TicketStatusNew,
		Priority: strings.TrimSpace(input.Priority),
	}
	if ticket.Priority == "" {
		ticket.Priority = s.defaultPriority
	}
	if channel := strings.TrimSpace(input.Channel); channel != "" {
		ticket.NotificationChannel = &channel
	}

	saved, err := s.tickets.Save(ctx, ticket)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: saved.ID,
		Actor:    actorOrSystem(actor),
		Ticket:   saved.Clone(),
	})
	return saved, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}
	return ticket, nil
}

// ListTickets returns every ticket in a stable order.
func (s *TicketService) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.tickets.FindAll(ctx)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return tickets, nil
}

// TransitionStatus moves a ticket one step forward. The check and the write
// happen inside a single serialized store update.
func (s *TicketService) TransitionStatus(ctx context.Context, id string, newStatus domain.TicketStatus, actor string) (*domain.Ticket, error) {
	var oldStatus domain.TicketStatus
	updated, err := s.tickets.Update(ctx, id, func(ticket *domain.Ticket) error {
		oldStatus = ticket.Status
		return ticket.TransitionTo(newStatus)
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, errorutil.NewInvalidTransition(string(oldStatus), string(newStatus))
	}
	if err != nil {
		return nil, mapRepositoryError(err, id)
	}

	if err := s.recordStatusChange(ctx, actorOrSystem(actor), updated.ID, oldStatus, updated.Status); err != nil {
		s.logger.Warn("failed to record status history", zap.String("ticket_id", updated.ID), zap.Error(err))
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: updated.ID,
		Actor:    actorOrSystem(actor),
		Ticket:   updated.Clone(),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: updated.Status,
		},
	})
	return updated, nil
}

// ListHistory returns audit entries for a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, id string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, id)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return entries, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (s *TicketService) recordStatusChange(ctx context.Context, actor, ticketID string, oldStatus, newStatus domain.TicketStatus) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor,
		ChangeType: domain.ChangeTypeStatus,
		OldValue:   map[string]any{"status": oldStatus},
		NewValue:   map[string]any{"status": newStatus},
	}
	return s.history.Create(ctx, entry)
}

func mapRepositoryError(err error, id string) error {
	if errors.Is(err, repository.ErrTicketNotFound) {
		return errorutil.NewNotFound("ticket", map[string]any{"id": id})
	}
	return errorutil.NewInternalError(err)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return domain.SystemActor
	}
	return actor
}
