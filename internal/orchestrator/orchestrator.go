// Package orchestrator runs the external side effects of ticket lifecycle
// events. Each adapter call is its own failure domain and nothing here can
// fail or roll back the ticket record that triggered it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/adapters/issuetracker"
	"github.com/spec-kit/ticket-orchestrator/internal/adapters/notification"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/events"
	"github.com/spec-kit/ticket-orchestrator/internal/observability"
	"github.com/spec-kit/ticket-orchestrator/internal/repository"
)

// IssueTracker creates a remote issue for a ticket. A nil ref with a nil
// error means the integration is switched off.
type IssueTracker interface {
	CreateIssue(ctx context.Context, ticket domain.Ticket) (*domain.ExternalIssueRef, error)
}

// Notifier announces ticket events.
type Notifier interface {
	NotifyCreated(ctx context.Context, ticket domain.Ticket) error
	NotifyStatusChanged(ctx context.Context, ticket domain.Ticket) error
}

// switchable is implemented by adapters that configuration can turn off.
type switchable interface {
	Enabled() bool
}

// adapterEnabled treats a missing adapter as disabled and one without an
// Enabled method as always on.
func adapterEnabled(adapter any) bool {
	if adapter == nil {
		return false
	}
	if s, ok := adapter.(switchable); ok {
		return s.Enabled()
	}
	return true
}

// State is the progress of one creation orchestration.
type State string

const (
	StatePending         State = "PENDING"
	StateIssueAttempted  State = "ISSUE_ATTEMPTED"
	StateNotifyAttempted State = "NOTIFY_ATTEMPTED"
	StateDone            State = "DONE"
)

// Outcome records what one creation orchestration achieved.
type Outcome struct {
	RunID     string
	TicketID  string
	State     State
	Skipped   bool
	IssueRef  *domain.ExternalIssueRef
	IssueErr  error
	NotifyErr error
	UpdateErr error
}

// Dependencies bundles collaborators for the orchestrator.
type Dependencies struct {
	Tickets  repository.TicketRepository
	History  repository.TicketHistoryRepository
	Issues   IssueTracker
	Notifier Notifier
	Guard    Guard
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Orchestrator runs integrations in background goroutines bound to its own
// lifetime rather than the triggering request.
type Orchestrator struct {
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository
	issues   IssueTracker
	notifier Notifier
	guard    Guard
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

// New constructs the orchestrator.
func New(deps Dependencies) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := deps.Guard
	if guard == nil {
		guard = NewMemoryGuard(DefaultGuardTTL)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		tickets:  deps.Tickets,
		history:  deps.History,
		issues:   deps.Issues,
		notifier: deps.Notifier,
		guard:    guard,
		logger:   logger.With(zap.String("component", "orchestrator")),
		metrics:  deps.Metrics,
		tracer:   otel.Tracer("github.com/spec-kit/ticket-orchestrator/internal/orchestrator"),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// RegisterHandlers subscribes to lifecycle events. Handlers return immediately.
func (o *Orchestrator) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventTicketCreated, func(_ context.Context, event events.Event) error {
		ticket := event.Ticket.Clone()
		o.spawn(ticket.ID, func(ctx context.Context) { o.RunCreated(ctx, ticket) })
		return nil
	})
	dispatcher.Subscribe(events.EventTicketStatusChanged, func(_ context.Context, event events.Event) error {
		ticket := event.Ticket.Clone()
		o.spawn(ticket.ID, func(ctx context.Context) { _ = o.RunStatusChanged(ctx, ticket) })
		return nil
	})
}

func (o *Orchestrator) spawn(ticketID string, run func(ctx context.Context)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.Warn("orchestrator stopped; dropping integration work", zap.String("ticket_id", ticketID))
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("orchestration panicked", zap.String("ticket_id", ticketID), zap.Any("panic", r))
			}
		}()
		run(o.baseCtx)
	}()
}

// RunCreated drives PENDING -> ISSUE_ATTEMPTED -> NOTIFY_ATTEMPTED -> DONE for a
// newly persisted ticket. The issue reference is written back with one update
// only when issue creation succeeded.
func (o *Orchestrator) RunCreated(ctx context.Context, ticket domain.Ticket) Outcome {
	outcome := Outcome{RunID: uuid.NewString(), TicketID: ticket.ID, State: StatePending}
	log := o.logger.With(zap.String("ticket_id", ticket.ID), zap.String("run_id", outcome.RunID))

	ctx, span := o.tracer.Start(ctx, "orchestrator.ticket_created",
		trace.WithAttributes(attribute.String("ticket.id", ticket.ID)))
	defer span.End()

	claimed, err := o.guard.Claim(ctx, createdKey(ticket.ID), outcome.RunID)
	if err != nil {
		log.Warn("orchestration guard unavailable; proceeding", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("ticket already orchestrated; skipping")
		outcome.Skipped = true
		outcome.State = StateDone
		return outcome
	}

	outcome.IssueRef, outcome.IssueErr = o.createIssue(ctx, ticket)
	outcome.State = StateIssueAttempted

	annotated := ticket.Clone()
	if outcome.IssueRef != nil {
		annotated.ExternalIssue = outcome.IssueRef
	}
	outcome.NotifyErr = o.notify(ctx, "notify_created", ticket.ID, func(ctx context.Context) error {
		return o.notifier.NotifyCreated(ctx, annotated)
	})
	outcome.State = StateNotifyAttempted

	if outcome.IssueRef != nil {
		outcome.UpdateErr = o.linkIssue(ctx, ticket.ID, *outcome.IssueRef)
		if outcome.UpdateErr != nil {
			log.Error("failed to record external issue reference",
				zap.String("issue_key", outcome.IssueRef.Key), zap.Error(outcome.UpdateErr))
		}
	}
	outcome.State = StateDone

	if outcome.IssueErr != nil || outcome.NotifyErr != nil || outcome.UpdateErr != nil {
		span.SetStatus(codes.Error, "one or more integrations failed")
	}
	fields := []zap.Field{
		zap.Bool("issue_ok", outcome.IssueErr == nil),
		zap.Bool("notify_ok", outcome.NotifyErr == nil),
	}
	if outcome.IssueRef != nil {
		fields = append(fields, zap.String("issue_key", outcome.IssueRef.Key))
	}
	log.Info("orchestration completed", fields...)
	return outcome
}

// RunStatusChanged announces a status change. The issue tracker is not involved.
func (o *Orchestrator) RunStatusChanged(ctx context.Context, ticket domain.Ticket) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ticket_status_changed",
		trace.WithAttributes(
			attribute.String("ticket.id", ticket.ID),
			attribute.String("ticket.status", string(ticket.Status)),
		))
	defer span.End()

	return o.notify(ctx, "notify_status_changed", ticket.ID, func(ctx context.Context) error {
		return o.notifier.NotifyStatusChanged(ctx, ticket)
	})
}

func (o *Orchestrator) notify(ctx context.Context, operation, ticketID string, call func(context.Context) error) error {
	if !adapterEnabled(o.notifier) {
		o.metrics.RecordIntegration(notification.AdapterName, operation, observability.OutcomeDisabled)
		return nil
	}
	return o.attempt(ctx, notification.AdapterName, operation, ticketID, call)
}

func (o *Orchestrator) createIssue(ctx context.Context, ticket domain.Ticket) (*domain.ExternalIssueRef, error) {
	if !adapterEnabled(o.issues) {
		o.metrics.RecordIntegration(issuetracker.AdapterName, "create_issue", observability.OutcomeDisabled)
		return nil, nil
	}
	var ref *domain.ExternalIssueRef
	err := o.attempt(ctx, issuetracker.AdapterName, "create_issue", ticket.ID, func(ctx context.Context) error {
		created, err := o.issues.CreateIssue(ctx, ticket)
		if err != nil {
			return err
		}
		ref = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		return nil, nil
	}
	return ref, nil
}

// attempt runs one adapter call in isolation: panics become errors and every
// failure is logged with the ticket id and adapter name.
func (o *Orchestrator) attempt(ctx context.Context, adapter, operation, ticketID string, call func(context.Context) error) (err error) {
	ctx, span := o.tracer.Start(ctx, adapter+"."+operation)
	defer span.End()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", adapter, r)
		}
		outcome := observability.OutcomeSuccess
		if err != nil {
			outcome = observability.OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error("integration failed",
				zap.String("ticket_id", ticketID),
				zap.String("adapter", adapter),
				zap.String("operation", operation),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		}
		o.metrics.RecordIntegration(adapter, operation, outcome)
	}()

	return call(ctx)
}

func (o *Orchestrator) linkIssue(ctx context.Context, ticketID string, ref domain.ExternalIssueRef) error {
	_, err := o.tickets.Update(ctx, ticketID, func(ticket *domain.Ticket) error {
		return ticket.LinkExternalIssue(ref)
	})
	if errors.Is(err, domain.ErrExternalIssueLinked) {
		o.logger.Warn("ticket already linked to an issue; keeping existing reference",
			zap.String("ticket_id", ticketID), zap.String("issue_key", ref.Key))
		return nil
	}
	if err != nil {
		return err
	}
	if o.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  domain.SystemActor,
		ChangeType: domain.ChangeTypeIssueLinked,
		OldValue:   map[string]any{},
		NewValue: map[string]any{
			"issue_id":  ref.ID,
			"issue_key": ref.Key,
			"issue_url": ref.URL,
		},
	}
	if err := o.history.Create(ctx, entry); err != nil {
		o.logger.Warn("failed to record issue link history", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	return nil
}

// Wait blocks until all spawned work has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops accepting work and cancels in-flight attempts. It returns
// ctx.Err() if goroutines have not observed cancellation before ctx ends.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
