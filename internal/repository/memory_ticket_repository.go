package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// memoryTicketRepository keeps tickets in process memory. Used when no
// Postgres DSN is configured and in tests.
type memoryTicketRepository struct {
	mu      sync.Mutex
	order   []string
	tickets map[string]domain.Ticket
	now     func() time.Time
}

// NewMemoryTicketRepository builds an empty in-memory store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		tickets: map[string]domain.Ticket{},
		now:     time.Now,
	}
}

func (r *memoryTicketRepository) Save(_ context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	saved := ticket.Clone()
	saved.ID = uuid.NewString()
	now := r.now().UTC()
	saved.CreatedAt = now
	saved.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[saved.ID] = saved
	r.order = append(r.order, saved.ID)

	out := saved.Clone()
	return &out, nil
}

func (r *memoryTicketRepository) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	out := ticket.Clone()
	return &out, nil
}

func (r *memoryTicketRepository) FindAll(_ context.Context) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Ticket, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.tickets[id].Clone())
	}
	return result, nil
}

func (r *memoryTicketRepository) Update(_ context.Context, id string, patch TicketPatch) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	working := current.Clone()
	if err := patch(&working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = r.now().UTC()
	if !working.UpdatedAt.After(current.UpdatedAt) {
		working.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	r.tickets[id] = working

	out := working.Clone()
	return &out, nil
}
