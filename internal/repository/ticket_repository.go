package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-orchestrator/internal/domain"
)

// ErrTicketNotFound is returned for unknown ticket ids.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketPatch mutates a ticket inside a serialized update. Returning an error
// aborts the update and leaves the stored record untouched.
type TicketPatch func(ticket *domain.Ticket) error

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	FindAll(ctx context.Context) ([]domain.Ticket, error)
	Update(ctx context.Context, id string, patch TicketPatch) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id::text, title, body, status, priority, external_issue_id, external_issue_key,
               external_issue_url, notification_channel, created_at, updated_at`

func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	const query = `
        INSERT INTO tickets (title, body, status, priority, notification_channel)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id::text, created_at, updated_at`
	saved := ticket.Clone()
	if err := r.pool.QueryRow(ctx, query,
		saved.Title,
		saved.Body,
		saved.Status,
		saved.Priority,
		saved.NotificationChannel,
	).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *ticketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTicketNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) FindAll(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// Update locks the row for the duration of the patch so concurrent updates to
// the same id are applied one after another.
func (r *ticketRepository) Update(ctx context.Context, id string, patch TicketPatch) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrTicketNotFound
	}
	var updated *domain.Ticket
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
		ticket, err := scanTicket(tx.QueryRow(ctx, query, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTicketNotFound
		}
		if err != nil {
			return err
		}
		if err := patch(ticket); err != nil {
			return err
		}

		var issueID, issueKey, issueURL *string
		if !ticket.ExternalIssue.IsZero() {
			issueID, issueKey, issueURL = &ticket.ExternalIssue.ID, &ticket.ExternalIssue.Key, &ticket.ExternalIssue.URL
		}
		const update = `
            UPDATE tickets SET title=$1, body=$2, status=$3, priority=$4, external_issue_id=$5,
                external_issue_key=$6, external_issue_url=$7, notification_channel=$8, updated_at=NOW()
            WHERE id=$9
            RETURNING updated_at`
		if err := tx.QueryRow(ctx, update,
			ticket.Title,
			ticket.Body,
			ticket.Status,
			ticket.Priority,
			issueID,
			issueKey,
			issueURL,
			ticket.NotificationChannel,
			ticket.ID,
		).Scan(&ticket.UpdatedAt); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket                       domain.Ticket
		issueID, issueKey, issueURL *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Body,
		&ticket.Status,
		&ticket.Priority,
		&issueID,
		&issueKey,
		&issueURL,
		&ticket.NotificationChannel,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if issueKey != nil && *issueKey != "" {
		ref := domain.ExternalIssueRef{Key: *issueKey}
		if issueID != nil {
			ref.ID = *issueID
		}
		if issueURL != nil {
			ref.URL = *issueURL
		}
		ticket.ExternalIssue = &ref
	}
	return &ticket, nil
}
