package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/lendex/internal/domain"
)

// Store is the persistence contract shared by the Postgres and SQLite
// backends. Methods that take a callback run it inside the transaction that
// holds the row lock, so the check and the write it guards are atomic.
type Store interface {
	CreateTicket(ctx context.Context, t *domain.Ticket) error
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)
	IncrementTicketViews(ctx context.Context, id int64) (int64, error)
	UpdateTicket(ctx context.Context, id int64, mutate func(t *domain.Ticket) error) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, id int64, check func(t *domain.Ticket) error) error
	ListTickets(ctx context.Context, f domain.TicketFilter) ([]domain.Ticket, int64, error)
	TicketStats(ctx context.Context, ownerID int64) (*domain.TicketStats, error)

	// CreateConnection locks the ticket, asks build for the connection,
	// inserts it and bumps deals_created, all in one transaction. With a
	// non-nil key, a repeated request returns the stored connection and true.
	CreateConnection(ctx context.Context, ticketID int64, key *domain.IdempotencyKey, build func(t *domain.Ticket) (*domain.Connection, error)) (*domain.Connection, bool, error)
	GetConnection(ctx context.Context, id int64) (*domain.Connection, error)
	ListConnections(ctx context.Context, f domain.ConnectionFilter) ([]domain.Connection, error)
	TransitionConnection(ctx context.Context, id int64, now time.Time, decide func(c *domain.Connection) (domain.Transition, error)) (*domain.Connection, error)

	ExpireTickets(ctx context.Context, now time.Time) (int64, error)
	ExpireConnections(ctx context.Context, cutoff, now time.Time) (int64, error)

	Close() error
}
