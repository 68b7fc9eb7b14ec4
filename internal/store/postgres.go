package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/lendex/internal/domain"
)

// PostgresStore persists tickets and connections in PostgreSQL. Writes that
// change status take a row lock with SELECT ... FOR UPDATE.
type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.Db.Close()
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*domain.Ticket, error) {
	var (
		t                                           domain.Ticket
		ticketType, status, loanType, warrantyType string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &ticketType, &status, &t.Title, &t.Description,
		&t.Amount, &t.InterestRate, &t.TermMonths, &t.FlexibleTerms,
		&t.MinAmount, &t.MaxAmount, &t.MinInterestRate, &t.MaxInterestRate, &t.MinTermMonths, &t.MaxTermMonths,
		&loanType, &t.LoanPurpose, &warrantyType, &t.Warranty.Description, &t.Warranty.Value,
		&t.Requirements, &t.Location, &t.IsPublic, &t.ViewsCount, &t.ResponsesCount, &t.DealsCreated,
		&t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := decodeTicketEnums(&t, ticketType, status, loanType, warrantyType); err != nil {
		return nil, fmt.Errorf("ticket %d: %w", t.ID, err)
	}
	return &t, nil
}

func scanConnection(row scanner) (*domain.Connection, error) {
	var (
		c                 domain.Connection
		status, direction string
	)
	err := row.Scan(&c.ID, &c.InitiatorID, &c.CounterpartID, &status, &direction, &c.SourceTicketID,
		&c.ProposedAmount, &c.ProposedInterestRate, &c.ProposedTermMonths, &c.Message, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeConnectionEnums(&c, status, direction); err != nil {
		return nil, fmt.Errorf("connection %d: %w", c.ID, err)
	}
	return &c, nil
}

// CreateTicket inserts t and sets its ID.
func (s *PostgresStore) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	err := s.Db.QueryRow(ctx, `INSERT INTO tickets (
		owner_id, ticket_type, status, title, description,
		amount, interest_rate, term_months, flexible_terms,
		min_amount, max_amount, min_interest_rate, max_interest_rate, min_term_months, max_term_months,
		loan_type, loan_purpose, warranty_type, warranty_description, warranty_value,
		requirements, location, is_public, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		RETURNING id`,
		t.OwnerID, string(t.Type), string(t.Status), t.Title, t.Description,
		t.Amount, t.InterestRate, t.TermMonths, t.FlexibleTerms,
		t.MinAmount, t.MaxAmount, t.MinInterestRate, t.MaxInterestRate, t.MinTermMonths, t.MaxTermMonths,
		string(t.LoanType), t.LoanPurpose, string(t.Warranty.Type), t.Warranty.Description, t.Warranty.Value,
		t.Requirements, t.Location, t.IsPublic, t.CreatedAt, t.UpdatedAt, t.ExpiresAt,
	).Scan(&t.ID)
	if err != nil {
		return classify(fmt.Errorf("ticket insert failed: %w", err))
	}
	return nil
}

// GetTicket retrieves a single ticket by ID.
func (s *PostgresStore) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	t, err := scanTicket(s.Db.QueryRow(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return t, nil
}

// IncrementTicketViews bumps views_count in place and returns the new value.
func (s *PostgresStore) IncrementTicketViews(ctx context.Context, id int64) (int64, error) {
	var views int64
	err := s.Db.QueryRow(ctx,
		"UPDATE tickets SET views_count = views_count + 1 WHERE id = $1 RETURNING views_count", id,
	).Scan(&views)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrTicketNotFound
	}
	return views, classify(err)
}

// UpdateTicket locks the row, lets mutate edit it, and writes it back. If
// mutate fails nothing is written.
func (s *PostgresStore) UpdateTicket(ctx context.Context, id int64, mutate func(t *domain.Ticket) error) (*domain.Ticket, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	t, err := lockTicket(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(t); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE tickets SET
		status = $1, title = $2, description = $3, amount = $4, interest_rate = $5, term_months = $6,
		flexible_terms = $7, min_amount = $8, max_amount = $9, min_interest_rate = $10, max_interest_rate = $11,
		min_term_months = $12, max_term_months = $13, loan_type = $14, loan_purpose = $15,
		warranty_type = $16, warranty_description = $17, warranty_value = $18,
		requirements = $19, location = $20, is_public = $21, updated_at = $22
		WHERE id = $23`,
		string(t.Status), t.Title, t.Description, t.Amount, t.InterestRate, t.TermMonths,
		t.FlexibleTerms, t.MinAmount, t.MaxAmount, t.MinInterestRate, t.MaxInterestRate,
		t.MinTermMonths, t.MaxTermMonths, string(t.LoanType), t.LoanPurpose,
		string(t.Warranty.Type), t.Warranty.Description, t.Warranty.Value,
		t.Requirements, t.Location, t.IsPublic, t.UpdatedAt, id)
	if err != nil {
		return nil, classify(fmt.Errorf("ticket update failed: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("tx commit failed: %w", err))
	}
	return t, nil
}

// DeleteTicket removes the ticket if check allows it. Connections keep
// their source_ticket_id.
func (s *PostgresStore) DeleteTicket(ctx context.Context, id int64, check func(t *domain.Ticket) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	t, err := lockTicket(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := check(t); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM tickets WHERE id = $1", id); err != nil {
		return classify(fmt.Errorf("ticket delete failed: %w", err))
	}
	return classify(tx.Commit(ctx))
}

// ListTickets runs the page query and the count concurrently; each is a
// single statement and sees its own snapshot.
func (s *PostgresStore) ListTickets(ctx context.Context, f domain.TicketFilter) ([]domain.Ticket, int64, error) {
	where, args := ticketWhere(&f, dollar, "lower")

	var (
		total   int64
		tickets []domain.Ticket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Db.QueryRow(gctx, "SELECT COUNT(*) FROM tickets"+where, args...).Scan(&total)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())
		query := "SELECT " + ticketColumns + " FROM tickets" + where + orderNewestFirst +
			fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		rows, err := s.Db.Query(gctx, query, pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return err
			}
			tickets = append(tickets, *t)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, 0, classify(fmt.Errorf("ticket list failed: %w", err))
	}
	return tickets, total, nil
}

// TicketStats aggregates counters over one owner's tickets.
func (s *PostgresStore) TicketStats(ctx context.Context, ownerID int64) (*domain.TicketStats, error) {
	stats := domain.TicketStats{OwnerID: ownerID}
	err := s.Db.QueryRow(ctx, statsQuery+"$1", ownerID).Scan(
		&stats.TotalTickets, &stats.ActiveTickets, &stats.TotalViews, &stats.TotalResponses, &stats.TotalDeals)
	if err != nil {
		return nil, classify(fmt.Errorf("ticket stats failed: %w", err))
	}
	return &stats, nil
}

// CreateConnection is the deal transaction: lock the ticket, let build
// decide, insert the connection, bump deals_created, commit. With a key the
// key is claimed in the same transaction, and a replay returns the
// connection it produced the first time with replayed=true.
func (s *PostgresStore) CreateConnection(ctx context.Context, ticketID int64, key *domain.IdempotencyKey, build func(t *domain.Ticket) (*domain.Connection, error)) (*domain.Connection, bool, error) {
	// READ COMMITTED: concurrent deals on one ticket queue on the row lock
	// instead of aborting with serialization failures.
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, classify(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	if key != nil {
		existing, err := claimKey(ctx, tx, key)
		if err != nil {
			return nil, false, err
		}
		if existing != 0 {
			c, err := scanConnection(tx.QueryRow(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", existing))
			if err != nil {
				return nil, false, classify(err)
			}
			return c, true, nil
		}
	}

	t, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return nil, false, err
	}
	c, err := build(t)
	if err != nil {
		return nil, false, err
	}

	err = tx.QueryRow(ctx, `INSERT INTO connections (
		initiator_id, counterpart_id, status, direction, source_ticket_id,
		proposed_amount, proposed_interest_rate, proposed_term_months, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		c.InitiatorID, c.CounterpartID, string(c.Status), string(c.Direction), c.SourceTicketID,
		c.ProposedAmount, c.ProposedInterestRate, c.ProposedTermMonths, c.Message, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return nil, false, classify(fmt.Errorf("connection insert failed: %w", err))
	}

	if _, err := tx.Exec(ctx, "UPDATE tickets SET deals_created = deals_created + 1 WHERE id = $1", ticketID); err != nil {
		return nil, false, classify(fmt.Errorf("deal counter update failed: %w", err))
	}

	if key != nil {
		_, err := tx.Exec(ctx, "UPDATE idempotency_keys SET connection_id = $1 WHERE user_id = $2 AND key = $3",
			c.ID, key.UserID, key.Key)
		if err != nil {
			return nil, false, classify(fmt.Errorf("idempotency update failed: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, classify(fmt.Errorf("tx commit failed: %w", err))
	}
	return c, false, nil
}

// claimKey reserves key inside tx. It returns the connection a completed
// earlier request produced, or 0 when the key is fresh.
func claimKey(ctx context.Context, tx pgx.Tx, key *domain.IdempotencyKey) (int64, error) {
	tag, err := tx.Exec(ctx,
		"INSERT INTO idempotency_keys (user_id, key, request_hash) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		key.UserID, key.Key, key.RequestHash)
	if err != nil {
		return 0, classify(fmt.Errorf("key reservation failed: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return 0, nil
	}

	var (
		storedHash   string
		connectionID *int64
	)
	err = tx.QueryRow(ctx,
		"SELECT request_hash, connection_id FROM idempotency_keys WHERE user_id = $1 AND key = $2",
		key.UserID, key.Key,
	).Scan(&storedHash, &connectionID)
	if err != nil {
		return 0, classify(fmt.Errorf("idempotency query failed: %w", err))
	}
	if storedHash != key.RequestHash {
		return 0, domain.ErrIdempotencyMismatch
	}
	if connectionID == nil {
		return 0, domain.ErrIdempotencyConflict
	}
	return *connectionID, nil
}

func lockTicket(ctx context.Context, tx pgx.Tx, id int64) (*domain.Ticket, error) {
	t, err := scanTicket(tx.QueryRow(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("lock acquisition failed: %w", err))
	}
	return t, nil
}

// GetConnection retrieves one connection.
func (s *PostgresStore) GetConnection(ctx context.Context, id int64) (*domain.Connection, error) {
	c, err := scanConnection(s.Db.QueryRow(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// ListConnections returns a user's connections, newest first.
func (s *PostgresStore) ListConnections(ctx context.Context, f domain.ConnectionFilter) ([]domain.Connection, error) {
	where, args := connectionWhere(&f, dollar)
	query := "SELECT " + connectionColumns + " FROM connections" + where + orderNewestFirst +
		fmt.Sprintf(" LIMIT $%d", len(args)+1)
	rows, err := s.Db.Query(ctx, query, append(args, f.Limit)...)
	if err != nil {
		return nil, classify(fmt.Errorf("connection list failed: %w", err))
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *c)
	}
	return out, classify(rows.Err())
}

// TransitionConnection locks the connection, asks decide for the change,
// and applies it together with the source ticket's responses_count when
// the change is a response. Two racing callers serialize on the lock; the
// second one's decide sees the winner's status.
func (s *PostgresStore) TransitionConnection(ctx context.Context, id int64, now time.Time, decide func(c *domain.Connection) (domain.Transition, error)) (*domain.Connection, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, classify(fmt.Errorf("tx begin failed: %w", err))
	}
	defer tx.Rollback(ctx)

	c, err := scanConnection(tx.QueryRow(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("lock acquisition failed: %w", err))
	}

	tr, err := decide(c)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, "UPDATE connections SET status = $1, updated_at = $2 WHERE id = $3",
		string(tr.To), now, id)
	if err != nil {
		return nil, classify(fmt.Errorf("connection update failed: %w", err))
	}
	if tr.CountsAsResponse && c.SourceTicketID != nil {
		_, err = tx.Exec(ctx, "UPDATE tickets SET responses_count = responses_count + 1 WHERE id = $1", *c.SourceTicketID)
		if err != nil {
			return nil, classify(fmt.Errorf("response counter update failed: %w", err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify(fmt.Errorf("tx commit failed: %w", err))
	}
	c.Status = tr.To
	c.UpdatedAt = now
	return c, nil
}

// ExpireTickets marks every open ticket past its expiry as expired.
func (s *PostgresStore) ExpireTickets(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.Db.Exec(ctx,
		"UPDATE tickets SET status = 'expired', updated_at = $1 WHERE status IN ('active', 'pending') AND expires_at <= $1", now)
	if err != nil {
		return 0, classify(fmt.Errorf("ticket expiry failed: %w", err))
	}
	return tag.RowsAffected(), nil
}

// ExpireConnections expires pending connections created at or before cutoff.
func (s *PostgresStore) ExpireConnections(ctx context.Context, cutoff, now time.Time) (int64, error) {
	tag, err := s.Db.Exec(ctx,
		"UPDATE connections SET status = 'expired', updated_at = $1 WHERE status = 'pending' AND created_at <= $2", now, cutoff)
	if err != nil {
		return 0, classify(fmt.Errorf("connection expiry failed: %w", err))
	}
	return tag.RowsAffected(), nil
}

// classify marks timeouts, dropped connections and lock/serialization
// aborts as transient. Other errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return domain.Transient(err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return domain.Transient(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03",
			pgErr.Code == "57014", pgErr.Code == "57P01", pgErr.Code == "53300",
			strings.HasPrefix(pgErr.Code, "08"):
			return domain.Transient(err)
		}
	}
	return err
}
