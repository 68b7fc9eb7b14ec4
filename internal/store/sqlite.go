package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/punchamoorthee/lendex/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id             INTEGER NOT NULL,
	ticket_type          TEXT    NOT NULL CHECK (ticket_type IN ('lending_offer', 'borrowing_request')),
	status               TEXT    NOT NULL CHECK (status IN ('active', 'pending', 'closed', 'expired')),
	title                TEXT    NOT NULL,
	description          TEXT    NOT NULL,
	amount               REAL    NOT NULL CHECK (amount > 0),
	interest_rate        REAL    NOT NULL CHECK (interest_rate BETWEEN 0 AND 100),
	term_months          INTEGER NOT NULL CHECK (term_months BETWEEN 1 AND 360),
	flexible_terms       INTEGER NOT NULL DEFAULT 0,
	min_amount           REAL,
	max_amount           REAL,
	min_interest_rate    REAL,
	max_interest_rate    REAL,
	min_term_months      INTEGER,
	max_term_months      INTEGER,
	loan_type            TEXT    NOT NULL,
	loan_purpose         TEXT    NOT NULL,
	warranty_type        TEXT    NOT NULL,
	warranty_description TEXT    NOT NULL DEFAULT '',
	warranty_value       REAL,
	requirements         TEXT    NOT NULL DEFAULT '',
	location             TEXT    NOT NULL DEFAULT '',
	is_public            INTEGER NOT NULL DEFAULT 1,
	views_count          INTEGER NOT NULL DEFAULT 0,
	responses_count      INTEGER NOT NULL DEFAULT 0,
	deals_created        INTEGER NOT NULL DEFAULT 0,
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	expires_at           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_owner_id ON tickets (owner_id);
CREATE INDEX IF NOT EXISTS idx_tickets_ticket_type ON tickets (ticket_type);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets (status);
CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets (created_at);

CREATE TABLE IF NOT EXISTS connections (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	initiator_id           INTEGER NOT NULL,
	counterpart_id         INTEGER NOT NULL,
	status                 TEXT    NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected', 'blocked', 'expired')),
	direction              TEXT    NOT NULL CHECK (direction IN ('borrowing', 'lending')),
	source_ticket_id       INTEGER,
	proposed_amount        REAL,
	proposed_interest_rate REAL,
	proposed_term_months   INTEGER,
	message                TEXT    NOT NULL DEFAULT '',
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL,
	CHECK (initiator_id <> counterpart_id)
);
CREATE INDEX IF NOT EXISTS idx_connections_source_ticket_id ON connections (source_ticket_id);
CREATE INDEX IF NOT EXISTS idx_connections_initiator_id ON connections (initiator_id);
CREATE INDEX IF NOT EXISTS idx_connections_counterpart_id ON connections (counterpart_id);
CREATE INDEX IF NOT EXISTS idx_connections_status_created_at ON connections (status, created_at);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	user_id       INTEGER NOT NULL,
	key           TEXT    NOT NULL,
	request_hash  TEXT    NOT NULL,
	connection_id INTEGER,
	PRIMARY KEY (user_id, key)
);
`

// SQLiteStore is the embedded backend for local runs and tests. Every write
// runs in a BEGIN IMMEDIATE transaction, which takes the database write
// lock up front, so status changes and deal creation serialize the same way
// they do under row locks in Postgres. Timestamps are stored as Unix nanoseconds.
type SQLiteStore struct {
	pool *sqlitex.Pool
}

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(ctx context.Context, path string, poolSize int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", path, err)
	}

	s := &SQLiteStore{pool: pool}
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite store: creating schema: %w", err)
	}
	return s, nil
}

// sqliteLower is registered on every connection. SQLite's built-in lower()
// folds ASCII only, which would disagree with strings.ToLower on "ZÜRICH".
const sqliteLower = "lendex_lower"

func prepareConn(conn *sqlite.Conn) error {
	err := conn.CreateFunction(sqliteLower, &sqlite.FunctionImpl{
		NArgs:         1,
		Deterministic: true,
		Scalar: func(_ sqlite.Context, args []sqlite.Value) (sqlite.Value, error) {
			if args[0].Type() == sqlite.TypeNull {
				return sqlite.Value{}, nil
			}
			return sqlite.TextValue(strings.ToLower(args[0].Text())), nil
		},
	})
	if err != nil {
		return fmt.Errorf("registering %s: %w", sqliteLower, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return classifySQLite(err)
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// withTx runs fn inside an IMMEDIATE transaction that commits when fn
// returns nil and rolls back otherwise.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(conn *sqlite.Conn) error) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return classifySQLite(err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return classifySQLite(fmt.Errorf("begin transaction: %w", err))
	}
	defer endTransaction(&err)
	return fn(conn)
}

func readTicket(stmt *sqlite.Stmt) (*domain.Ticket, error) {
	t := domain.Ticket{
		ID:              stmt.ColumnInt64(0),
		OwnerID:         stmt.ColumnInt64(1),
		Title:           stmt.ColumnText(4),
		Description:     stmt.ColumnText(5),
		Amount:          stmt.ColumnFloat(6),
		InterestRate:    stmt.ColumnFloat(7),
		TermMonths:      stmt.ColumnInt(8),
		FlexibleTerms:   stmt.ColumnInt(9) != 0,
		MinAmount:       columnFloat(stmt, 10),
		MaxAmount:       columnFloat(stmt, 11),
		MinInterestRate: columnFloat(stmt, 12),
		MaxInterestRate: columnFloat(stmt, 13),
		MinTermMonths:   columnInt(stmt, 14),
		MaxTermMonths:   columnInt(stmt, 15),
		LoanPurpose:     stmt.ColumnText(17),
		Warranty: domain.Warranty{
			Description: stmt.ColumnText(19),
			Value:       columnFloat(stmt, 20),
		},
		Requirements:   stmt.ColumnText(21),
		Location:       stmt.ColumnText(22),
		IsPublic:       stmt.ColumnInt(23) != 0,
		ViewsCount:     stmt.ColumnInt64(24),
		ResponsesCount: stmt.ColumnInt64(25),
		DealsCreated:   stmt.ColumnInt64(26),
		CreatedAt:      fromNanos(stmt.ColumnInt64(27)),
		UpdatedAt:      fromNanos(stmt.ColumnInt64(28)),
		ExpiresAt:      fromNanos(stmt.ColumnInt64(29)),
	}
	err := decodeTicketEnums(&t, stmt.ColumnText(2), stmt.ColumnText(3), stmt.ColumnText(16), stmt.ColumnText(18))
	if err != nil {
		return nil, fmt.Errorf("ticket %d: %w", t.ID, err)
	}
	return &t, nil
}

func readConnection(stmt *sqlite.Stmt) (*domain.Connection, error) {
	c := domain.Connection{
		ID:                   stmt.ColumnInt64(0),
		InitiatorID:          stmt.ColumnInt64(1),
		CounterpartID:        stmt.ColumnInt64(2),
		ProposedAmount:       columnFloat(stmt, 6),
		ProposedInterestRate: columnFloat(stmt, 7),
		ProposedTermMonths:   columnInt(stmt, 8),
		Message:              stmt.ColumnText(9),
		CreatedAt:            fromNanos(stmt.ColumnInt64(10)),
		UpdatedAt:            fromNanos(stmt.ColumnInt64(11)),
	}
	if !stmt.ColumnIsNull(5) {
		id := stmt.ColumnInt64(5)
		c.SourceTicketID = &id
	}
	if err := decodeConnectionEnums(&c, stmt.ColumnText(3), stmt.ColumnText(4)); err != nil {
		return nil, fmt.Errorf("connection %d: %w", c.ID, err)
	}
	return &c, nil
}

// queryTickets runs query and decodes every row as a ticket.
func queryTickets(conn *sqlite.Conn, query string, args []any) ([]domain.Ticket, error) {
	var tickets []domain.Ticket
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			t, err := readTicket(stmt)
			if err != nil {
				return err
			}
			tickets = append(tickets, *t)
			return nil
		},
	})
	return tickets, err
}

func queryConnections(conn *sqlite.Conn, query string, args []any) ([]domain.Connection, error) {
	var out []domain.Connection
	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			c, err := readConnection(stmt)
			if err != nil {
				return err
			}
			out = append(out, *c)
			return nil
		},
	})
	return out, err
}

func loadTicket(conn *sqlite.Conn, id int64) (*domain.Ticket, error) {
	tickets, err := queryTickets(conn, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", []any{id})
	if err != nil {
		return nil, classifySQLite(err)
	}
	if len(tickets) == 0 {
		return nil, domain.ErrTicketNotFound
	}
	return &tickets[0], nil
}

func loadConnection(conn *sqlite.Conn, id int64) (*domain.Connection, error) {
	out, err := queryConnections(conn, "SELECT "+connectionColumns+" FROM connections WHERE id = ?", []any{id})
	if err != nil {
		return nil, classifySQLite(err)
	}
	if len(out) == 0 {
		return nil, domain.ErrConnectionNotFound
	}
	return &out[0], nil
}

func (s *SQLiteStore) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `INSERT INTO tickets (
			owner_id, ticket_type, status, title, description,
			amount, interest_rate, term_months, flexible_terms,
			min_amount, max_amount, min_interest_rate, max_interest_rate, min_term_months, max_term_months,
			loan_type, loan_purpose, warranty_type, warranty_description, warranty_value,
			requirements, location, is_public, created_at, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				t.OwnerID, string(t.Type), string(t.Status), t.Title, t.Description,
				t.Amount, t.InterestRate, t.TermMonths, boolInt(t.FlexibleTerms),
				floatArg(t.MinAmount), floatArg(t.MaxAmount), floatArg(t.MinInterestRate), floatArg(t.MaxInterestRate),
				intArg(t.MinTermMonths), intArg(t.MaxTermMonths),
				string(t.LoanType), t.LoanPurpose, string(t.Warranty.Type), t.Warranty.Description, floatArg(t.Warranty.Value),
				t.Requirements, t.Location, boolInt(t.IsPublic),
				t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano(), t.ExpiresAt.UnixNano(),
			}})
		if err != nil {
			return classifySQLite(fmt.Errorf("ticket insert failed: %w", err))
		}
		t.ID = conn.LastInsertRowID()
		return nil
	})
}

func (s *SQLiteStore) GetTicket(ctx context.Context, id int64) (t *domain.Ticket, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		t, err = loadTicket(conn, id)
		return err
	})
	return t, err
}

func (s *SQLiteStore) IncrementTicketViews(ctx context.Context, id int64) (views int64, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "UPDATE tickets SET views_count = views_count + 1 WHERE id = ? RETURNING views_count",
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					views = stmt.ColumnInt64(0)
					return nil
				},
			})
		if err != nil {
			return classifySQLite(err)
		}
		if conn.Changes() == 0 {
			return domain.ErrTicketNotFound
		}
		return nil
	})
	return views, err
}

func (s *SQLiteStore) UpdateTicket(ctx context.Context, id int64, mutate func(t *domain.Ticket) error) (t *domain.Ticket, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		t, err = loadTicket(conn, id)
		if err != nil {
			return err
		}
		if err := mutate(t); err != nil {
			return err
		}
		err := sqlitex.Execute(conn, `UPDATE tickets SET
			status = ?, title = ?, description = ?, amount = ?, interest_rate = ?, term_months = ?,
			flexible_terms = ?, min_amount = ?, max_amount = ?, min_interest_rate = ?, max_interest_rate = ?,
			min_term_months = ?, max_term_months = ?, loan_type = ?, loan_purpose = ?,
			warranty_type = ?, warranty_description = ?, warranty_value = ?,
			requirements = ?, location = ?, is_public = ?, updated_at = ?
			WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{
				string(t.Status), t.Title, t.Description, t.Amount, t.InterestRate, t.TermMonths,
				boolInt(t.FlexibleTerms), floatArg(t.MinAmount), floatArg(t.MaxAmount),
				floatArg(t.MinInterestRate), floatArg(t.MaxInterestRate),
				intArg(t.MinTermMonths), intArg(t.MaxTermMonths), string(t.LoanType), t.LoanPurpose,
				string(t.Warranty.Type), t.Warranty.Description, floatArg(t.Warranty.Value),
				t.Requirements, t.Location, boolInt(t.IsPublic), t.UpdatedAt.UnixNano(), id,
			}})
		return classifySQLite(err)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteStore) DeleteTicket(ctx context.Context, id int64, check func(t *domain.Ticket) error) error {
	return s.withTx(ctx, func(conn *sqlite.Conn) error {
		t, err := loadTicket(conn, id)
		if err != nil {
			return err
		}
		if err := check(t); err != nil {
			return err
		}
		return classifySQLite(sqlitex.Execute(conn, "DELETE FROM tickets WHERE id = ?", &sqlitex.ExecOptions{Args: []any{id}}))
	})
}

func (s *SQLiteStore) ListTickets(ctx context.Context, f domain.TicketFilter) (tickets []domain.Ticket, total int64, err error) {
	where, args := ticketWhere(&f, question, sqliteLower)
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "SELECT COUNT(*) FROM tickets"+where, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				total = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			return classifySQLite(err)
		}
		pageArgs := append(append([]any{}, args...), f.Limit, f.Offset())
		tickets, err = queryTickets(conn, "SELECT "+ticketColumns+" FROM tickets"+where+orderNewestFirst+" LIMIT ? OFFSET ?", pageArgs)
		return classifySQLite(err)
	})
	return tickets, total, err
}

func (s *SQLiteStore) TicketStats(ctx context.Context, ownerID int64) (*domain.TicketStats, error) {
	stats := domain.TicketStats{OwnerID: ownerID}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return classifySQLite(sqlitex.Execute(conn, statsQuery+"?", &sqlitex.ExecOptions{
			Args: []any{ownerID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.TotalTickets = stmt.ColumnInt64(0)
				stats.ActiveTickets = stmt.ColumnInt64(1)
				stats.TotalViews = stmt.ColumnInt64(2)
				stats.TotalResponses = stmt.ColumnInt64(3)
				stats.TotalDeals = stmt.ColumnInt64(4)
				return nil
			},
		}))
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SQLiteStore) CreateConnection(ctx context.Context, ticketID int64, key *domain.IdempotencyKey, build func(t *domain.Ticket) (*domain.Connection, error)) (c *domain.Connection, replayed bool, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		if key != nil {
			existing, err := claimKeySQLite(conn, key)
			if err != nil {
				return err
			}
			if existing != 0 {
				c, err = loadConnection(conn, existing)
				replayed = err == nil
				return err
			}
		}

		t, err := loadTicket(conn, ticketID)
		if err != nil {
			return err
		}
		if c, err = build(t); err != nil {
			return err
		}

		err = sqlitex.Execute(conn, `INSERT INTO connections (
			initiator_id, counterpart_id, status, direction, source_ticket_id,
			proposed_amount, proposed_interest_rate, proposed_term_months, message, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				c.InitiatorID, c.CounterpartID, string(c.Status), string(c.Direction), int64Arg(c.SourceTicketID),
				floatArg(c.ProposedAmount), floatArg(c.ProposedInterestRate), intArg(c.ProposedTermMonths),
				c.Message, c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano(),
			}})
		if err != nil {
			return classifySQLite(fmt.Errorf("connection insert failed: %w", err))
		}
		c.ID = conn.LastInsertRowID()

		err = sqlitex.Execute(conn, "UPDATE tickets SET deals_created = deals_created + 1 WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{ticketID}})
		if err != nil {
			return classifySQLite(fmt.Errorf("deal counter update failed: %w", err))
		}

		if key != nil {
			err = sqlitex.Execute(conn, "UPDATE idempotency_keys SET connection_id = ? WHERE user_id = ? AND key = ?",
				&sqlitex.ExecOptions{Args: []any{c.ID, key.UserID, key.Key}})
			if err != nil {
				return classifySQLite(fmt.Errorf("idempotency update failed: %w", err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, replayed, nil
}

func claimKeySQLite(conn *sqlite.Conn, key *domain.IdempotencyKey) (int64, error) {
	err := sqlitex.Execute(conn,
		"INSERT INTO idempotency_keys (user_id, key, request_hash) VALUES (?, ?, ?) ON CONFLICT DO NOTHING",
		&sqlitex.ExecOptions{Args: []any{key.UserID, key.Key, key.RequestHash}})
	if err != nil {
		return 0, classifySQLite(fmt.Errorf("key reservation failed: %w", err))
	}
	if conn.Changes() == 1 {
		return 0, nil
	}

	var (
		storedHash   string
		connectionID int64
	)
	err = sqlitex.Execute(conn, "SELECT request_hash, connection_id FROM idempotency_keys WHERE user_id = ? AND key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key.UserID, key.Key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				storedHash = stmt.ColumnText(0)
				if !stmt.ColumnIsNull(1) {
					connectionID = stmt.ColumnInt64(1)
				}
				return nil
			},
		})
	if err != nil {
		return 0, classifySQLite(fmt.Errorf("idempotency query failed: %w", err))
	}
	if storedHash != key.RequestHash {
		return 0, domain.ErrIdempotencyMismatch
	}
	if connectionID == 0 {
		return 0, domain.ErrIdempotencyConflict
	}
	return connectionID, nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, id int64) (c *domain.Connection, err error) {
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		c, err = loadConnection(conn, id)
		return err
	})
	return c, err
}

func (s *SQLiteStore) ListConnections(ctx context.Context, f domain.ConnectionFilter) (out []domain.Connection, err error) {
	where, args := connectionWhere(&f, question)
	err = s.withConn(ctx, func(conn *sqlite.Conn) error {
		out, err = queryConnections(conn, "SELECT "+connectionColumns+" FROM connections"+where+orderNewestFirst+" LIMIT ?",
			append(args, f.Limit))
		return classifySQLite(err)
	})
	return out, err
}

func (s *SQLiteStore) TransitionConnection(ctx context.Context, id int64, now time.Time, decide func(c *domain.Connection) (domain.Transition, error)) (c *domain.Connection, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		c, err = loadConnection(conn, id)
		if err != nil {
			return err
		}
		tr, err := decide(c)
		if err != nil {
			return err
		}
		err = sqlitex.Execute(conn, "UPDATE connections SET status = ?, updated_at = ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{string(tr.To), now.UnixNano(), id}})
		if err != nil {
			return classifySQLite(fmt.Errorf("connection update failed: %w", err))
		}
		if tr.CountsAsResponse && c.SourceTicketID != nil {
			err = sqlitex.Execute(conn, "UPDATE tickets SET responses_count = responses_count + 1 WHERE id = ?",
				&sqlitex.ExecOptions{Args: []any{*c.SourceTicketID}})
			if err != nil {
				return classifySQLite(fmt.Errorf("response counter update failed: %w", err))
			}
		}
		c.Status = tr.To
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) ExpireTickets(ctx context.Context, now time.Time) (n int64, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"UPDATE tickets SET status = 'expired', updated_at = ? WHERE status IN ('active', 'pending') AND expires_at <= ?",
			&sqlitex.ExecOptions{Args: []any{now.UnixNano(), now.UnixNano()}})
		n = int64(conn.Changes())
		return classifySQLite(err)
	})
	return n, err
}

func (s *SQLiteStore) ExpireConnections(ctx context.Context, cutoff, now time.Time) (n int64, err error) {
	err = s.withTx(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			"UPDATE connections SET status = 'expired', updated_at = ? WHERE status = 'pending' AND created_at <= ?",
			&sqlitex.ExecOptions{Args: []any{now.UnixNano(), cutoff.UnixNano()}})
		n = int64(conn.Changes())
		return classifySQLite(err)
	})
	return n, err
}

func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Transient(err)
	}
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked, sqlite.ResultInterrupt:
		return domain.Transient(err)
	}
	return err
}

func columnFloat(stmt *sqlite.Stmt, col int) *float64 {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	v := stmt.ColumnFloat(col)
	return &v
}

func columnInt(stmt *sqlite.Stmt, col int) *int {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	v := stmt.ColumnInt(col)
	return &v
}

func int64Arg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
