package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const MaxMessageLength = 2000

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
	ConnectionBlocked  ConnectionStatus = "blocked"
	ConnectionExpired  ConnectionStatus = "expired"
)

func (s ConnectionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	if v := ConnectionStatus(s); v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown connection status %q", s)
}

// transitions lists every legal edge. accepted only leads to blocked;
// rejected, blocked and expired lead nowhere.
var transitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionPending:  {ConnectionAccepted, ConnectionRejected, ConnectionBlocked, ConnectionExpired},
	ConnectionAccepted: {ConnectionBlocked},
	ConnectionRejected: nil,
	ConnectionBlocked:  nil,
	ConnectionExpired:  nil,
}

// Terminal reports whether no status change at all is possible from s.
func (s ConnectionStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to ConnectionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Direction is the side the initiator takes in the resulting deal.
type Direction string

const (
	DirectionBorrowing Direction = "borrowing"
	DirectionLending   Direction = "lending"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case DirectionBorrowing, DirectionLending:
		return d, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// DirectionFor derives the requester's side from the ticket they respond to:
// answering a lending offer means borrowing, answering a borrowing request means lending.
func DirectionFor(t TicketType) Direction {
	if t == LendingOffer {
		return DirectionBorrowing
	}
	return DirectionLending
}

// Connection is a deal between the initiator and the counterpart. Proposed
// terms are stored once and never rewritten.
type Connection struct {
	ID                   int64            `json:"id"`
	InitiatorID          int64            `json:"initiator_id"`
	CounterpartID        int64            `json:"counterpart_id"`
	Status               ConnectionStatus `json:"status"`
	Direction            Direction        `json:"direction"`
	SourceTicketID       *int64           `json:"source_ticket_id,omitempty"`
	ProposedAmount       *float64         `json:"proposed_amount,omitempty"`
	ProposedInterestRate *float64         `json:"proposed_interest_rate,omitempty"`
	ProposedTermMonths   *int             `json:"proposed_term_months,omitempty"`
	Message              string           `json:"message"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// DealRequest is the input to the deal converter.
type DealRequest struct {
	TicketID             int64    `json:"ticket_id"`
	Message              string   `json:"message"`
	ProposedAmount       *float64 `json:"proposed_amount,omitempty"`
	ProposedInterestRate *float64 `json:"proposed_interest_rate,omitempty"`
	ProposedTermMonths   *int     `json:"proposed_term_months,omitempty"`
}

func (r DealRequest) Validate() error {
	if r.TicketID <= 0 {
		return invalid("ticket_id", "is required")
	}
	if utf8.RuneCountInString(r.Message) > MaxMessageLength {
		return invalid("message", "must be at most %d characters", MaxMessageLength)
	}
	if v := r.ProposedAmount; v != nil && (*v <= 0 || !Finite(*v)) {
		return invalid("proposed_amount", "must be greater than 0")
	}
	if v := r.ProposedInterestRate; v != nil && (*v < 0 || *v > 100 || !Finite(*v)) {
		return invalid("proposed_interest_rate", "must be within [0, 100]")
	}
	if v := r.ProposedTermMonths; v != nil && (*v < 1 || *v > 360) {
		return invalid("proposed_term_months", "must be within [1, 360]")
	}
	return nil
}

// Role is how an actor relates to a connection.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleCounterpart
	RoleSystem
)

// RoleOf returns the role userID plays in c.
func (c *Connection) RoleOf(userID int64) Role {
	switch userID {
	case c.InitiatorID:
		return RoleInitiator
	case c.CounterpartID:
		return RoleCounterpart
	}
	return RoleNone
}

// Transition is a validated status change, ready to persist.
type Transition struct {
	From ConnectionStatus
	To   ConnectionStatus
	// CountsAsResponse is set when the counterpart answers the deal, so the
	// source ticket's responses_count is bumped alongside.
	CountsAsResponse bool
}

// CheckTransition applies the lifecycle rules for actor moving c to `to`.
// State is checked before role, so every request against a finished
// connection fails with ErrInvalidState regardless of who sent it.
func CheckTransition(c *Connection, actor Role, to ConnectionStatus) (Transition, error) {
	if actor == RoleNone {
		return Transition{}, ErrNotParty
	}
	if !to.Valid() {
		return Transition{}, invalid("status", "unknown status %q", to)
	}
	if !CanTransition(c.Status, to) {
		return Transition{}, InvalidState("connection %d cannot move from %s to %s", c.ID, c.Status, to)
	}
	switch to {
	case ConnectionExpired:
		if actor != RoleSystem {
			return Transition{}, InvalidState("connections only expire through the expiry sweep")
		}
	case ConnectionAccepted, ConnectionRejected:
		if actor != RoleCounterpart {
			return Transition{}, fmt.Errorf("%w: only the counterpart may %s", ErrAuthorization, verb(to))
		}
	}
	return Transition{
		From:             c.Status,
		To:               to,
		CountsAsResponse: to == ConnectionAccepted || to == ConnectionRejected,
	}, nil
}

func verb(s ConnectionStatus) string {
	if s == ConnectionAccepted {
		return "accept"
	}
	return "reject"
}

// Terms is a resolved set of financial terms. A nil field is unknown.
type Terms struct {
	Amount       *float64 `json:"amount"`
	InterestRate *float64 `json:"interest_rate"`
	TermMonths   *int     `json:"term_months"`
}

// EffectiveTerms resolves each term to the stored proposal, falling back to
// the source ticket's base terms. t is nil once the ticket has been deleted.
func (c *Connection) EffectiveTerms(t *Ticket) Terms {
	terms := Terms{
		Amount:       c.ProposedAmount,
		InterestRate: c.ProposedInterestRate,
		TermMonths:   c.ProposedTermMonths,
	}
	if t == nil {
		return terms
	}
	if terms.Amount == nil {
		v := t.Amount
		terms.Amount = &v
	}
	if terms.InterestRate == nil {
		v := t.InterestRate
		terms.InterestRate = &v
	}
	if terms.TermMonths == nil {
		v := t.TermMonths
		terms.TermMonths = &v
	}
	return terms
}

// ConnectionFilter selects a user's connections.
type ConnectionFilter struct {
	UserID int64
	Role   Role // RoleNone matches either side
	Status *ConnectionStatus
	Limit  int
}
