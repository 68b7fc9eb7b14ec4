package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/models"
)

// DealService converts tickets into connections and drives the connection
// lifecycle.
type DealService struct {
	store Store
	opts  Options
}

func NewDealService(store Store, opts Options) *DealService {
	return &DealService{store: store, opts: opts.withDefaults()}
}

// CreateDeal opens a pending connection from requesterID to the owner of
// req.TicketID. The connection insert and the ticket's deals_created
// increment commit together. With a non-empty idempotencyKey a retried
// request returns the original connection and replayed=true.
func (s *DealService) CreateDeal(ctx context.Context, requesterID int64, req domain.DealRequest, idempotencyKey string) (c *domain.Connection, replayed bool, err error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	key, err := domain.NewIdempotencyKey(requesterID, idempotencyKey, req)
	if err != nil {
		return nil, false, err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	now := s.opts.Clock.Now()
	c, replayed, err = s.store.CreateConnection(ctx, req.TicketID, key, func(t *domain.Ticket) (*domain.Connection, error) {
		if t.Status != domain.TicketActive {
			return nil, domain.InvalidState("ticket %d is %s, deals need an active ticket", t.ID, t.Status)
		}
		if t.OwnerID == requesterID {
			return nil, domain.ErrSelfDeal
		}
		ticketID := t.ID
		return &domain.Connection{
			InitiatorID:          requesterID,
			CounterpartID:        t.OwnerID,
			Status:               domain.ConnectionPending,
			Direction:            domain.DirectionFor(t.Type),
			SourceTicketID:       &ticketID,
			ProposedAmount:       req.ProposedAmount,
			ProposedInterestRate: req.ProposedInterestRate,
			ProposedTermMonths:   req.ProposedTermMonths,
			Message:              req.Message,
			CreatedAt:            now,
			UpdatedAt:            now,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if replayed {
		dealReplays.Inc()
		return c, true, nil
	}
	dealsCreated.WithLabelValues(string(c.Direction)).Inc()
	s.opts.Logger.WithFields(logrus.Fields{
		"connection_id": c.ID,
		"ticket_id":     req.TicketID,
		"initiator_id":  c.InitiatorID,
		"counterpart":   c.CounterpartID,
		"direction":     c.Direction,
	}).Info("deal created")
	return c, false, nil
}

// Get returns a connection to one of its parties, with the terms it
// currently resolves to.
func (s *DealService) Get(ctx context.Context, id, userID int64) (*models.DealResponse, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	c, err := s.store.GetConnection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.RoleOf(userID) == domain.RoleNone {
		return nil, domain.ErrNotParty
	}

	var source *domain.Ticket
	if c.SourceTicketID != nil {
		source, err = s.store.GetTicket(ctx, *c.SourceTicketID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}
	}
	return &models.DealResponse{Connection: *c, EffectiveTerms: c.EffectiveTerms(source)}, nil
}

// List returns the caller's connections, newest first.
func (s *DealService) List(ctx context.Context, f domain.ConnectionFilter) (*models.ConnectionListResponse, error) {
	if f.Limit < 1 {
		f.Limit = domain.DefaultPageSize
	}
	if f.Limit > domain.MaxPageSize {
		f.Limit = domain.MaxPageSize
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	items, err := s.store.ListConnections(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Connection{}
	}
	return &models.ConnectionListResponse{Items: items}, nil
}

// ChangeStatus moves a connection to `to` on behalf of userID. The check
// runs under the connection's row lock, so of two racing accepts exactly
// one sees pending and the other fails with ErrInvalidState.
func (s *DealService) ChangeStatus(ctx context.Context, id, userID int64, to domain.ConnectionStatus) (*domain.Connection, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	c, err := s.store.TransitionConnection(ctx, id, s.opts.Clock.Now(), func(c *domain.Connection) (domain.Transition, error) {
		return domain.CheckTransition(c, c.RoleOf(userID), to)
	})
	if err != nil {
		return nil, err
	}

	transitions.WithLabelValues(string(to)).Inc()
	s.opts.Logger.WithFields(logrus.Fields{
		"connection_id": id,
		"user_id":       userID,
		"status":        to,
	}).Info("connection status changed")
	return c, nil
}
