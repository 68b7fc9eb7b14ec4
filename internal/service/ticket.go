package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/lendex/internal/clock"
	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/models"
	"github.com/punchamoorthee/lendex/internal/scoring"
)

const (
	defaultTimeout      = 5 * time.Second
	defaultDiscoverPool = 200
)

// Options carries what every service needs besides the store. Zero values
// are replaced with defaults.
type Options struct {
	Clock   clock.Clock
	Logger  *logrus.Logger
	Timeout time.Duration

	// DiscoverPool bounds how many candidate tickets discovery scores.
	DiscoverPool int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.DiscoverPool <= 0 {
		o.DiscoverPool = defaultDiscoverPool
	}
	return o
}

// bound caps a storage call at the configured timeout.
func (o Options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.Timeout)
}

type TicketService struct {
	store Store
	opts  Options
}

func NewTicketService(store Store, opts Options) *TicketService {
	return &TicketService{store: store, opts: opts.withDefaults()}
}

// Create validates the draft and persists it as an active ticket that
// expires TicketTTL from now.
func (s *TicketService) Create(ctx context.Context, ownerID int64, draft domain.TicketDraft) (*domain.Ticket, error) {
	t := domain.NewTicket(ownerID, draft, s.opts.Clock.Now())
	if err := t.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}

	ticketsCreated.WithLabelValues(string(t.Type)).Inc()
	s.opts.Logger.WithFields(logrus.Fields{
		"ticket_id": t.ID,
		"owner_id":  ownerID,
		"type":      t.Type,
	}).Info("ticket created")
	return t, nil
}

// Get loads a ticket. A read by anyone but the owner counts as a view; a
// failed view increment is logged and never fails the read.
func (s *TicketService) Get(ctx context.Context, id, viewerID int64) (*domain.Ticket, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if viewerID == t.OwnerID {
		return t, nil
	}

	views, err := s.store.IncrementTicketViews(ctx, id)
	if err != nil {
		viewIncrementFailures.Inc()
		s.opts.Logger.WithError(err).WithField("ticket_id", id).Warn("views_count increment failed")
		return t, nil
	}
	t.ViewsCount = views
	return t, nil
}

// Update merges patch into the owner's ticket and re-validates it. On any
// error the stored ticket is left as it was.
func (s *TicketService) Update(ctx context.Context, id, ownerID int64, patch domain.TicketPatch) (*domain.Ticket, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	return s.store.UpdateTicket(ctx, id, func(t *domain.Ticket) error {
		if t.OwnerID != ownerID {
			return domain.ErrNotOwner
		}
		if t.Status.Frozen() {
			return domain.InvalidState("ticket %d is %s and can no longer be edited", t.ID, t.Status)
		}
		patch.Apply(t)
		t.Normalize()
		t.UpdatedAt = s.opts.Clock.Now()
		return t.Validate()
	})
}

// Delete removes the owner's ticket. Connections that reference it are kept.
func (s *TicketService) Delete(ctx context.Context, id, ownerID int64) error {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	err := s.store.DeleteTicket(ctx, id, func(t *domain.Ticket) error {
		if t.OwnerID != ownerID {
			return domain.ErrNotOwner
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.opts.Logger.WithFields(logrus.Fields{"ticket_id": id, "owner_id": ownerID}).Info("ticket deleted")
	return nil
}

// List returns one page of tickets visible to viewerID, newest first.
func (s *TicketService) List(ctx context.Context, viewerID int64, f domain.TicketFilter) (*models.TicketListResponse, error) {
	f.ViewerID = viewerID
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	items, total, err := s.store.ListTickets(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Ticket{}
	}
	return &models.TicketListResponse{
		Items:      items,
		TotalCount: total,
		Page:       f.Page,
		TotalPages: domain.TotalPages(total, f.Limit),
	}, nil
}

func (s *TicketService) Stats(ctx context.Context, ownerID int64) (*domain.TicketStats, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()
	return s.store.TicketStats(ctx, ownerID)
}

// Discover ranks the active tickets viewerID could deal on against prefs.
// Only the newest DiscoverPool matches of f are scored.
func (s *TicketService) Discover(ctx context.Context, viewerID int64, prefs scoring.Preferences, f domain.TicketFilter, limit int) (*models.DiscoverResponse, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	f.Status = domain.TicketActive
	f.ViewerID = viewerID
	f.ExcludeOwnerID = &viewerID
	f.OwnerID = nil
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	f.Page, f.Limit = 1, s.opts.DiscoverPool

	switch {
	case limit <= 0:
		limit = domain.DefaultPageSize
	case limit > domain.MaxPageSize:
		limit = domain.MaxPageSize
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	candidates, _, err := s.store.ListTickets(ctx, f)
	if err != nil {
		return nil, err
	}
	ranked := scoring.Rank(prefs, candidates)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return &models.DiscoverResponse{Items: ranked}, nil
}

// isNotFound is shared by the deal service when a source ticket has gone.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
