package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper marks stale tickets and connections expired. It is the only
// actor allowed to move a connection to expired.
type Sweeper struct {
	store Store
	opts  Options

	// ConnectionTTL is how long a connection may stay pending. Zero leaves
	// pending connections alone.
	ConnectionTTL time.Duration
}

func NewSweeper(store Store, opts Options, connectionTTL time.Duration) *Sweeper {
	return &Sweeper{store: store, opts: opts.withDefaults(), ConnectionTTL: connectionTTL}
}

type SweepResult struct {
	Tickets     int64
	Connections int64
}

// Sweep runs one pass. Tickets are expired once their expires_at has passed.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.opts.Clock.Now()

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	n, err := s.store.ExpireTickets(ctx, now)
	if err != nil {
		return res, err
	}
	res.Tickets = n
	swept.WithLabelValues("ticket").Add(float64(n))

	if s.ConnectionTTL > 0 {
		n, err = s.store.ExpireConnections(ctx, now.Add(-s.ConnectionTTL), now)
		if err != nil {
			return res, err
		}
		res.Connections = n
		swept.WithLabelValues("connection").Add(float64(n))
	}
	return res, nil
}

// Run sweeps immediately and then every interval until ctx is done. A
// failed pass is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.opts.Logger.WithField("interval", interval).Error("sweep interval must be positive")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := s.Sweep(ctx)
		if err != nil {
			s.opts.Logger.WithError(err).Error("sweep failed")
		} else if res.Tickets > 0 || res.Connections > 0 {
			s.opts.Logger.WithFields(logrus.Fields{
				"tickets":     res.Tickets,
				"connections": res.Connections,
			}).Info("sweep expired rows")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
