package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendex_tickets_created_total",
		Help: "Tickets created, by ticket type",
	}, []string{"ticket_type"})

	dealsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendex_deals_created_total",
		Help: "Deals created from tickets, by direction",
	}, []string{"direction"})

	dealReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendex_deal_idempotent_replays_total",
		Help: "Create-deal requests answered from an existing idempotency key",
	})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendex_connection_transitions_total",
		Help: "Connection status changes, by target status",
	}, []string{"status"})

	swept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendex_sweep_expired_total",
		Help: "Rows expired by the sweeper",
	}, []string{"kind"})

	viewIncrementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lendex_view_increment_failures_total",
		Help: "Best-effort views_count increments that failed",
	})
)
