package models

import (
	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/scoring"
)

// StatusChangeRequest is the payload for POST /deals/{id}/status.
type StatusChangeRequest struct {
	Status domain.ConnectionStatus `json:"status"`
}

// TicketListResponse is the paginated listing envelope.
type TicketListResponse struct {
	Items      []domain.Ticket `json:"items"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

// DiscoverResponse carries ranked discovery results.
type DiscoverResponse struct {
	Items []scoring.Ranked `json:"items"`
}

// DealResponse is a connection plus the terms it resolves to right now.
type DealResponse struct {
	Connection     domain.Connection `json:"connection"`
	EffectiveTerms domain.Terms      `json:"effective_terms"`
}

// ConnectionListResponse lists the caller's connections.
type ConnectionListResponse struct {
	Items []domain.Connection `json:"items"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
