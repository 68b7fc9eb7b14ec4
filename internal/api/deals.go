package api

import (
	"net/http"

	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/models"
)

// CreateDeal answers 201 for a new connection and 200 when an
// Idempotency-Key replays an earlier one.
func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var req domain.DealRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, replayed, err := h.deals.CreateDeal(r.Context(), p.UserID, req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	w.Header().Set("Location", location("deals", c.ID))
	if replayed {
		respondJSON(w, http.StatusOK, c)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetDeal(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	deal, err := h.deals.Get(r.Context(), id, p.UserID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, deal)
}

func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	q := queryParser{values: r.URL.Query()}

	f := domain.ConnectionFilter{UserID: p.UserID, Limit: q.intValue("limit")}
	switch q.values.Get("role") {
	case "", "any":
	case "initiator":
		f.Role = domain.RoleInitiator
	case "counterpart":
		f.Role = domain.RoleCounterpart
	default:
		q.fail("role", "must be one of initiator, counterpart, any")
	}
	if v := q.values.Get("status"); v != "" {
		status, err := domain.ParseConnectionStatus(v)
		if err != nil {
			q.fail("status", err.Error())
		}
		f.Status = &status
	}
	if q.err != nil {
		h.respondErr(w, r, q.err)
		return
	}

	res, err := h.deals.List(r.Context(), f)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ChangeDealStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	var req models.StatusChangeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.deals.ChangeStatus(r.Context(), id, p.UserID, req.Status)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
