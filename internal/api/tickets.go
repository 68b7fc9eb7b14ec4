package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/scoring"
)

func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var draft domain.TicketDraft
	if !decodeJSON(w, r, &draft) {
		return
	}

	t, err := h.tickets.Create(r.Context(), p.UserID, draft)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", location("tickets", t.ID))
	respondJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	t, err := h.tickets.Get(r.Context(), id, p.UserID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	var patch domain.TicketPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	t, err := h.tickets.Update(r.Context(), id, p.UserID, patch)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id, err := pathID(r)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	if err := h.tickets.Delete(r.Context(), id, p.UserID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	q := queryParser{values: r.URL.Query()}
	f := q.ticketFilter()
	if q.boolean("mine") {
		f.OwnerID = &p.UserID
	}
	if q.err != nil {
		h.respondErr(w, r, q.err)
		return
	}

	page, err := h.tickets.List(r.Context(), p.UserID, f)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) DiscoverTickets(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	q := queryParser{values: r.URL.Query()}
	f := q.ticketFilter()
	prefs := scoring.Preferences{
		Amount:     q.float("amount"),
		MaxRate:    q.float("max_rate"),
		MinRate:    q.float("min_rate"),
		TermMonths: q.int("term_months"),
		Location:   q.values.Get("location"),
		LoanType:   domain.LoanType(q.values.Get("loan_type")),
	}
	// location and loan_type steer the score here, not the candidate filter.
	f.Location, f.LoanType = "", nil
	f.MaxRate, f.MinRate = nil, nil
	if q.err != nil {
		h.respondErr(w, r, q.err)
		return
	}

	res, err := h.tickets.Discover(r.Context(), p.UserID, prefs, f, f.Limit)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) TicketStats(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	stats, err := h.tickets.Stats(r.Context(), p.UserID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// queryParser reads typed query parameters and keeps the first error.
type queryParser struct {
	values url.Values
	err    error
}

func (q *queryParser) fail(key, reason string) {
	if q.err == nil {
		q.err = &domain.ValidationError{Field: key, Reason: reason}
	}
}

func (q *queryParser) float(key string) *float64 {
	s := q.values.Get(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !domain.Finite(v) {
		q.fail(key, "must be a finite number")
		return nil
	}
	return &v
}

func (q *queryParser) int(key string) *int {
	s := q.values.Get(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		q.fail(key, "must be an integer")
		return nil
	}
	return &v
}

func (q *queryParser) intValue(key string) int {
	if v := q.int(key); v != nil {
		return *v
	}
	return 0
}

func (q *queryParser) boolean(key string) bool {
	s := q.values.Get(key)
	if s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		q.fail(key, "must be true or false")
	}
	return v
}

// ticketFilter reads the listing filters. Enum values are checked later
// by TicketFilter.Normalize.
func (q *queryParser) ticketFilter() domain.TicketFilter {
	f := domain.TicketFilter{
		Status:    domain.TicketStatus(q.values.Get("status")),
		MinAmount: q.float("min_amount"),
		MaxAmount: q.float("max_amount"),
		MinRate:   q.float("min_rate"),
		MaxRate:   q.float("max_rate"),
		MinTerm:   q.int("min_term"),
		MaxTerm:   q.int("max_term"),
		Location:  q.values.Get("location"),
		Page:      q.intValue("page"),
		Limit:     q.intValue("limit"),
	}
	if v := q.values.Get("ticket_type"); v != "" {
		t := domain.TicketType(v)
		f.Type = &t
	}
	if v := q.values.Get("loan_type"); v != "" {
		l := domain.LoanType(v)
		f.LoanType = &l
	}
	return f
}
