package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/models"
	"github.com/punchamoorthee/lendex/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lendex_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lendex_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const maxBodyBytes = 1 << 20

type Handler struct {
	tickets *service.TicketService
	deals   *service.DealService
	log     *logrus.Logger
}

func NewHandler(tickets *service.TicketService, deals *service.DealService, logger *logrus.Logger) *Handler {
	return &Handler{tickets: tickets, deals: deals, log: logger}
}

// RouterConfig holds what the middleware chain needs.
type RouterConfig struct {
	JWTSecret      []byte
	RateLimitRPS   float64
	RateLimitBurst int
}

// Router wires every endpoint. /health and /metrics skip authentication.
func (h *Handler) Router(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestID, h.recoverPanics, h.instrument)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(authenticate(cfg.JWTSecret), newThrottle(cfg.RateLimitRPS, cfg.RateLimitBurst).middleware)

	apiV1.HandleFunc("/tickets", h.CreateTicket).Methods(http.MethodPost)
	apiV1.HandleFunc("/tickets", h.ListTickets).Methods(http.MethodGet)
	apiV1.HandleFunc("/tickets/discover", h.DiscoverTickets).Methods(http.MethodGet)
	apiV1.HandleFunc("/tickets/stats", h.TicketStats).Methods(http.MethodGet)
	apiV1.HandleFunc("/tickets/{id:[0-9]+}", h.GetTicket).Methods(http.MethodGet)
	apiV1.HandleFunc("/tickets/{id:[0-9]+}", h.UpdateTicket).Methods(http.MethodPatch)
	apiV1.HandleFunc("/tickets/{id:[0-9]+}", h.DeleteTicket).Methods(http.MethodDelete)

	apiV1.HandleFunc("/deals", h.CreateDeal).Methods(http.MethodPost)
	apiV1.HandleFunc("/deals", h.ListDeals).Methods(http.MethodGet)
	apiV1.HandleFunc("/deals/{id:[0-9]+}", h.GetDeal).Methods(http.MethodGet)
	apiV1.HandleFunc("/deals/{id:[0-9]+}/status", h.ChangeDealStatus).Methods(http.MethodPost)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers
func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, models.ErrorResponse{Error: msg})
}

// respondErr maps the domain error taxonomy onto status codes.
func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAuthorization):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTransient):
		h.log.WithError(err).WithField("path", r.URL.Path).Warn("transient storage failure")
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, domain.ErrTransient.Error())
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("unhandled error")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a bounded request body into dst. A malformed body
// is reported to the client as 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Request body too large or unreadable")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func location(kind string, id int64) string {
	return fmt.Sprintf("/api/v1/%s/%d", kind, id)
}
