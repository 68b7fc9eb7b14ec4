package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/lendex/internal/clock"
	"github.com/punchamoorthee/lendex/internal/domain"
	"github.com/punchamoorthee/lendex/internal/models"
	"github.com/punchamoorthee/lendex/internal/service"
	"github.com/punchamoorthee/lendex/internal/store"
)

var testSecret = []byte("test-secret")

const ticketJSON = `{
	"ticket_type": "lending_offer",
	"title": "Fixed-rate personal loan offer",
	"description": "Lending up to fifty thousand at a fixed rate to borrowers with verifiable income.",
	"amount": 50000,
	"interest_rate": 7.5,
	"term_months": 36,
	"loan_type": "personal",
	"loan_purpose": "Debt consolidation or large purchases",
	"warranty_type": "none",
	"location": "Austin, TX"
}`

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T, wrap func(service.Store) service.Store) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "api.db"), 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	var backend service.Store = st
	if wrap != nil {
		backend = wrap(st)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	opts := service.Options{Clock: clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)), Logger: logger}

	h := NewHandler(service.NewTicketService(backend, opts), service.NewDealService(backend, opts), logger)
	return &testServer{t: t, router: h.Router(RouterConfig{JWTSecret: testSecret, RateLimitRPS: 0})}
}

// do sends body as userID (0 sends no token) and returns the recorder.
func (s *testServer) do(method, path string, userID int64, body string, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if userID != 0 {
		token, err := SignToken(testSecret, userID, "user", time.Hour)
		if err != nil {
			s.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) createTicket(owner int64) domain.Ticket {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/tickets", owner, ticketJSON)
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create ticket: %d %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Ticket](s.t, rec)
}

func TestHealthNeedsNoToken(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/health", 0, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}

	rec = s.do(http.MethodGet, "/health", 0, "", requestIDHeader, "abc-123")
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want the caller's", got)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/v1/tickets", 0, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTicketEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.createTicket(1)

	rec := s.do(http.MethodGet, fmt.Sprintf("/api/v1/tickets/%d", created.ID), 2, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if got := decode[domain.Ticket](t, rec); got.ViewsCount != 1 || got.Amount != 50000 {
		t.Errorf("get = %+v", got)
	}

	rec = s.do(http.MethodGet, "/api/v1/tickets?ticket_type=lending_offer&min_amount=40000&max_amount=60000", 2, "")
	list := decode[models.TicketListResponse](t, rec)
	if rec.Code != http.StatusOK || list.TotalCount != 1 {
		t.Errorf("list: %d %+v", rec.Code, list)
	}
	rec = s.do(http.MethodGet, "/api/v1/tickets?min_amount=60001", 2, "")
	if list := decode[models.TicketListResponse](t, rec); len(list.Items) != 0 {
		t.Errorf("min_amount=60001 returned %d items", len(list.Items))
	}

	rec = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/tickets/%d", created.ID), 2, `{"title": "Hijacked personal loan"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-owner patch: %d", rec.Code)
	}
	rec = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/tickets/%d", created.ID), 1, `{"amount": -3}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid patch: %d", rec.Code)
	}
	if e := decode[models.ErrorResponse](t, rec); e.Field != "amount" {
		t.Errorf("error field = %q", e.Field)
	}

	rec = s.do(http.MethodGet, "/api/v1/tickets/stats", 1, "")
	if stats := decode[domain.TicketStats](t, rec); stats.TotalTickets != 1 || stats.TotalViews != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/tickets/%d", created.ID), 1, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
	rec = s.do(http.MethodGet, fmt.Sprintf("/api/v1/tickets/%d", created.ID), 1, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", rec.Code)
	}
}

func TestCreateTicketRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"ticket_type":`, http.StatusBadRequest},
		{"short title", `{"ticket_type":"lending_offer","title":"short"}`, http.StatusUnprocessableEntity},
		{"unknown type", `{"ticket_type":"gift"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(http.MethodPost, "/api/v1/tickets", 1, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := s.do(http.MethodGet, "/api/v1/tickets?min_amount=lots", 1, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad query parameter: %d", rec.Code)
	}
}

func TestDealEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	tk := s.createTicket(1)
	body := fmt.Sprintf(`{"ticket_id": %d, "proposed_amount": 35000, "proposed_term_months": 24}`, tk.ID)

	if rec := s.do(http.MethodPost, "/api/v1/deals", 1, body); rec.Code != http.StatusForbidden {
		t.Errorf("self-deal: %d", rec.Code)
	}

	rec := s.do(http.MethodPost, "/api/v1/deals", 2, body, "Idempotency-Key", "abc")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create deal: %d %s", rec.Code, rec.Body.String())
	}
	c := decode[domain.Connection](t, rec)
	if rec.Header().Get("Location") != fmt.Sprintf("/api/v1/deals/%d", c.ID) {
		t.Errorf("location = %q", rec.Header().Get("Location"))
	}
	if c.Status != domain.ConnectionPending || c.Direction != domain.DirectionBorrowing {
		t.Errorf("connection = %+v", c)
	}

	rec = s.do(http.MethodPost, "/api/v1/deals", 2, body, "Idempotency-Key", "abc")
	if rec.Code != http.StatusOK || decode[domain.Connection](t, rec).ID != c.ID {
		t.Errorf("replay: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, fmt.Sprintf("/api/v1/deals/%d", c.ID), 1, "")
	deal := decode[models.DealResponse](t, rec)
	if rec.Code != http.StatusOK || *deal.EffectiveTerms.InterestRate != 7.5 || *deal.EffectiveTerms.TermMonths != 24 {
		t.Errorf("get deal: %d %+v", rec.Code, deal.EffectiveTerms)
	}
	if rec := s.do(http.MethodGet, fmt.Sprintf("/api/v1/deals/%d", c.ID), 3, ""); rec.Code != http.StatusForbidden {
		t.Errorf("outsider get: %d", rec.Code)
	}

	statusPath := fmt.Sprintf("/api/v1/deals/%d/status", c.ID)
	if rec := s.do(http.MethodPost, statusPath, 1, `{"status": "accepted"}`); rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(http.MethodPost, statusPath, 1, `{"status": "rejected"}`); rec.Code != http.StatusConflict {
		t.Errorf("reject after accept: %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, statusPath, 1, `{"status": "withdrawn"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown status: %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/deals?role=initiator&status=accepted", 2, "")
	if list := decode[models.ConnectionListResponse](t, rec); len(list.Items) != 1 {
		t.Errorf("list deals = %+v", list)
	}
	if rec := s.do(http.MethodGet, "/api/v1/deals?role=broker", 2, ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad role: %d", rec.Code)
	}
}

func TestDiscoverEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.createTicket(1)
	s.createTicket(2)

	rec := s.do(http.MethodGet, "/api/v1/tickets/discover?amount=50000&location=Austin,%20TX", 2, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("discover: %d %s", rec.Code, rec.Body.String())
	}
	res := decode[models.DiscoverResponse](t, rec)
	if len(res.Items) != 1 || res.Items[0].Ticket.OwnerID != 1 || res.Items[0].Score != 1 {
		t.Errorf("discover = %+v", res)
	}
}

func TestNonFiniteNumbersAreRejected(t *testing.T) {
	s := newTestServer(t, nil)
	s.createTicket(1)

	for _, path := range []string{
		"/api/v1/tickets/discover?amount=NaN",
		"/api/v1/tickets/discover?amount=Inf",
		"/api/v1/tickets/discover?max_rate=NaN",
		"/api/v1/tickets/discover?min_rate=NaN",
		"/api/v1/tickets?min_amount=-Inf",
	} {
		rec := s.do(http.MethodGet, path, 2, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: %d %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestListLocationFoldsUnicode(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodPost, "/api/v1/tickets", 1, strings.Replace(ticketJSON, "Austin, TX", "ZÜRICH, CH", 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/v1/tickets?location=z%C3%BCrich", 2, "")
	if list := decode[models.TicketListResponse](t, rec); rec.Code != http.StatusOK || list.TotalCount != 1 {
		t.Errorf("location=zürich: %d %+v", rec.Code, list)
	}
}

// flakyStore fails every ticket read with a transient error.
type flakyStore struct {
	service.Store
}

func (flakyStore) GetTicket(context.Context, int64) (*domain.Ticket, error) {
	return nil, domain.Transient(context.DeadlineExceeded)
}

func TestTransientErrorsAreRetryable(t *testing.T) {
	s := newTestServer(t, func(st service.Store) service.Store { return flakyStore{st} })
	rec := s.do(http.MethodGet, "/api/v1/tickets/1", 1, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestThrottleLimitsWrites(t *testing.T) {
	th := newThrottle(1, 2)
	h := authenticate(testSecret)(th.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	token, _ := SignToken(testSecret, 9, "", 0)

	send := func(method string) int {
		req := httptest.NewRequest(method, "/api/v1/deals", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	for i := range 2 {
		if code := send(http.MethodPost); code != http.StatusNoContent {
			t.Fatalf("write %d within burst: %d", i, code)
		}
	}
	if code := send(http.MethodPost); code != http.StatusTooManyRequests {
		t.Errorf("write past burst: %d", code)
	}
	if code := send(http.MethodGet); code != http.StatusNoContent {
		t.Errorf("reads are not throttled, got %d", code)
	}
}

func TestThrottleDropsIdleBuckets(t *testing.T) {
	th := newThrottle(1, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	for id := int64(1); id <= 3; id++ {
		th.limiter(id)
	}
	now = now.Add(th.idle / 2)
	th.limiter(1)

	now = now.Add(th.idle/2 + time.Second)
	th.limiter(4)

	if len(th.limiters) != 2 {
		t.Fatalf("kept %d buckets, want 2", len(th.limiters))
	}
	for _, id := range []int64{1, 4} {
		if _, ok := th.limiters[id]; !ok {
			t.Errorf("bucket for user %d was dropped", id)
		}
	}
}

func TestParseBearer(t *testing.T) {
	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid, _ := SignToken(testSecret, 42, "admin", time.Hour)
	expired := sign(jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(-time.Hour).Unix()}, jwt.SigningMethodHS256, testSecret)
	otherKey := sign(jwt.MapClaims{"user_id": 42}, jwt.SigningMethodHS256, []byte("other"))
	hs512 := sign(jwt.MapClaims{"user_id": 42}, jwt.SigningMethodHS512, testSecret)
	noUser := sign(jwt.MapClaims{"role": "user"}, jwt.SigningMethodHS256, testSecret)
	fractional := sign(jwt.MapClaims{"user_id": 4.5}, jwt.SigningMethodHS256, testSecret)

	tests := []struct {
		name    string
		header  string
		wantErr string
	}{
		{"valid", "Bearer " + valid, ""},
		{"empty", "", "no token provided"},
		{"no scheme", valid, "token format is invalid"},
		{"expired", "Bearer " + expired, "token is invalid"},
		{"wrong key", "Bearer " + otherKey, "token is invalid"},
		{"wrong algorithm", "Bearer " + hs512, "token is invalid"},
		{"missing user", "Bearer " + noUser, "invalid token claims"},
		{"fractional user", "Bearer " + fractional, "invalid token claims"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parseBearer(tt.header, testSecret)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatal(err)
				}
				if p.UserID != 42 || p.Role != "admin" {
					t.Errorf("principal = %+v", p)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
