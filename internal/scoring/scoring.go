// Package scoring ranks tickets against a user's stated preferences. The
// score is advisory: it orders discovery results and never gates a deal.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/punchamoorthee/lendex/internal/domain"
)

const (
	WeightAmount   = 0.35
	WeightRate     = 0.25
	WeightTerm     = 0.15
	WeightLoanType = 0.15
	WeightLocation = 0.10
)

// Preferences are what a user asks for. Unset criteria are left out of the
// weighted average rather than counted as zero.
type Preferences struct {
	Amount     *float64        `json:"amount,omitempty"`
	MaxRate    *float64        `json:"max_rate,omitempty"`
	MinRate    *float64        `json:"min_rate,omitempty"`
	TermMonths *int            `json:"term_months,omitempty"`
	Location   string          `json:"location,omitempty"`
	LoanType   domain.LoanType `json:"loan_type,omitempty"`
}

func (p Preferences) Validate() error {
	if p.Amount != nil && (*p.Amount <= 0 || !domain.Finite(*p.Amount)) {
		return &domain.ValidationError{Field: "amount", Reason: "must be greater than 0"}
	}
	for _, r := range []*float64{p.MaxRate, p.MinRate} {
		if r != nil && (*r < 0 || *r > 100 || !domain.Finite(*r)) {
			return &domain.ValidationError{Field: "rate", Reason: "must be within [0, 100]"}
		}
	}
	if p.TermMonths != nil && (*p.TermMonths < 1 || *p.TermMonths > 360) {
		return &domain.ValidationError{Field: "term_months", Reason: "must be within [1, 360]"}
	}
	if p.LoanType != "" && !p.LoanType.Valid() {
		return &domain.ValidationError{Field: "loan_type", Reason: "unknown loan type"}
	}
	return nil
}

// Ranked is a ticket with its compatibility score.
type Ranked struct {
	Ticket domain.Ticket `json:"ticket"`
	Score  float64       `json:"score"`
}

// Score returns the compatibility of t with p in [0, 1].
func Score(p Preferences, t *domain.Ticket) float64 {
	var sum, weights float64
	add := func(weight, fit float64) {
		sum += weight * fit
		weights += weight
	}

	if p.Amount != nil {
		offered := t.AmountWindow().Clamp(*p.Amount)
		add(WeightAmount, AmountFit(*p.Amount, offered))
	}
	if p.MaxRate != nil || p.MinRate != nil {
		rates := t.RateWindow()
		fit := 1.0
		if p.MaxRate != nil {
			fit = math.Min(fit, CeilingFit(*p.MaxRate, rates.Min))
		}
		if p.MinRate != nil {
			fit = math.Min(fit, FloorFit(*p.MinRate, rates.Max))
		}
		add(WeightRate, fit)
	}
	if p.TermMonths != nil {
		add(WeightTerm, CeilingFit(float64(*p.TermMonths), t.TermWindow().Min))
	}
	if p.LoanType != "" {
		add(WeightLoanType, boolFit(p.LoanType == t.LoanType))
	}
	if p.Location != "" {
		add(WeightLocation, LocationFit(p.Location, t.Location))
	}

	if weights == 0 {
		return 0
	}
	return clamp01(sum / weights)
}

// AmountFit is 1 - |requested-offered| / max(requested, offered).
func AmountFit(requested, offered float64) float64 {
	hi := math.Max(requested, offered)
	if hi <= 0 {
		return 0
	}
	return clamp01(1 - math.Abs(requested-offered)/hi)
}

// CeilingFit is 1 while v <= bound and decays linearly to 0 at twice the bound.
func CeilingFit(bound, v float64) float64 {
	if v <= bound {
		return 1
	}
	if bound <= 0 {
		return 0
	}
	return clamp01(1 - (v-bound)/bound)
}

// FloorFit is 1 while v >= bound and decays linearly to 0 once v falls
// short by the whole bound.
func FloorFit(bound, v float64) float64 {
	if v >= bound {
		return 1
	}
	return clamp01(1 - (bound-v)/bound)
}

// LocationFit is 1 for the same place, 0.5 for the same region and 0 otherwise.
// The region is whatever follows the last comma, as in "Austin, TX".
func LocationFit(want, have string) float64 {
	want, have = normalizePlace(want), normalizePlace(have)
	if want == "" || have == "" {
		return 0
	}
	if want == have {
		return 1
	}
	if region(want) == region(have) {
		return 0.5
	}
	return 0
}

// Rank scores every ticket and orders them best first. Equal scores go
// newest first, then by descending id so the order is total.
func Rank(p Preferences, tickets []domain.Ticket) []Ranked {
	ranked := make([]Ranked, len(tickets))
	for i := range tickets {
		ranked[i] = Ranked{Ticket: tickets[i], Score: Score(p, &tickets[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Ticket.CreatedAt.Equal(b.Ticket.CreatedAt) {
			return a.Ticket.CreatedAt.After(b.Ticket.CreatedAt)
		}
		return a.Ticket.ID > b.Ticket.ID
	})
	return ranked
}

func normalizePlace(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func region(place string) string {
	if i := strings.LastIndex(place, ","); i >= 0 {
		return strings.TrimSpace(place[i+1:])
	}
	return place
}

func boolFit(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
