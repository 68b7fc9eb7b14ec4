package scoring

import (
	"math"
	"testing"
	"testing/quick"
	"time"

	"github.com/punchamoorthee/lendex/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func ticket(id int64, amount, rate float64, term int, loc string, created time.Time) domain.Ticket {
	return domain.Ticket{
		ID:           id,
		Type:         domain.LendingOffer,
		Status:       domain.TicketActive,
		Amount:       amount,
		InterestRate: rate,
		TermMonths:   term,
		LoanType:     domain.LoanPersonal,
		Location:     loc,
		CreatedAt:    created,
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFitFunctions(t *testing.T) {
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"amount exact", AmountFit(1000, 1000), 1},
		{"amount half", AmountFit(1000, 2000), 0.5},
		{"amount symmetric", AmountFit(2000, 1000), 0.5},
		{"ceiling within", CeilingFit(10, 8), 1},
		{"ceiling at bound", CeilingFit(10, 10), 1},
		{"ceiling midway", CeilingFit(10, 15), 0.5},
		{"ceiling at twice", CeilingFit(10, 20), 0},
		{"ceiling beyond", CeilingFit(10, 40), 0},
		{"ceiling zero bound", CeilingFit(0, 1), 0},
		{"floor within", FloorFit(5, 6), 1},
		{"floor midway", FloorFit(6, 3), 0.5},
		{"floor at zero", FloorFit(6, 0), 0},
		{"location exact", LocationFit("Austin, TX", "austin,  tx"), 1},
		{"location region", LocationFit("Austin, TX", "Dallas, TX"), 0.5},
		{"location other", LocationFit("Austin, TX", "Denver, CO"), 0},
		{"location blank", LocationFit("Austin, TX", ""), 0},
	}
	for _, tt := range tests {
		if !approx(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestScoreOnlyCountsStatedCriteria(t *testing.T) {
	tk := ticket(1, 10000, 5, 12, "Austin, TX", time.Time{})

	if s := Score(Preferences{}, &tk); s != 0 {
		t.Errorf("no preferences scored %v", s)
	}
	if s := Score(Preferences{Amount: ptr(10000.0)}, &tk); !approx(s, 1) {
		t.Errorf("perfect amount alone scored %v", s)
	}

	// amount fits perfectly, loan type misses: .35 / (.35 + .15)
	p := Preferences{Amount: ptr(10000.0), LoanType: domain.LoanMortgage}
	if s := Score(p, &tk); !approx(s, 0.35/0.5) {
		t.Errorf("score = %v, want %v", s, 0.35/0.5)
	}
}

func TestScoreUsesFlexibleWindow(t *testing.T) {
	tk := ticket(1, 10000, 9, 24, "", time.Time{})
	tk.FlexibleTerms = true
	tk.MinAmount, tk.MaxAmount = ptr(5000.0), ptr(20000.0)
	tk.MinInterestRate, tk.MaxInterestRate = ptr(6.0), ptr(9.0)
	tk.MinTermMonths, tk.MaxTermMonths = ptr(12), ptr(24)

	p := Preferences{Amount: ptr(15000.0), MaxRate: ptr(6.0), TermMonths: ptr(12)}
	if s := Score(p, &tk); !approx(s, 1) {
		t.Errorf("flexible ticket covering every preference scored %v", s)
	}
}

func TestScoreBounded(t *testing.T) {
	f := func(amount, offered, rate, maxRate float64, term, maxTerm uint16) bool {
		amount, offered = math.Abs(amount)+1, math.Abs(offered)+1
		rate, maxRate = math.Mod(math.Abs(rate), 100), math.Mod(math.Abs(maxRate), 100)
		tk := ticket(1, offered, rate, int(term%360)+1, "Austin, TX", time.Time{})
		p := Preferences{
			Amount:     &amount,
			MaxRate:    &maxRate,
			TermMonths: ptr(int(maxTerm%360) + 1),
			Location:   "Dallas, TX",
			LoanType:   domain.LoanPersonal,
		}
		s := Score(p, &tk)
		return s >= 0 && s <= 1 && !math.IsNaN(s)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestRankOrdersByScoreThenNewest(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tickets := []domain.Ticket{
		ticket(1, 10000, 5, 12, "", base),
		ticket(2, 20000, 5, 12, "", base),                // worse amount fit
		ticket(3, 10000, 5, 12, "", base.Add(time.Hour)), // same score, newer
		ticket(4, 10000, 5, 12, "", base.Add(time.Hour)), // same score and time, higher id
	}
	ranked := Rank(Preferences{Amount: ptr(10000.0)}, tickets)

	want := []int64{4, 3, 1, 2}
	for i, id := range want {
		if ranked[i].Ticket.ID != id {
			t.Fatalf("position %d: got ticket %d, want %d", i, ranked[i].Ticket.ID, id)
		}
	}
	if ranked[0].Score < ranked[3].Score {
		t.Error("scores not descending")
	}
}

func TestPreferencesValidate(t *testing.T) {
	if err := (Preferences{Amount: ptr(-1.0)}).Validate(); err == nil {
		t.Error("negative amount accepted")
	}
	if err := (Preferences{LoanType: "yacht"}).Validate(); err == nil {
		t.Error("unknown loan type accepted")
	}
	if err := (Preferences{MaxRate: ptr(12.0), TermMonths: ptr(24)}).Validate(); err != nil {
		t.Error(err)
	}

	for name, p := range map[string]Preferences{
		"nan amount":   {Amount: ptr(math.NaN())},
		"inf amount":   {Amount: ptr(math.Inf(1))},
		"nan max rate": {MaxRate: ptr(math.NaN())},
		"nan min rate": {MinRate: ptr(math.NaN())},
	} {
		if err := p.Validate(); err == nil {
			t.Errorf("%s accepted", name)
		}
	}
}
