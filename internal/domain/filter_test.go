package domain

import (
	"errors"
	"testing"
)

func TestFilterNormalize(t *testing.T) {
	f := TicketFilter{Limit: 1000}
	if err := f.Normalize(); err != nil {
		t.Fatal(err)
	}
	if f.Status != TicketActive || f.Page != 1 || f.Limit != MaxPageSize {
		t.Errorf("normalized = %+v", f)
	}

	bad := TicketFilter{MinAmount: ptr(10.0), MaxAmount: ptr(5.0)}
	if err := bad.Normalize(); !errors.Is(err, ErrValidation) {
		t.Errorf("inverted window: got %v", err)
	}
	unknown := TicketFilter{Status: "archived"}
	if err := unknown.Normalize(); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown status: got %v", err)
	}
}

func TestFilterMatches(t *testing.T) {
	fixed := NewTicket(1, validDraft(), epoch)
	fixed.ID = 1

	flexDraft := validDraft()
	flexDraft.FlexibleTerms = true
	flexDraft.MinAmount, flexDraft.MaxAmount = ptr(20000.0), ptr(80000.0)
	flex := NewTicket(1, flexDraft, epoch)

	private := NewTicket(1, validDraft(), epoch)
	private.IsPublic = false

	lending := LendingOffer
	borrowing := BorrowingRequest
	personal := LoanPersonal

	tests := []struct {
		name   string
		filter TicketFilter
		ticket *Ticket
		want   bool
	}{
		{"amount window includes base", TicketFilter{Type: &lending, MinAmount: ptr(40000.0), MaxAmount: ptr(60000.0)}, fixed, true},
		{"min above base excludes", TicketFilter{MinAmount: ptr(60001.0)}, fixed, false},
		{"bound equal to base", TicketFilter{MinAmount: ptr(50000.0)}, fixed, true},
		{"flexible window overlaps", TicketFilter{MinAmount: ptr(70000.0), MaxAmount: ptr(90000.0)}, flex, true},
		{"flexible window disjoint", TicketFilter{MinAmount: ptr(80000.01)}, flex, false},
		{"wrong type", TicketFilter{Type: &borrowing}, fixed, false},
		{"wrong loan type", TicketFilter{LoanType: &personal}, fixed, false},
		{"rate window", TicketFilter{MinRate: ptr(7.0), MaxRate: ptr(7.5)}, fixed, true},
		{"rate ceiling below", TicketFilter{MaxRate: ptr(7.49)}, fixed, false},
		{"term window", TicketFilter{MinTerm: ptr(37)}, fixed, false},
		{"location case-insensitive", TicketFilter{Location: "austin"}, fixed, true},
		{"location mismatch", TicketFilter{Location: "Denver"}, fixed, false},
		{"private hidden from others", TicketFilter{ViewerID: 2}, private, false},
		{"private visible to owner", TicketFilter{ViewerID: 1}, private, true},
		{"excluded owner", TicketFilter{ExcludeOwnerID: ptr(int64(1))}, fixed, false},
		{"status must match", TicketFilter{Status: TicketClosed}, fixed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			if err := f.Normalize(); err != nil {
				t.Fatal(err)
			}
			if got := f.Matches(tt.ticket); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.limit); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
		}
	}
}
