package domain

import "strings"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// TicketFilter holds the listing criteria. Range pointers left nil are
// unbounded on that side.
type TicketFilter struct {
	Type     *TicketType
	Status   TicketStatus
	LoanType *LoanType

	MinAmount *float64
	MaxAmount *float64
	MinRate   *float64
	MaxRate   *float64
	MinTerm   *int
	MaxTerm   *int

	Location string

	// OwnerID restricts results to one owner; ExcludeOwnerID hides one.
	OwnerID        *int64
	ExcludeOwnerID *int64

	// ViewerID sees their own private tickets.
	ViewerID int64

	Page  int
	Limit int
}

// Normalize applies defaults and validates the ranges.
func (f *TicketFilter) Normalize() error {
	if f.Status == "" {
		f.Status = TicketActive
	}
	if !f.Status.Valid() {
		return invalid("status", "unknown status %q", f.Status)
	}
	if f.Type != nil && !f.Type.Valid() {
		return invalid("ticket_type", "unknown ticket type %q", *f.Type)
	}
	if f.LoanType != nil && !f.LoanType.Valid() {
		return invalid("loan_type", "unknown loan type %q", *f.LoanType)
	}
	if f.AmountWindow().Empty() {
		return invalid("amount", "min_amount must not exceed max_amount")
	}
	if f.RateWindow().Empty() {
		return invalid("interest_rate", "min_rate must not exceed max_rate")
	}
	if f.TermWindow().Empty() {
		return invalid("term_months", "min_term must not exceed max_term")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return nil
}

func (f *TicketFilter) AmountWindow() Window { return Bounds(f.MinAmount, f.MaxAmount) }
func (f *TicketFilter) RateWindow() Window   { return Bounds(f.MinRate, f.MaxRate) }
func (f *TicketFilter) TermWindow() Window   { return IntBounds(f.MinTerm, f.MaxTerm) }

// Offset is the number of rows skipped before the current page.
func (f *TicketFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches evaluates the filter against one ticket in memory. Stores
// translate the same predicate to SQL; this is the reference definition.
func (f *TicketFilter) Matches(t *Ticket) bool {
	if t.Status != f.Status {
		return false
	}
	if f.Type != nil && t.Type != *f.Type {
		return false
	}
	if f.LoanType != nil && t.LoanType != *f.LoanType {
		return false
	}
	if f.OwnerID != nil && t.OwnerID != *f.OwnerID {
		return false
	}
	if f.ExcludeOwnerID != nil && t.OwnerID == *f.ExcludeOwnerID {
		return false
	}
	if !t.IsPublic && t.OwnerID != f.ViewerID {
		return false
	}
	if !f.AmountWindow().Overlaps(t.AmountWindow()) {
		return false
	}
	if !f.RateWindow().Overlaps(t.RateWindow()) {
		return false
	}
	if !f.TermWindow().Overlaps(t.TermWindow()) {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(t.Location), strings.ToLower(f.Location)) {
		return false
	}
	return true
}

// TotalPages is the page count for total rows at limit rows per page.
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
