package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// TicketTTL is how long a new ticket stays listed before the sweeper expires it.
const TicketTTL = 30 * 24 * time.Hour

type TicketType string

const (
	LendingOffer     TicketType = "lending_offer"
	BorrowingRequest TicketType = "borrowing_request"
)

func (t TicketType) Valid() bool {
	return t == LendingOffer || t == BorrowingRequest
}

type TicketStatus string

const (
	TicketActive  TicketStatus = "active"
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
	TicketExpired TicketStatus = "expired"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketActive, TicketPending, TicketClosed, TicketExpired:
		return true
	}
	return false
}

// Frozen reports whether the owner can no longer edit the ticket.
func (s TicketStatus) Frozen() bool {
	return s == TicketClosed || s == TicketExpired
}

type LoanType string

const (
	LoanPersonal  LoanType = "personal"
	LoanBusiness  LoanType = "business"
	LoanMortgage  LoanType = "mortgage"
	LoanAuto      LoanType = "auto"
	LoanEducation LoanType = "education"
	LoanOther     LoanType = "other"
)

func (l LoanType) Valid() bool {
	switch l {
	case LoanPersonal, LoanBusiness, LoanMortgage, LoanAuto, LoanEducation, LoanOther:
		return true
	}
	return false
}

type WarrantyType string

const (
	WarrantyNone       WarrantyType = "none"
	WarrantyCollateral WarrantyType = "collateral"
	WarrantyGuarantor  WarrantyType = "guarantor"
	WarrantyInsurance  WarrantyType = "insurance"
	WarrantyOther      WarrantyType = "other"
)

func (w WarrantyType) Valid() bool {
	switch w {
	case WarrantyNone, WarrantyCollateral, WarrantyGuarantor, WarrantyInsurance, WarrantyOther:
		return true
	}
	return false
}

// ParseTicketType, ParseTicketStatus, ParseLoanType and ParseWarrantyType
// reject anything outside the closed set, including values read back from storage.
func ParseTicketType(s string) (TicketType, error) {
	if v := TicketType(s); v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown ticket type %q", s)
}

func ParseTicketStatus(s string) (TicketStatus, error) {
	if v := TicketStatus(s); v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown ticket status %q", s)
}

func ParseLoanType(s string) (LoanType, error) {
	if v := LoanType(s); v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown loan type %q", s)
}

func ParseWarrantyType(s string) (WarrantyType, error) {
	if v := WarrantyType(s); v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("unknown warranty type %q", s)
}

// Warranty is the security a ticket offers or asks for.
type Warranty struct {
	Type        WarrantyType `json:"type"`
	Description string       `json:"description,omitempty"`
	Value       *float64     `json:"value,omitempty"`
}

// Ticket is a marketplace listing: a lending offer or a borrowing request.
// Ranged terms are only meaningful when FlexibleTerms is set, in which
// case every bound is populated and min <= base <= max holds.
type Ticket struct {
	ID          int64        `json:"id"`
	OwnerID     int64        `json:"owner_id"`
	Type        TicketType   `json:"ticket_type"`
	Status      TicketStatus `json:"status"`
	Title       string       `json:"title"`
	Description string       `json:"description"`

	Amount       float64 `json:"amount"`
	InterestRate float64 `json:"interest_rate"`
	TermMonths   int     `json:"term_months"`

	FlexibleTerms   bool     `json:"flexible_terms"`
	MinAmount       *float64 `json:"min_amount,omitempty"`
	MaxAmount       *float64 `json:"max_amount,omitempty"`
	MinInterestRate *float64 `json:"min_interest_rate,omitempty"`
	MaxInterestRate *float64 `json:"max_interest_rate,omitempty"`
	MinTermMonths   *int     `json:"min_term_months,omitempty"`
	MaxTermMonths   *int     `json:"max_term_months,omitempty"`

	LoanType     LoanType `json:"loan_type"`
	LoanPurpose  string   `json:"loan_purpose"`
	Warranty     Warranty `json:"warranty"`
	Requirements string   `json:"requirements,omitempty"`
	Location     string   `json:"location,omitempty"`
	IsPublic     bool     `json:"is_public"`

	ViewsCount     int64 `json:"views_count"`
	ResponsesCount int64 `json:"responses_count"`
	DealsCreated   int64 `json:"deals_created"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AmountWindow is the effective amount window used by range filters.
func (t *Ticket) AmountWindow() Window {
	if t.FlexibleTerms && t.MinAmount != nil && t.MaxAmount != nil {
		return Window{Min: *t.MinAmount, Max: *t.MaxAmount}
	}
	return Point(t.Amount)
}

func (t *Ticket) RateWindow() Window {
	if t.FlexibleTerms && t.MinInterestRate != nil && t.MaxInterestRate != nil {
		return Window{Min: *t.MinInterestRate, Max: *t.MaxInterestRate}
	}
	return Point(t.InterestRate)
}

func (t *Ticket) TermWindow() Window {
	if t.FlexibleTerms && t.MinTermMonths != nil && t.MaxTermMonths != nil {
		return Window{Min: float64(*t.MinTermMonths), Max: float64(*t.MaxTermMonths)}
	}
	return Point(float64(t.TermMonths))
}

// Normalize fills omitted bounds of a flexible ticket with the base value
// and drops ranged terms from a fixed one.
func (t *Ticket) Normalize() {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.LoanPurpose = strings.TrimSpace(t.LoanPurpose)
	t.Location = strings.TrimSpace(t.Location)
	if !t.FlexibleTerms {
		t.MinAmount, t.MaxAmount = nil, nil
		t.MinInterestRate, t.MaxInterestRate = nil, nil
		t.MinTermMonths, t.MaxTermMonths = nil, nil
		return
	}
	t.MinAmount = orFloat(t.MinAmount, t.Amount)
	t.MaxAmount = orFloat(t.MaxAmount, t.Amount)
	t.MinInterestRate = orFloat(t.MinInterestRate, t.InterestRate)
	t.MaxInterestRate = orFloat(t.MaxInterestRate, t.InterestRate)
	t.MinTermMonths = orInt(t.MinTermMonths, t.TermMonths)
	t.MaxTermMonths = orInt(t.MaxTermMonths, t.TermMonths)
}

// Validate checks every field rule and the ranged-terms invariant. It
// returns the first violation as a *ValidationError.
func (t *Ticket) Validate() error {
	if !t.Type.Valid() {
		return invalid("ticket_type", "must be one of lending_offer, borrowing_request")
	}
	if !t.Status.Valid() {
		return invalid("status", "unknown status %q", t.Status)
	}
	if n := utf8.RuneCountInString(t.Title); n < 10 || n > 200 {
		return invalid("title", "must be 10-200 characters, got %d", n)
	}
	if n := utf8.RuneCountInString(t.Description); n < 50 {
		return invalid("description", "must be at least 50 characters, got %d", n)
	}
	if err := ValidateTerms(t.Amount, t.InterestRate, t.TermMonths); err != nil {
		return err
	}
	if !t.LoanType.Valid() {
		return invalid("loan_type", "unknown loan type %q", t.LoanType)
	}
	if n := utf8.RuneCountInString(t.LoanPurpose); n < 20 {
		return invalid("loan_purpose", "must be at least 20 characters, got %d", n)
	}
	if !t.Warranty.Type.Valid() {
		return invalid("warranty_type", "unknown warranty type %q", t.Warranty.Type)
	}
	if v := t.Warranty.Value; v != nil && (*v < 0 || !Finite(*v)) {
		return invalid("warranty_value", "must be a non-negative number")
	}
	if t.FlexibleTerms {
		return t.validateRanges()
	}
	return nil
}

func (t *Ticket) validateRanges() error {
	for _, v := range []*float64{t.MinAmount, t.MaxAmount} {
		if v != nil && (*v <= 0 || !Finite(*v)) {
			return invalid("amount_range", "bounds must be positive")
		}
	}
	for _, v := range []*float64{t.MinInterestRate, t.MaxInterestRate} {
		if v != nil && (*v < 0 || *v > 100 || !Finite(*v)) {
			return invalid("interest_rate_range", "bounds must be within [0, 100]")
		}
	}
	for _, v := range []*int{t.MinTermMonths, t.MaxTermMonths} {
		if v != nil && (*v < 1 || *v > 360) {
			return invalid("term_months_range", "bounds must be within [1, 360]")
		}
	}
	if err := checkRange("amount", t.Amount, t.MinAmount, t.MaxAmount); err != nil {
		return err
	}
	if err := checkRange("interest_rate", t.InterestRate, t.MinInterestRate, t.MaxInterestRate); err != nil {
		return err
	}
	return checkRange("term_months", float64(t.TermMonths), intPtrToFloat(t.MinTermMonths), intPtrToFloat(t.MaxTermMonths))
}

// ValidateTerms checks the base financial terms shared by tickets and deal proposals.
func ValidateTerms(amount, rate float64, term int) error {
	if amount <= 0 || !Finite(amount) {
		return invalid("amount", "must be greater than 0")
	}
	if rate < 0 || rate > 100 || !Finite(rate) {
		return invalid("interest_rate", "must be within [0, 100]")
	}
	if term < 1 || term > 360 {
		return invalid("term_months", "must be within [1, 360]")
	}
	return nil
}

// TicketDraft is the create payload.
type TicketDraft struct {
	Type         TicketType `json:"ticket_type"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Amount       float64    `json:"amount"`
	InterestRate float64    `json:"interest_rate"`
	TermMonths   int        `json:"term_months"`

	FlexibleTerms   bool     `json:"flexible_terms"`
	MinAmount       *float64 `json:"min_amount,omitempty"`
	MaxAmount       *float64 `json:"max_amount,omitempty"`
	MinInterestRate *float64 `json:"min_interest_rate,omitempty"`
	MaxInterestRate *float64 `json:"max_interest_rate,omitempty"`
	MinTermMonths   *int     `json:"min_term_months,omitempty"`
	MaxTermMonths   *int     `json:"max_term_months,omitempty"`

	LoanType            LoanType     `json:"loan_type"`
	LoanPurpose         string       `json:"loan_purpose"`
	WarrantyType        WarrantyType `json:"warranty_type"`
	WarrantyDescription string       `json:"warranty_description,omitempty"`
	WarrantyValue       *float64     `json:"warranty_value,omitempty"`
	Requirements        string       `json:"requirements,omitempty"`
	Location            string       `json:"location,omitempty"`
	IsPublic            *bool        `json:"is_public,omitempty"`
}

// NewTicket builds an active ticket owned by ownerID from a draft.
func NewTicket(ownerID int64, d TicketDraft, now time.Time) *Ticket {
	t := &Ticket{
		OwnerID:         ownerID,
		Type:            d.Type,
		Status:          TicketActive,
		Title:           d.Title,
		Description:     d.Description,
		Amount:          d.Amount,
		InterestRate:    d.InterestRate,
		TermMonths:      d.TermMonths,
		FlexibleTerms:   d.FlexibleTerms,
		MinAmount:       d.MinAmount,
		MaxAmount:       d.MaxAmount,
		MinInterestRate: d.MinInterestRate,
		MaxInterestRate: d.MaxInterestRate,
		MinTermMonths:   d.MinTermMonths,
		MaxTermMonths:   d.MaxTermMonths,
		LoanType:        d.LoanType,
		LoanPurpose:     d.LoanPurpose,
		Warranty: Warranty{
			Type:        d.WarrantyType,
			Description: d.WarrantyDescription,
			Value:       d.WarrantyValue,
		},
		Requirements: d.Requirements,
		Location:     d.Location,
		IsPublic:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(TicketTTL),
	}
	if d.IsPublic != nil {
		t.IsPublic = *d.IsPublic
	}
	t.Normalize()
	return t
}

// TicketPatch is a partial update; nil fields are left untouched.
type TicketPatch struct {
	Status       *TicketStatus `json:"status,omitempty"`
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Amount       *float64      `json:"amount,omitempty"`
	InterestRate *float64      `json:"interest_rate,omitempty"`
	TermMonths   *int          `json:"term_months,omitempty"`

	FlexibleTerms   *bool    `json:"flexible_terms,omitempty"`
	MinAmount       *float64 `json:"min_amount,omitempty"`
	MaxAmount       *float64 `json:"max_amount,omitempty"`
	MinInterestRate *float64 `json:"min_interest_rate,omitempty"`
	MaxInterestRate *float64 `json:"max_interest_rate,omitempty"`
	MinTermMonths   *int     `json:"min_term_months,omitempty"`
	MaxTermMonths   *int     `json:"max_term_months,omitempty"`

	LoanType            *LoanType     `json:"loan_type,omitempty"`
	LoanPurpose         *string       `json:"loan_purpose,omitempty"`
	WarrantyType        *WarrantyType `json:"warranty_type,omitempty"`
	WarrantyDescription *string       `json:"warranty_description,omitempty"`
	WarrantyValue       *float64      `json:"warranty_value,omitempty"`
	Requirements        *string       `json:"requirements,omitempty"`
	Location            *string       `json:"location,omitempty"`
	IsPublic            *bool         `json:"is_public,omitempty"`
}

// Validate rejects status values an owner may not set. Expiry belongs to
// the sweeper.
func (p TicketPatch) Validate() error {
	if p.Status == nil {
		return nil
	}
	switch *p.Status {
	case TicketActive, TicketPending, TicketClosed:
		return nil
	}
	return invalid("status", "must be one of active, pending, closed")
}

// Apply merges the patch into t. The caller re-validates afterwards.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	setString(&t.Title, p.Title)
	setString(&t.Description, p.Description)
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.InterestRate != nil {
		t.InterestRate = *p.InterestRate
	}
	if p.TermMonths != nil {
		t.TermMonths = *p.TermMonths
	}
	if p.FlexibleTerms != nil {
		t.FlexibleTerms = *p.FlexibleTerms
	}
	if p.MinAmount != nil {
		t.MinAmount = p.MinAmount
	}
	if p.MaxAmount != nil {
		t.MaxAmount = p.MaxAmount
	}
	if p.MinInterestRate != nil {
		t.MinInterestRate = p.MinInterestRate
	}
	if p.MaxInterestRate != nil {
		t.MaxInterestRate = p.MaxInterestRate
	}
	if p.MinTermMonths != nil {
		t.MinTermMonths = p.MinTermMonths
	}
	if p.MaxTermMonths != nil {
		t.MaxTermMonths = p.MaxTermMonths
	}
	if p.LoanType != nil {
		t.LoanType = *p.LoanType
	}
	setString(&t.LoanPurpose, p.LoanPurpose)
	if p.WarrantyType != nil {
		t.Warranty.Type = *p.WarrantyType
	}
	setString(&t.Warranty.Description, p.WarrantyDescription)
	if p.WarrantyValue != nil {
		t.Warranty.Value = p.WarrantyValue
	}
	setString(&t.Requirements, p.Requirements)
	setString(&t.Location, p.Location)
	if p.IsPublic != nil {
		t.IsPublic = *p.IsPublic
	}
}

// TicketStats aggregates one owner's listings.
type TicketStats struct {
	OwnerID        int64 `json:"owner_id"`
	TotalTickets   int64 `json:"total_tickets"`
	ActiveTickets  int64 `json:"active_tickets"`
	TotalViews     int64 `json:"total_views"`
	TotalResponses int64 `json:"total_responses"`
	TotalDeals     int64 `json:"total_deals"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func orFloat(v *float64, def float64) *float64 {
	if v != nil {
		return v
	}
	return &def
}

func orInt(v *int, def int) *int {
	if v != nil {
		return v
	}
	return &def
}

func intPtrToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
