package store

import (
	"fmt"
	"strings"

	"github.com/punchamoorthee/lendex/internal/domain"
)

const ticketColumns = `id, owner_id, ticket_type, status, title, description,
	amount, interest_rate, term_months, flexible_terms,
	min_amount, max_amount, min_interest_rate, max_interest_rate, min_term_months, max_term_months,
	loan_type, loan_purpose, warranty_type, warranty_description, warranty_value,
	requirements, location, is_public, views_count, responses_count, deals_created,
	created_at, updated_at, expires_at`

const connectionColumns = `id, initiator_id, counterpart_id, status, direction, source_ticket_id,
	proposed_amount, proposed_interest_rate, proposed_term_months, message, created_at, updated_at`

const orderNewestFirst = " ORDER BY created_at DESC, id DESC"

// statsQuery uses CAST rather than :: so both dialects accept it.
const statsQuery = `SELECT
	COUNT(*),
	CAST(COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) AS BIGINT),
	CAST(COALESCE(SUM(views_count), 0) AS BIGINT),
	CAST(COALESCE(SUM(responses_count), 0) AS BIGINT),
	CAST(COALESCE(SUM(deals_created), 0) AS BIGINT)
	FROM tickets WHERE owner_id = `

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func dollar(n int) string { return fmt.Sprintf("$%d", n) }
func question(int) string { return "?" }

// ticketWhere translates domain.TicketFilter.Matches into a WHERE clause.
// The two must stay in step; the store tests compare them row by row.
// lower names the dialect's SQL function that case-folds the same way as
// strings.ToLower.
func ticketWhere(f *domain.TicketFilter, ph placeholder, lower string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}

	clauses = append(clauses, "status = "+arg(string(f.Status)))
	if f.Type != nil {
		clauses = append(clauses, "ticket_type = "+arg(string(*f.Type)))
	}
	if f.LoanType != nil {
		clauses = append(clauses, "loan_type = "+arg(string(*f.LoanType)))
	}
	if f.OwnerID != nil {
		clauses = append(clauses, "owner_id = "+arg(*f.OwnerID))
	}
	if f.ExcludeOwnerID != nil {
		clauses = append(clauses, "owner_id <> "+arg(*f.ExcludeOwnerID))
	}
	clauses = append(clauses, "(is_public OR owner_id = "+arg(f.ViewerID)+")")

	// A caller window [lo, hi] overlaps the ticket window [tmin, tmax]
	// iff tmax >= lo and tmin <= hi.
	overlap := func(base, lo, hi string, min, max any) {
		if min != nil {
			clauses = append(clauses, fmt.Sprintf("(CASE WHEN flexible_terms THEN %s ELSE %s END) >= %s", hi, base, arg(min)))
		}
		if max != nil {
			clauses = append(clauses, fmt.Sprintf("(CASE WHEN flexible_terms THEN %s ELSE %s END) <= %s", lo, base, arg(max)))
		}
	}
	overlap("amount", "min_amount", "max_amount", floatArg(f.MinAmount), floatArg(f.MaxAmount))
	overlap("interest_rate", "min_interest_rate", "max_interest_rate", floatArg(f.MinRate), floatArg(f.MaxRate))
	overlap("term_months", "min_term_months", "max_term_months", intArg(f.MinTerm), intArg(f.MaxTerm))

	if f.Location != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Location)) + "%"
		clauses = append(clauses, lower+"(location) LIKE "+arg(pattern)+` ESCAPE '\'`)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// connectionWhere selects one user's connections by side and status.
func connectionWhere(f *domain.ConnectionFilter, ph placeholder) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}
	switch f.Role {
	case domain.RoleInitiator:
		clauses = append(clauses, "initiator_id = "+arg(f.UserID))
	case domain.RoleCounterpart:
		clauses = append(clauses, "counterpart_id = "+arg(f.UserID))
	default:
		clauses = append(clauses, "(initiator_id = "+arg(f.UserID)+" OR counterpart_id = "+arg(f.UserID)+")")
	}
	if f.Status != nil {
		clauses = append(clauses, "status = "+arg(string(*f.Status)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// escapeLike neutralizes LIKE metacharacters so location is a plain substring.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// floatArg and intArg return an untyped nil for a missing bound, so the
// caller can tell "no bound" apart from a typed nil pointer.
func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func decodeTicketEnums(t *domain.Ticket, ticketType, status, loanType, warrantyType string) error {
	var err error
	if t.Type, err = domain.ParseTicketType(ticketType); err != nil {
		return err
	}
	if t.Status, err = domain.ParseTicketStatus(status); err != nil {
		return err
	}
	if t.LoanType, err = domain.ParseLoanType(loanType); err != nil {
		return err
	}
	t.Warranty.Type, err = domain.ParseWarrantyType(warrantyType)
	return err
}

func decodeConnectionEnums(c *domain.Connection, status, direction string) error {
	var err error
	if c.Status, err = domain.ParseConnectionStatus(status); err != nil {
		return err
	}
	c.Direction, err = domain.ParseDirection(direction)
	return err
}
