/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the API as decimal strings ("12.50"), never floats. The
  engine stores integer minor units; parsing and formatting happen here at
  the boundary.

DATES:
  Debt dates and cutoffs use YYYY-MM-DD. State timestamps use RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/money.go: Amount parsing and formatting
*/
package api

import (
	"time"

	"github.com/warp/debt-engine/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// InstanceDTO represents a ledger instance in API responses.
type InstanceDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CreateInstanceRequest is the request to create an instance. The initial
// empty state is created with it.
type CreateInstanceRequest struct {
	Name string `json:"name"`
}

// RenameInstanceRequest is the request to rename an instance.
type RenameInstanceRequest struct {
	Name string `json:"name"`
}

// PersonDTO represents a person in API responses.
type PersonDTO struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	LinkedAccount *int64 `json:"linked_account,omitempty"`
	Retired       bool   `json:"retired,omitempty"`
}

// CreatePersonRequest is the request to add a person to an instance.
type CreatePersonRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	LinkedAccount *int64 `json:"linked_account,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// LinkPersonRequest points a person at a new linked account. A null
// linked_account unlinks.
type LinkPersonRequest struct {
	LinkedAccount *int64 `json:"linked_account"`
	Reason        string `json:"reason,omitempty"`
}

// ShareDTO is one debtor's explicit share of a new debt.
type ShareDTO struct {
	Debtor int64  `json:"debtor"`
	Amount string `json:"amount"`
}

// CreateDebtRequest is the request to record a debt. Exactly one of two
// forms is used:
//   - split:    Total + Debtors (even floor split)
//   - explicit: Shares with per-debtor amounts
type CreateDebtRequest struct {
	Description string     `json:"description"`
	Date        string     `json:"date,omitempty"` // YYYY-MM-DD, defaults to now
	Payee       int64      `json:"payee"`
	Total       string     `json:"total,omitempty"`
	Debtors     []int64    `json:"debtors,omitempty"`
	Shares      []ShareDTO `json:"shares,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// DebtDTO represents a recorded debt in API responses.
type DebtDTO struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Payee       int64  `json:"payee"`
}

// EntryDTO is one row of the entries view: a debt with its computed total
// and the names involved.
type EntryDTO struct {
	ID          int64    `json:"id"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Payee       string   `json:"payee"`
	Total       string   `json:"total"`
	Debtors     []string `json:"debtors"`
}

// StateDTO represents one state in the history view.
type StateDTO struct {
	ID      int64   `json:"id"`
	Date    string  `json:"date"`
	Reason  string  `json:"reason"`
	Parents []int64 `json:"parents,omitempty"`
}

// BalanceRowDTO is one entity's totals in a balance view. Depth is the
// indentation level in detailed mode, 0 otherwise.
type BalanceRowDTO struct {
	Person  int64  `json:"person"`
	Name    string `json:"name"`
	Owed    string `json:"owed"`
	Paid    string `json:"paid"`
	Balance string `json:"balance"`
	Depth   int    `json:"depth"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toInstanceDTO(inst ledger.Instance) InstanceDTO {
	return InstanceDTO{ID: int64(inst.ID), Name: inst.Name}
}

func toPersonDTO(p ledger.Person) PersonDTO {
	dto := PersonDTO{
		ID:      int64(p.ID),
		Name:    p.Name,
		Email:   p.Email,
		Retired: p.Retired,
	}
	if p.LinkedAccount != nil {
		id := int64(*p.LinkedAccount)
		dto.LinkedAccount = &id
	}
	return dto
}

func toDebtDTO(d ledger.Debt) DebtDTO {
	return DebtDTO{
		ID:          int64(d.ID),
		Description: d.Description,
		Date:        d.Date.Format("2006-01-02"),
		Payee:       int64(d.Payee),
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	debtors := e.Debtors
	if debtors == nil {
		debtors = []string{}
	}
	return EntryDTO{
		ID:          int64(e.Debt.ID),
		Description: e.Debt.Description,
		Date:        e.Debt.Date.Format("2006-01-02"),
		Payee:       e.Payee,
		Total:       e.Total.String(),
		Debtors:     debtors,
	}
}

func toStateDTO(s ledger.State) StateDTO {
	dto := StateDTO{
		ID:     int64(s.ID),
		Date:   s.Date.Format(time.RFC3339),
		Reason: s.Reason,
	}
	for _, p := range s.Parents {
		dto.Parents = append(dto.Parents, int64(p))
	}
	return dto
}
