/*
Package ledger provides the core versioned debt-tracking engine.

PURPOSE:
  This package contains the entities and algorithms for tracking shared
  monetary debts among a group of people with full history. Every mutation
  (adding a person, adding a debt, retiring a debt) produces a new immutable
  State snapshot instead of editing the previous one, so past balances stay
  reproducible and an audit trail exists.

KEY CONCEPTS IN THIS FILE (types.go):
  - Instance: an independent ledger universe (one household, one trip)
  - Person:   someone who can owe or be owed money
  - Debt:     one purchase/event, paid by a single payee
  - SubDebt:  one debtor's share of a Debt
  - State:    an immutable membership snapshot (which people/debts are active)
  - Snapshot: one consistent in-memory read of a State and its rows

DESIGN PRINCIPLES:
  1. Immutability: States are never edited after creation, only cloned
  2. Precision: money is int64 minor units, never floating point
  3. Type Safety: strong typing for IDs prevents mixing entity kinds
  4. Auditability: every State records a reason and its parent(s)

SEE ALSO:
  - graph.go:  snapshot graph manager (clone, latest, delete-leaf)
  - editor.go: StateEditor for atomic mutations against a fresh clone
  - store.go:  persistence interfaces
  - money.go:  minor-unit Amount and decimal parsing
*/
package ledger

import (
	"sort"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InstanceID int64
type PersonID int64
type DebtID int64
type SubDebtID int64
type StateID int64

// =============================================================================
// ENTITIES
// =============================================================================

// Instance is a named, independent ledger universe. It owns zero or more
// States and is never mutated after creation except for its name.
type Instance struct {
	ID   InstanceID
	Name string
}

// Person is someone to whom money can be owed. Person rows are shared across
// States; a State only records membership.
type Person struct {
	ID    PersonID
	Name  string
	Email string

	// LinkedAccount designates another person that absorbs this person's
	// debts and assets in aggregate views (e.g. a couple sharing one
	// balance). Nil means this person is their own top-level account.
	LinkedAccount *PersonID

	// Retired people stay in history but cannot participate in new debts.
	Retired bool
}

// Debt represents one purchase or event, paid by a single payee. Immutable
// once created: edits go through the clone-and-replace protocol (a new Debt
// is created and the old one removed from the successor State).
type Debt struct {
	ID          DebtID
	Description string
	Date        time.Time
	Payee       PersonID
}

// SubDebt is one debtor's share of a Debt. The sum of a debt's SubDebt
// amounts is its total cost.
type SubDebt struct {
	ID     SubDebtID
	Debt   DebtID
	Amount Amount
	Debtor PersonID
}

// State is an immutable membership snapshot: which people and debts are
// active at a point in history. It does not own the rows, only the set
// membership. States form a DAG via Parents (in practice a chain; clone
// always records exactly one parent).
type State struct {
	ID       StateID
	Instance InstanceID
	Date     time.Time
	Reason   string
	Parents  []StateID
}

// =============================================================================
// SNAPSHOT - One consistent read of a State's membership
// =============================================================================

// Snapshot is a fully materialized State: the membership sets plus the
// referenced rows, fetched in one consistent read. All aggregation operates
// on a Snapshot so that reads need no locking.
type Snapshot struct {
	State    State
	People   map[PersonID]Person
	Debts    map[DebtID]Debt
	SubDebts map[DebtID][]SubDebt
}

// Total returns the total cost of a debt (sum of its subdebt amounts).
func (s *Snapshot) Total(id DebtID) Amount {
	var total Amount
	for _, sd := range s.SubDebts[id] {
		total += sd.Amount
	}
	return total
}

// DebtsByDate returns the snapshot's debts ordered by date (ties by id),
// the order the entries view renders.
func (s *Snapshot) DebtsByDate() []Debt {
	debts := make([]Debt, 0, len(s.Debts))
	for _, d := range s.Debts {
		debts = append(debts, d)
	}
	sort.Slice(debts, func(i, j int) bool {
		if !debts[i].Date.Equal(debts[j].Date) {
			return debts[i].Date.Before(debts[j].Date)
		}
		return debts[i].ID < debts[j].ID
	})
	return debts
}

// Entry is one row of the entries view: a debt with its computed total and
// the names involved.
type Entry struct {
	Debt    Debt
	Payee   string
	Total   Amount
	Debtors []string
}

// Entries materializes the entries view from the snapshot.
func (s *Snapshot) Entries() []Entry {
	var entries []Entry
	for _, d := range s.DebtsByDate() {
		e := Entry{
			Debt:  d,
			Payee: s.People[d.Payee].Name,
			Total: s.Total(d.ID),
		}
		for _, sd := range s.SubDebts[d.ID] {
			e.Debtors = append(e.Debtors, s.People[sd.Debtor].Name)
		}
		entries = append(entries, e)
	}
	return entries
}
