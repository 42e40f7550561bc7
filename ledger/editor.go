/*
editor.go - StateEditor: mutation capability for one uncommitted clone

PURPOSE:
  A StateEditor is bound to exactly one newly created, not-yet-committed
  State inside a store transaction. It is the only way ledger rows are added
  to or removed from a state. Graph.CloneAndMutate constructs it and commits
  (or rolls back) everything the editor did.

VALIDATION:
  Every operation computes a typed validation result BEFORE any row is
  written. A returned ValidationError or InconsistentDebtorsError means the
  transaction aborts with zero writes: partially-applied clones cannot occur.

CYCLE POLICY:
  Linking a person so that it becomes reachable from itself (including a
  self-link) is rejected at write time. The balance resolver still tolerates
  cycles in pre-existing data; new ones cannot be written.

SEE ALSO:
  - graph.go:  constructs editors inside CloneAndMutate / MutateInitial
  - errors.go: ValidationError, InconsistentDebtorsError
*/
package ledger

import (
	"context"
	"time"
)

// StateEditor mutates the membership and rows of one uncommitted state.
type StateEditor struct {
	store  Store
	state  State
	people map[PersonID]Person
}

// newStateEditor loads the clone's current membership so validation can run
// without further round-trips.
func newStateEditor(ctx context.Context, s Store, state State) (*StateEditor, error) {
	ids, err := s.StatePeople(ctx, state.ID)
	if err != nil {
		return nil, err
	}
	people := make(map[PersonID]Person, len(ids))
	for _, id := range ids {
		p, err := s.GetPerson(ctx, id)
		if err != nil {
			return nil, err
		}
		people[id] = p
	}
	return &StateEditor{store: s, state: state, people: people}, nil
}

// State returns the state being edited.
func (e *StateEditor) State() State { return e.state }

// People returns the people currently members of the edited state.
func (e *StateEditor) People() map[PersonID]Person {
	out := make(map[PersonID]Person, len(e.people))
	for id, p := range e.people {
		out[id] = p
	}
	return out
}

// =============================================================================
// PEOPLE
// =============================================================================

// AddPerson creates a person row and adds it to the state.
func (e *StateEditor) AddPerson(ctx context.Context, name, email string, linked *PersonID) (Person, error) {
	var fields []FieldError
	if name == "" {
		fields = append(fields, FieldError{Field: "name", Message: "must not be empty"})
	}
	if linked != nil {
		if _, ok := e.people[*linked]; !ok {
			fields = append(fields, FieldError{Field: "linked_account", Message: "not a member of this state"})
		}
	}
	if len(fields) > 0 {
		return Person{}, &ValidationError{Fields: fields}
	}

	p, err := e.store.CreatePerson(ctx, Person{Name: name, Email: email, LinkedAccount: linked})
	if err != nil {
		return Person{}, err
	}
	if err := e.store.AddStatePerson(ctx, e.state.ID, p.ID); err != nil {
		return Person{}, err
	}
	e.people[p.ID] = p
	return p, nil
}

// SetLinkedAccount points a member person at a new linked account (nil to
// unlink). Rejects links that would make the person reachable from itself.
func (e *StateEditor) SetLinkedAccount(ctx context.Context, person PersonID, linked *PersonID) error {
	p, ok := e.people[person]
	if !ok {
		return ErrPersonNotFound
	}
	if linked != nil {
		if _, ok := e.people[*linked]; !ok {
			return &ValidationError{Fields: []FieldError{{
				Field: "linked_account", Message: "not a member of this state",
			}}}
		}
		if e.wouldCycle(person, *linked) {
			return &ValidationError{Fields: []FieldError{{
				Field: "linked_account", Message: "link would form a cycle",
			}}}
		}
	}
	p.LinkedAccount = linked
	if err := e.store.UpdatePerson(ctx, p); err != nil {
		return err
	}
	e.people[person] = p
	return nil
}

// wouldCycle reports whether linking person -> linked makes person reachable
// from itself through the membership's link chains.
func (e *StateEditor) wouldCycle(person, linked PersonID) bool {
	seen := make(map[PersonID]bool)
	k := linked
	for {
		if k == person {
			return true
		}
		if seen[k] {
			return false // existing cycle elsewhere; this link doesn't reach person
		}
		seen[k] = true
		p, ok := e.people[k]
		if !ok || p.LinkedAccount == nil {
			return false
		}
		k = *p.LinkedAccount
	}
}

// RenamePerson updates a member person's name and email.
func (e *StateEditor) RenamePerson(ctx context.Context, person PersonID, name, email string) error {
	p, ok := e.people[person]
	if !ok {
		return ErrPersonNotFound
	}
	if name == "" {
		return &ValidationError{Fields: []FieldError{{
			Field: "name", Message: "must not be empty",
		}}}
	}
	p.Name = name
	p.Email = email
	if err := e.store.UpdatePerson(ctx, p); err != nil {
		return err
	}
	e.people[person] = p
	return nil
}

// RetirePerson marks a member person as retired. Retired people stay in
// history but cannot appear in new debts.
func (e *StateEditor) RetirePerson(ctx context.Context, person PersonID) error {
	p, ok := e.people[person]
	if !ok {
		return ErrPersonNotFound
	}
	p.Retired = true
	if err := e.store.UpdatePerson(ctx, p); err != nil {
		return err
	}
	e.people[person] = p
	return nil
}

// RemovePerson removes a person from the state's membership. Refuses if any
// member debt still involves them as payee or debtor.
func (e *StateEditor) RemovePerson(ctx context.Context, person PersonID) error {
	if _, ok := e.people[person]; !ok {
		return ErrPersonNotFound
	}
	debts, err := e.store.StateDebts(ctx, e.state.ID)
	if err != nil {
		return err
	}
	for _, did := range debts {
		d, err := e.store.GetDebt(ctx, did)
		if err != nil {
			return err
		}
		if d.Payee == person {
			return &ValidationError{Fields: []FieldError{{
				Field: "person", Message: "still payee of an active debt",
			}}}
		}
		subs, err := e.store.SubDebtsByDebt(ctx, did)
		if err != nil {
			return err
		}
		for _, sd := range subs {
			if sd.Debtor == person {
				return &ValidationError{Fields: []FieldError{{
					Field: "person", Message: "still debtor of an active debt",
				}}}
			}
		}
	}
	if err := e.store.RemoveStatePerson(ctx, e.state.ID, person); err != nil {
		return err
	}
	delete(e.people, person)
	return nil
}

// =============================================================================
// DEBTS
// =============================================================================

// Share is one debtor's requested share of a new debt.
type Share struct {
	Debtor PersonID
	Amount Amount
}

// DebtInput describes a debt to add. A zero Date means "now at the state's
// date".
type DebtInput struct {
	Description string
	Date        time.Time
	Payee       PersonID
	Shares      []Share
}

// validateDebt computes the full validation result for a debt before any
// write. Debtor-set problems are reported as InconsistentDebtorsError so the
// caller can distinguish them; other problems as ValidationError.
func (e *StateEditor) validateDebt(in DebtInput) error {
	var fields []FieldError
	if in.Description == "" {
		fields = append(fields, FieldError{Field: "description", Message: "must not be empty"})
	}
	if len(in.Shares) == 0 {
		fields = append(fields, FieldError{Field: "shares", Message: "at least one debtor required"})
	}
	if payee, ok := e.people[in.Payee]; !ok {
		fields = append(fields, FieldError{Field: "payee", Message: "not a member of this state"})
	} else if payee.Retired {
		fields = append(fields, FieldError{Field: "payee", Message: "is retired"})
	}
	for _, sh := range in.Shares {
		if sh.Amount < 0 {
			fields = append(fields, FieldError{Field: "shares", Message: "amounts must not be negative"})
			break
		}
	}

	var inconsistent InconsistentDebtorsError
	for _, sh := range in.Shares {
		p, ok := e.people[sh.Debtor]
		switch {
		case !ok:
			inconsistent.Missing = append(inconsistent.Missing, sh.Debtor)
		case p.Retired:
			inconsistent.Retired = append(inconsistent.Retired, sh.Debtor)
		}
	}
	if len(inconsistent.Missing) > 0 || len(inconsistent.Retired) > 0 {
		return &inconsistent
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// AddDebt creates a debt with explicit per-debtor shares and adds it to the
// state. Nothing is written unless validation passes in full.
func (e *StateEditor) AddDebt(ctx context.Context, in DebtInput) (Debt, error) {
	if err := e.validateDebt(in); err != nil {
		return Debt{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = e.state.Date
	}

	d, err := e.store.CreateDebt(ctx, Debt{
		Description: in.Description,
		Date:        date,
		Payee:       in.Payee,
	})
	if err != nil {
		return Debt{}, err
	}
	for _, sh := range in.Shares {
		if _, err := e.store.CreateSubDebt(ctx, SubDebt{
			Debt:   d.ID,
			Amount: sh.Amount,
			Debtor: sh.Debtor,
		}); err != nil {
			return Debt{}, err
		}
	}
	if err := e.store.AddStateDebt(ctx, e.state.ID, d.ID); err != nil {
		return Debt{}, err
	}
	return d, nil
}

// SplitDebt divides total evenly among the debtors (floor division per
// debtor; the remainder is accepted rounding loss) and adds the debt.
func (e *StateEditor) SplitDebt(ctx context.Context, description string, date time.Time, payee PersonID, total Amount, debtors []PersonID) (Debt, error) {
	share := total.Split(len(debtors))
	shares := make([]Share, len(debtors))
	for i, id := range debtors {
		shares[i] = Share{Debtor: id, Amount: share}
	}
	return e.AddDebt(ctx, DebtInput{
		Description: description,
		Date:        date,
		Payee:       payee,
		Shares:      shares,
	})
}

// RemoveDebt removes a debt from the state's membership. The debt row stays
// in storage while older states reference it; leaf deletion reclaims it.
func (e *StateEditor) RemoveDebt(ctx context.Context, debt DebtID) error {
	debts, err := e.store.StateDebts(ctx, e.state.ID)
	if err != nil {
		return err
	}
	member := false
	for _, did := range debts {
		if did == debt {
			member = true
			break
		}
	}
	if !member {
		return ErrDebtNotFound
	}
	return e.store.RemoveStateDebt(ctx, e.state.ID, debt)
}

// ReplaceDebt is the clone-and-replace edit: it removes the old debt from
// the state and adds a new one in a single editor pass.
func (e *StateEditor) ReplaceDebt(ctx context.Context, old DebtID, in DebtInput) (Debt, error) {
	if err := e.validateDebt(in); err != nil {
		return Debt{}, err
	}
	if err := e.RemoveDebt(ctx, old); err != nil {
		return Debt{}, err
	}
	return e.AddDebt(ctx, in)
}
