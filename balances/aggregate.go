/*
Package balances turns a ledger snapshot into an ordered balance view.

PURPOSE:
  Walks a snapshot's debts and sub-debts, attributing amounts to people (or
  their resolved linked account) and producing per-entity paid/owed/balance
  totals in one of three modes:

    Summary:    one row per top-level account; dependents' amounts fold into
                their linked account's totals.
    Detailed:   one row per person, amounts propagated up the linked-account
                chain, ordered so each account group renders as a contiguous
                indented block.
    Individual: one row per person, no propagation, ordered by balance.

DESIGN:
  Each call builds its own pass context (arena of summary records indexed by
  person id, parent/child relationships as arena indices, resolution cache)
  and discards it afterwards. There is no shared mutable state between
  calls, so concurrent reads are safe.

MONEY:
  Pure int64 minor-unit arithmetic. Owed and paid totals over all rows each
  equal the total cost of the included debts (up to the documented floor-
  split rounding loss, which is already baked into the stored sub-debts).

SEE ALSO:
  - resolver.go: linked-account resolution
  - compare.go:  detailed-mode ordering
*/
package balances

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/debt-engine/ledger"
)

// Mode selects the aggregation view.
type Mode string

const (
	ModeSummary    Mode = "summary"
	ModeDetailed   Mode = "detailed"
	ModeIndividual Mode = "individual"
)

// ParseMode validates a mode string from the outside world.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSummary, ModeDetailed, ModeIndividual:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown aggregation mode %q", s)
}

// Row is one entity's totals in the produced view.
type Row struct {
	Person  ledger.PersonID
	Name    string
	Owed    ledger.Amount
	Paid    ledger.Amount
	Balance ledger.Amount // paid - owed
	Depth   int           // indentation level in detailed mode; 0 for roots
}

// =============================================================================
// PASS CONTEXT - arena of summary records, built and discarded per call
// =============================================================================

type record struct {
	person   ledger.PersonID
	name     string
	owed     ledger.Amount
	paid     ledger.Amount
	parent   int // arena index, -1 for roots
	children []int
	depth    int // memoized; -1 until computed
}

type pass struct {
	snap  *ledger.Snapshot
	lm    links
	cache map[ledger.PersonID]ledger.PersonID

	arena []record
	index map[ledger.PersonID]int
}

func (p *pass) add(id ledger.PersonID, name string) {
	p.index[id] = len(p.arena)
	p.arena = append(p.arena, record{person: id, name: name, parent: -1, depth: -1})
}

// depthOf computes and memoizes a record's depth: 0 for roots, otherwise
// parent depth + 1.
func (p *pass) depthOf(i int) int {
	r := &p.arena[i]
	if r.depth >= 0 {
		return r.depth
	}
	if r.parent < 0 {
		r.depth = 0
	} else {
		r.depth = p.depthOf(r.parent) + 1
	}
	return r.depth
}

func (p *pass) balance(i int) ledger.Amount {
	return p.arena[i].paid - p.arena[i].owed
}

// sortedPeople returns the snapshot's person ids in id order so the arena
// layout is deterministic.
func sortedPeople(snap *ledger.Snapshot) []ledger.PersonID {
	ids := make([]ledger.PersonID, 0, len(snap.People))
	for id := range snap.People {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedDebts(snap *ledger.Snapshot) []ledger.DebtID {
	ids := make([]ledger.DebtID, 0, len(snap.Debts))
	for id := range snap.Debts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// buildForest wires parent/child indices from the membership links. A link
// whose assignment would make a record its own ancestor is skipped (degraded
// data; the write path rejects new cycles).
func (p *pass) buildForest() {
	for id, target := range p.lm {
		i, ok := p.index[id]
		if !ok {
			continue
		}
		j, ok := p.index[target]
		if !ok {
			continue
		}
		if p.isAncestor(i, j) {
			continue
		}
		p.arena[i].parent = j
		p.arena[j].children = append(p.arena[j].children, i)
	}
	for i := range p.arena {
		sort.Ints(p.arena[i].children)
	}
}

// isAncestor reports whether a is on b's parent chain (or equal to b).
func (p *pass) isAncestor(a, b int) bool {
	for k := b; k >= 0; k = p.arena[k].parent {
		if k == a {
			return true
		}
	}
	return false
}

// =============================================================================
// ATTRIBUTION
// =============================================================================

// addOwed attributes an owed amount to a debtor according to the mode.
func (p *pass) addOwed(mode Mode, debtor ledger.PersonID, amount ledger.Amount) error {
	i, err := p.target(mode, debtor)
	if err != nil {
		return err
	}
	p.arena[i].owed += amount
	if mode == ModeDetailed {
		for a := p.arena[i].parent; a >= 0; a = p.arena[a].parent {
			p.arena[a].owed += amount
		}
	}
	return nil
}

// addPaid attributes a paid amount (asset) to a payee according to the mode.
func (p *pass) addPaid(mode Mode, payee ledger.PersonID, amount ledger.Amount) error {
	i, err := p.target(mode, payee)
	if err != nil {
		return err
	}
	p.arena[i].paid += amount
	if mode == ModeDetailed {
		for a := p.arena[i].parent; a >= 0; a = p.arena[a].parent {
			p.arena[a].paid += amount
		}
	}
	return nil
}

// target finds the arena record an amount lands on: the person's own record,
// or in summary mode the record of their resolved top-level account. A
// person absent from the snapshot is an error, never silently substituted.
func (p *pass) target(mode Mode, person ledger.PersonID) (int, error) {
	id := person
	if mode == ModeSummary {
		id = resolveTop(person, p.lm, p.cache)
	}
	i, ok := p.index[id]
	if !ok {
		return 0, fmt.Errorf("person %d in debts but not in state: %w", person, ledger.ErrPersonNotFound)
	}
	return i, nil
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Aggregate produces the ordered balance view for a snapshot. A non-nil
// cutoff restricts the walk to debts dated strictly before it (historical
// queries).
func Aggregate(snap *ledger.Snapshot, mode Mode, cutoff *time.Time) ([]Row, error) {
	p := &pass{
		snap:  snap,
		lm:    buildLinks(snap),
		cache: make(map[ledger.PersonID]ledger.PersonID),
		index: make(map[ledger.PersonID]int),
	}

	// Records: every person, or only roots in summary mode. A root is a
	// person with no linked account, or whose linked account is absent from
	// the snapshot's active set.
	for _, id := range sortedPeople(snap) {
		if mode == ModeSummary {
			if _, linked := p.lm[id]; linked {
				continue
			}
		}
		p.add(id, snap.People[id].Name)
	}
	if mode != ModeSummary {
		p.buildForest()
	}

	// Debts: sum sub-debts, owed to debtors, paid to the payee.
	for _, did := range sortedDebts(snap) {
		debt := snap.Debts[did]
		if cutoff != nil && !debt.Date.Before(*cutoff) {
			continue
		}
		var total ledger.Amount
		for _, sd := range snap.SubDebts[did] {
			if err := p.addOwed(mode, sd.Debtor, sd.Amount); err != nil {
				return nil, fmt.Errorf("debt %d: %w", did, err)
			}
			total += sd.Amount
		}
		if err := p.addPaid(mode, debt.Payee, total); err != nil {
			return nil, fmt.Errorf("debt %d: %w", did, err)
		}
	}

	// Order: detailed uses the tree comparator so each linked-account group
	// is a contiguous block; the other modes sort by balance ascending.
	order := make([]int, len(p.arena))
	for i := range order {
		order[i] = i
	}
	if mode == ModeDetailed {
		sort.Slice(order, func(a, b int) bool {
			return p.compare(order[a], order[b]) < 0
		})
	} else {
		sort.Slice(order, func(a, b int) bool {
			ba, bb := p.balance(order[a]), p.balance(order[b])
			if ba != bb {
				return ba < bb
			}
			return p.arena[order[a]].person < p.arena[order[b]].person
		})
	}

	rows := make([]Row, len(order))
	for n, i := range order {
		r := p.arena[i]
		rows[n] = Row{
			Person:  r.person,
			Name:    r.name,
			Owed:    r.owed,
			Paid:    r.paid,
			Balance: r.paid - r.owed,
			Depth:   p.depthOf(i),
		}
	}
	return rows, nil
}
