/*
graph.go - Snapshot graph manager

PURPOSE:
  Owns the versioning rules of the ledger: how new States come into being
  (clone, initial creation), which State is "latest", and how the most
  recent change is undone (leaf deletion with reference-counted cascade).
  This is the only place new history is created.

CRITICAL INVARIANTS:
  1. CLONE-ONLY HISTORY: committed states are never edited; a mutation
     clones the latest state and edits the clone before commit.
  2. SINGLE WRITER PER INSTANCE: clone+edit+commit holds the instance's
     mutation lock, and the expected parent is re-checked inside the store
     transaction. Two racing mutations cannot silently fork history.
  3. ATOMICITY: every mutating operation runs inside WithTx; a failure
     rolls back all of it.
  4. LEAF-ONLY DELETION: only the current latest state can be deleted
     ("undo the most recent change"); rows it alone references die with it.

CONCURRENCY:
  Reads take no lock: they fetch one consistent Snapshot and work on it.
  Instances are independent; each has its own mutation lock.

SEE ALSO:
  - editor.go: the mutation capability handed to CloneAndMutate callers
  - store.go:  the persistence interface this builds on
*/
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Graph manages the versioned snapshot graph of every instance in a store.
type Graph struct {
	store TxStore

	mu    sync.Mutex
	locks map[InstanceID]*sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewGraph creates a graph manager over the given store.
func NewGraph(store TxStore) *Graph {
	return &Graph{
		store: store,
		locks: make(map[InstanceID]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying store for read-only collaborators.
func (g *Graph) Store() TxStore { return g.store }

// instanceLock returns the mutation lock for an instance, creating it on
// first use.
func (g *Graph) instanceLock(id InstanceID) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	g.locks[id] = l
	return l
}

// =============================================================================
// READS
// =============================================================================

// LatestState returns the state with the maximum date for the instance.
// Returns ErrEmptyLedger when the instance has no states yet; callers treat
// that as "empty ledger", not a fatal error.
func (g *Graph) LatestState(ctx context.Context, instance InstanceID) (State, error) {
	return g.store.LatestState(ctx, instance)
}

// History returns the instance's states ordered by date: the "changes" view.
func (g *Graph) History(ctx context.Context, instance InstanceID) ([]State, error) {
	return g.store.StatesByInstance(ctx, instance)
}

// Snapshot materializes a state for aggregation and rendering. The returned
// value is a consistent copy; no lock is held afterwards.
func (g *Graph) Snapshot(ctx context.Context, state StateID) (*Snapshot, error) {
	return g.store.LoadSnapshot(ctx, state)
}

// =============================================================================
// HISTORY CREATION
// =============================================================================

// CreateInitial creates the first state of an instance with empty membership
// sets. Fails with ErrInvalidOperation if the instance already has states.
func (g *Graph) CreateInitial(ctx context.Context, instance InstanceID, reason string) (State, error) {
	lock := g.instanceLock(instance)
	lock.Lock()
	defer lock.Unlock()

	var created State
	err := g.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetInstance(ctx, instance); err != nil {
			return err
		}
		if _, err := s.LatestState(ctx, instance); err == nil {
			return ErrInvalidOperation
		} else if !errors.Is(err, ErrEmptyLedger) {
			return err
		}
		var err error
		created, err = s.CreateState(ctx, State{
			Instance: instance,
			Date:     g.now(),
			Reason:   reason,
		})
		return err
	})
	if err != nil {
		return State{}, err
	}
	return created, nil
}

// Clone creates a new state whose parent set is exactly {parent} and whose
// membership sets are a full copy of the parent's at this moment. The
// parent's own sets are never touched.
//
// Clone does not check that parent is the latest state; CloneAndMutate does.
// Direct Clone is for callers that manage their own concurrency (tooling,
// imports).
func (g *Graph) Clone(ctx context.Context, parent State, reason string) (State, error) {
	var created State
	err := g.store.WithTx(ctx, func(s Store) error {
		var err error
		created, err = cloneState(ctx, s, parent, reason, g.now())
		return err
	})
	if err != nil {
		return State{}, err
	}
	return created, nil
}

// cloneState performs the membership copy inside an existing transaction.
func cloneState(ctx context.Context, s Store, parent State, reason string, now time.Time) (State, error) {
	created, err := s.CreateState(ctx, State{
		Instance: parent.Instance,
		Date:     now,
		Reason:   reason,
		Parents:  []StateID{parent.ID},
	})
	if err != nil {
		return State{}, err
	}

	people, err := s.StatePeople(ctx, parent.ID)
	if err != nil {
		return State{}, err
	}
	for _, pid := range people {
		if err := s.AddStatePerson(ctx, created.ID, pid); err != nil {
			return State{}, err
		}
	}

	debts, err := s.StateDebts(ctx, parent.ID)
	if err != nil {
		return State{}, err
	}
	for _, did := range debts {
		if err := s.AddStateDebt(ctx, created.ID, did); err != nil {
			return State{}, err
		}
	}

	return created, nil
}

// CloneAndMutate is the mutation entry point: it clones expectedParent and
// hands the uncommitted clone to fn as a StateEditor. The whole operation
// (stale check, clone, every edit) is one atomic transaction under the
// instance's mutation lock.
//
// If expectedParent is no longer the latest state of its instance, nothing
// is written and a StaleParentError (unwrapping to ErrInvalidOperation) is
// returned.
func (g *Graph) CloneAndMutate(ctx context.Context, expectedParent State, reason string, fn func(*StateEditor) error) (State, error) {
	lock := g.instanceLock(expectedParent.Instance)
	lock.Lock()
	defer lock.Unlock()

	var created State
	err := g.store.WithTx(ctx, func(s Store) error {
		latest, err := s.LatestState(ctx, expectedParent.Instance)
		if err != nil {
			return err
		}
		if latest.ID != expectedParent.ID {
			return &StaleParentError{
				Instance: expectedParent.Instance,
				Expected: expectedParent.ID,
				Latest:   latest.ID,
			}
		}

		created, err = cloneState(ctx, s, expectedParent, reason, g.now())
		if err != nil {
			return err
		}

		editor, err := newStateEditor(ctx, s, created)
		if err != nil {
			return err
		}
		return fn(editor)
	})
	if err != nil {
		return State{}, err
	}
	return created, nil
}

// MutateInitial is CloneAndMutate for an instance with no states yet: it
// creates the initial empty state and edits it in the same transaction.
func (g *Graph) MutateInitial(ctx context.Context, instance InstanceID, reason string, fn func(*StateEditor) error) (State, error) {
	lock := g.instanceLock(instance)
	lock.Lock()
	defer lock.Unlock()

	var created State
	err := g.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetInstance(ctx, instance); err != nil {
			return err
		}
		if _, err := s.LatestState(ctx, instance); err == nil {
			return ErrInvalidOperation
		} else if !errors.Is(err, ErrEmptyLedger) {
			return err
		}
		var err error
		created, err = s.CreateState(ctx, State{
			Instance: instance,
			Date:     g.now(),
			Reason:   reason,
		})
		if err != nil {
			return err
		}
		editor, err := newStateEditor(ctx, s, created)
		if err != nil {
			return err
		}
		return fn(editor)
	})
	if err != nil {
		return State{}, err
	}
	return created, nil
}

// =============================================================================
// LEAF DELETION - "undo the most recent change"
// =============================================================================

// DeleteLeaf deletes the given state if and only if it is the current latest
// state of its instance. Every Person and Debt referenced only by this state
// is deleted with it (SubDebts die with their Debt). The whole cascade is
// one transaction: any failure rolls everything back.
func (g *Graph) DeleteLeaf(ctx context.Context, state State) error {
	lock := g.instanceLock(state.Instance)
	lock.Lock()
	defer lock.Unlock()

	return g.store.WithTx(ctx, func(s Store) error {
		latest, err := s.LatestState(ctx, state.Instance)
		if err != nil {
			return err
		}
		if latest.ID != state.ID {
			return ErrInvalidOperation
		}

		people, err := s.StatePeople(ctx, state.ID)
		if err != nil {
			return err
		}
		debts, err := s.StateDebts(ctx, state.ID)
		if err != nil {
			return err
		}

		var orphanPeople []PersonID
		for _, pid := range people {
			referenced, err := s.PersonReferencedElsewhere(ctx, pid, state.ID)
			if err != nil {
				return err
			}
			if !referenced {
				orphanPeople = append(orphanPeople, pid)
			}
		}

		var orphanDebts []DebtID
		for _, did := range debts {
			referenced, err := s.DebtReferencedElsewhere(ctx, did, state.ID)
			if err != nil {
				return err
			}
			if !referenced {
				orphanDebts = append(orphanDebts, did)
			}
		}

		// Membership rows go with the state; debts before people so that
		// payee/debtor references never dangle mid-transaction.
		if err := s.DeleteState(ctx, state.ID); err != nil {
			return err
		}
		for _, did := range orphanDebts {
			if err := s.DeleteDebt(ctx, did); err != nil {
				return err
			}
		}
		for _, pid := range orphanPeople {
			if err := s.DeletePerson(ctx, pid); err != nil {
				return err
			}
		}
		return nil
	})
}
