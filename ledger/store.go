/*
store.go - Persistence interfaces for ledger entities and state membership

PURPOSE:
  Defines the interface between the engine and the database. The Store
  handles rows and membership sets; the Graph (graph.go) layers the
  snapshot-versioning rules on top. Different implementations can use
  SQLite or in-memory storage.

KEY INTERFACES:
  Store:   entity CRUD, membership edits, refcount queries, snapshot reads
  TxStore: Store plus WithTx for atomic multi-write mutations

MEMBERSHIP CONTRACT:
  A State's people/debts sets are edited only through Add* and Remove* on a
  state that the Graph has just created. Committed states are never edited;
  the Graph enforces this, the Store does not have to.

REFERENCE COUNTING:
  PersonReferencedElsewhere / DebtReferencedElsewhere answer "is this row a
  member of any state other than X?". DeleteLeaf uses them to decide which
  rows die with the state.

NOT FOUND:
  Get* methods return the matching sentinel from errors.go when the row is
  absent; they never return zero values silently.

SEE ALSO:
  - graph.go:        versioning rules built on this interface
  - store/memory.go: in-memory implementation for tests
  - store/sqlite:    SQLite implementation
*/
package ledger

import "context"

// Store handles persistence of ledger entities and state membership.
type Store interface {
	// Instances
	CreateInstance(ctx context.Context, name string) (Instance, error)
	GetInstance(ctx context.Context, id InstanceID) (Instance, error)
	ListInstances(ctx context.Context) ([]Instance, error)
	RenameInstance(ctx context.Context, id InstanceID, name string) error

	// People. UpdatePerson rewrites name/email/link/retired in place: person
	// rows are shared across states, so edits are visible from every state
	// that references the row.
	CreatePerson(ctx context.Context, p Person) (Person, error)
	GetPerson(ctx context.Context, id PersonID) (Person, error)
	UpdatePerson(ctx context.Context, p Person) error
	DeletePerson(ctx context.Context, id PersonID) error

	// Debts. DeleteDebt cascades to the debt's subdebts.
	CreateDebt(ctx context.Context, d Debt) (Debt, error)
	GetDebt(ctx context.Context, id DebtID) (Debt, error)
	DeleteDebt(ctx context.Context, id DebtID) error
	CreateSubDebt(ctx context.Context, sd SubDebt) (SubDebt, error)
	SubDebtsByDebt(ctx context.Context, id DebtID) ([]SubDebt, error)

	// States. LatestState returns ErrEmptyLedger when the instance has no
	// states. StatesByInstance returns states ordered by date ascending.
	CreateState(ctx context.Context, s State) (State, error)
	GetState(ctx context.Context, id StateID) (State, error)
	DeleteState(ctx context.Context, id StateID) error
	LatestState(ctx context.Context, instance InstanceID) (State, error)
	StatesByInstance(ctx context.Context, instance InstanceID) ([]State, error)

	// Membership sets
	AddStatePerson(ctx context.Context, state StateID, person PersonID) error
	RemoveStatePerson(ctx context.Context, state StateID, person PersonID) error
	AddStateDebt(ctx context.Context, state StateID, debt DebtID) error
	RemoveStateDebt(ctx context.Context, state StateID, debt DebtID) error
	StatePeople(ctx context.Context, state StateID) ([]PersonID, error)
	StateDebts(ctx context.Context, state StateID) ([]DebtID, error)

	// Reference counting for safe deletion
	PersonReferencedElsewhere(ctx context.Context, person PersonID, excluding StateID) (bool, error)
	DebtReferencedElsewhere(ctx context.Context, debt DebtID, excluding StateID) (bool, error)

	// LoadSnapshot materializes a state's membership and all referenced
	// rows in one consistent read.
	LoadSnapshot(ctx context.Context, state StateID) (*Snapshot, error)
}

// TxStore wraps Store with transaction support. Every mutating Graph
// operation runs inside WithTx so that failures leave the store exactly as
// it was.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error, the
	// transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
