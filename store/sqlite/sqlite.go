/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  instances:     ledger universes
  people:        shared person rows (name, email, linked account, retired)
  debts:         one row per purchase/event
  subdebts:      per-debtor shares, cascade-deleted with their debt
  states:        snapshot metadata (instance, date, reason)
  state_parents: snapshot DAG edges
  state_people:  person membership per state
  state_debts:   debt membership per state

DATES:
  Stored as fixed-width UTC text with nanosecond precision so lexicographic
  ORDER BY matches chronological order. Latest-state ties break by highest id.

REFERENCE COUNTING:
  PersonReferencedElsewhere / DebtReferencedElsewhere are single EXISTS-style
  queries over the membership tables; leaf deletion uses them to decide which
  rows die with the state.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; WithTx holds the write lock for the
  whole transaction. SQLite is opened with WAL (Write-Ahead Logging) for
  better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/debts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  graph := ledger.NewGraph(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go:        interface definitions
  - ledger/graph.go:        versioning rules built on this store
  - ledger/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/debt-engine/ledger"
)

// timeFormat is fixed-width so stored dates sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pooled connection to ":memory:" would get its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS people (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		linked_account INTEGER REFERENCES people(id) ON DELETE SET NULL,
		retired BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS debts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		date TEXT NOT NULL,
		payee INTEGER NOT NULL REFERENCES people(id)
	);

	CREATE TABLE IF NOT EXISTS subdebts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		debt INTEGER NOT NULL REFERENCES debts(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL CHECK (amount >= 0),
		debtor INTEGER NOT NULL REFERENCES people(id)
	);

	CREATE TABLE IF NOT EXISTS states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance INTEGER NOT NULL REFERENCES instances(id),
		date TEXT NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS state_parents (
		state INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
		parent INTEGER NOT NULL REFERENCES states(id),
		PRIMARY KEY (state, parent)
	);

	CREATE TABLE IF NOT EXISTS state_people (
		state INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
		person INTEGER NOT NULL REFERENCES people(id),
		PRIMARY KEY (state, person)
	);

	CREATE TABLE IF NOT EXISTS state_debts (
		state INTEGER NOT NULL REFERENCES states(id) ON DELETE CASCADE,
		debt INTEGER NOT NULL REFERENCES debts(id),
		PRIMARY KEY (state, debt)
	);

	-- Latest-state lookup (hot path)
	CREATE INDEX IF NOT EXISTS idx_states_instance_date
		ON states(instance, date DESC, id DESC);

	-- Reference-count queries for leaf deletion
	CREATE INDEX IF NOT EXISTS idx_state_people_person
		ON state_people(person);
	CREATE INDEX IF NOT EXISTS idx_state_debts_debt
		ON state_debts(debt);

	CREATE INDEX IF NOT EXISTS idx_subdebts_debt
		ON subdebts(debt);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so the query helpers below
// serve direct calls and WithTx callbacks alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Any error from fn rolls
// the whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transaction-scoped Store view handed to WithTx callbacks.
// It delegates to the same query helpers as Store, minus the locking (the
// outer WithTx already holds the write lock).
type txStore struct {
	q dbtx
}

var _ ledger.Store = (*txStore)(nil)

// =============================================================================
// INSTANCES
// =============================================================================

func createInstance(ctx context.Context, q dbtx, name string) (ledger.Instance, error) {
	res, err := q.ExecContext(ctx, "INSERT INTO instances (name) VALUES (?)", name)
	if err != nil {
		return ledger.Instance{}, fmt.Errorf("failed to create instance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Instance{}, err
	}
	return ledger.Instance{ID: ledger.InstanceID(id), Name: name}, nil
}

func getInstance(ctx context.Context, q dbtx, id ledger.InstanceID) (ledger.Instance, error) {
	var inst ledger.Instance
	err := q.QueryRowContext(ctx,
		"SELECT id, name FROM instances WHERE id = ?", id,
	).Scan(&inst.ID, &inst.Name)
	if err == sql.ErrNoRows {
		return ledger.Instance{}, ledger.ErrInstanceNotFound
	}
	if err != nil {
		return ledger.Instance{}, err
	}
	return inst, nil
}

func listInstances(ctx context.Context, q dbtx) ([]ledger.Instance, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM instances ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Instance
	for rows.Next() {
		var inst ledger.Instance
		if err := rows.Scan(&inst.ID, &inst.Name); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func renameInstance(ctx context.Context, q dbtx, id ledger.InstanceID, name string) error {
	res, err := q.ExecContext(ctx, "UPDATE instances SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrInstanceNotFound)
}

// =============================================================================
// PEOPLE
// =============================================================================

func createPerson(ctx context.Context, q dbtx, p ledger.Person) (ledger.Person, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO people (name, email, linked_account, retired) VALUES (?, ?, ?, ?)",
		p.Name, p.Email, nullID(p.LinkedAccount), p.Retired,
	)
	if err != nil {
		return ledger.Person{}, fmt.Errorf("failed to create person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Person{}, err
	}
	p.ID = ledger.PersonID(id)
	return p, nil
}

func getPerson(ctx context.Context, q dbtx, id ledger.PersonID) (ledger.Person, error) {
	var (
		p      ledger.Person
		linked sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, linked_account, retired FROM people WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Email, &linked, &p.Retired)
	if err == sql.ErrNoRows {
		return ledger.Person{}, ledger.ErrPersonNotFound
	}
	if err != nil {
		return ledger.Person{}, err
	}
	if linked.Valid {
		lid := ledger.PersonID(linked.Int64)
		p.LinkedAccount = &lid
	}
	return p, nil
}

func updatePerson(ctx context.Context, q dbtx, p ledger.Person) error {
	res, err := q.ExecContext(ctx,
		"UPDATE people SET name = ?, email = ?, linked_account = ?, retired = ? WHERE id = ?",
		p.Name, p.Email, nullID(p.LinkedAccount), p.Retired, p.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrPersonNotFound)
}

func deletePerson(ctx context.Context, q dbtx, id ledger.PersonID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM people WHERE id = ?", id)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrPersonNotFound)
}

// =============================================================================
// DEBTS AND SUB-DEBTS
// =============================================================================

func createDebt(ctx context.Context, q dbtx, d ledger.Debt) (ledger.Debt, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO debts (description, date, payee) VALUES (?, ?, ?)",
		d.Description, d.Date.UTC().Format(timeFormat), d.Payee,
	)
	if err != nil {
		return ledger.Debt{}, fmt.Errorf("failed to create debt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Debt{}, err
	}
	d.ID = ledger.DebtID(id)
	return d, nil
}

func getDebt(ctx context.Context, q dbtx, id ledger.DebtID) (ledger.Debt, error) {
	var (
		d    ledger.Debt
		date string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, description, date, payee FROM debts WHERE id = ?", id,
	).Scan(&d.ID, &d.Description, &date, &d.Payee)
	if err == sql.ErrNoRows {
		return ledger.Debt{}, ledger.ErrDebtNotFound
	}
	if err != nil {
		return ledger.Debt{}, err
	}
	d.Date, err = time.Parse(timeFormat, date)
	if err != nil {
		return ledger.Debt{}, fmt.Errorf("failed to parse debt date: %w", err)
	}
	return d, nil
}

// deleteDebt removes a debt; its subdebts go with it via ON DELETE CASCADE.
func deleteDebt(ctx context.Context, q dbtx, id ledger.DebtID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM debts WHERE id = ?", id)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrDebtNotFound)
}

func createSubDebt(ctx context.Context, q dbtx, sd ledger.SubDebt) (ledger.SubDebt, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO subdebts (debt, amount, debtor) VALUES (?, ?, ?)",
		sd.Debt, int64(sd.Amount), sd.Debtor,
	)
	if err != nil {
		return ledger.SubDebt{}, fmt.Errorf("failed to create subdebt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.SubDebt{}, err
	}
	sd.ID = ledger.SubDebtID(id)
	return sd, nil
}

func subDebtsByDebt(ctx context.Context, q dbtx, id ledger.DebtID) ([]ledger.SubDebt, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, debt, amount, debtor FROM subdebts WHERE debt = ? ORDER BY id", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.SubDebt
	for rows.Next() {
		var sd ledger.SubDebt
		if err := rows.Scan(&sd.ID, &sd.Debt, &sd.Amount, &sd.Debtor); err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

// =============================================================================
// STATES
// =============================================================================

func createState(ctx context.Context, q dbtx, st ledger.State) (ledger.State, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO states (instance, date, reason) VALUES (?, ?, ?)",
		st.Instance, st.Date.UTC().Format(timeFormat), st.Reason,
	)
	if err != nil {
		return ledger.State{}, fmt.Errorf("failed to create state: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.State{}, err
	}
	st.ID = ledger.StateID(id)
	for _, parent := range st.Parents {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO state_parents (state, parent) VALUES (?, ?)", st.ID, parent,
		); err != nil {
			return ledger.State{}, fmt.Errorf("failed to record state parent: %w", err)
		}
	}
	return st, nil
}

func scanState(row *sql.Row) (ledger.State, error) {
	var (
		st   ledger.State
		date string
	)
	err := row.Scan(&st.ID, &st.Instance, &date, &st.Reason)
	if err == sql.ErrNoRows {
		return ledger.State{}, ledger.ErrStateNotFound
	}
	if err != nil {
		return ledger.State{}, err
	}
	st.Date, err = time.Parse(timeFormat, date)
	if err != nil {
		return ledger.State{}, fmt.Errorf("failed to parse state date: %w", err)
	}
	return st, nil
}

func stateParents(ctx context.Context, q dbtx, id ledger.StateID) ([]ledger.StateID, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT parent FROM state_parents WHERE state = ? ORDER BY parent", id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.StateID
	for rows.Next() {
		var pid ledger.StateID
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		out = append(out, pid)
	}
	return out, rows.Err()
}

func getState(ctx context.Context, q dbtx, id ledger.StateID) (ledger.State, error) {
	st, err := scanState(q.QueryRowContext(ctx,
		"SELECT id, instance, date, reason FROM states WHERE id = ?", id,
	))
	if err != nil {
		return ledger.State{}, err
	}
	st.Parents, err = stateParents(ctx, q, id)
	if err != nil {
		return ledger.State{}, err
	}
	return st, nil
}

// deleteState removes a state; membership rows and parent edges cascade.
func deleteState(ctx context.Context, q dbtx, id ledger.StateID) error {
	res, err := q.ExecContext(ctx, "DELETE FROM states WHERE id = ?", id)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrStateNotFound)
}

func latestState(ctx context.Context, q dbtx, instance ledger.InstanceID) (ledger.State, error) {
	st, err := scanState(q.QueryRowContext(ctx,
		`SELECT id, instance, date, reason FROM states
		 WHERE instance = ?
		 ORDER BY date DESC, id DESC
		 LIMIT 1`, instance,
	))
	if err == ledger.ErrStateNotFound {
		return ledger.State{}, ledger.ErrEmptyLedger
	}
	if err != nil {
		return ledger.State{}, err
	}
	st.Parents, err = stateParents(ctx, q, st.ID)
	if err != nil {
		return ledger.State{}, err
	}
	return st, nil
}

func statesByInstance(ctx context.Context, q dbtx, instance ledger.InstanceID) ([]ledger.State, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, instance, date, reason FROM states
		 WHERE instance = ?
		 ORDER BY date ASC, id ASC`, instance,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.State
	for rows.Next() {
		var (
			st   ledger.State
			date string
		)
		if err := rows.Scan(&st.ID, &st.Instance, &date, &st.Reason); err != nil {
			return nil, err
		}
		st.Date, err = time.Parse(timeFormat, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse state date: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Parents, err = stateParents(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

func addStatePerson(ctx context.Context, q dbtx, state ledger.StateID, person ledger.PersonID) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO state_people (state, person) VALUES (?, ?)", state, person,
	)
	return err
}

func removeStatePerson(ctx context.Context, q dbtx, state ledger.StateID, person ledger.PersonID) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM state_people WHERE state = ? AND person = ?", state, person,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrPersonNotFound)
}

func addStateDebt(ctx context.Context, q dbtx, state ledger.StateID, debt ledger.DebtID) error {
	_, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO state_debts (state, debt) VALUES (?, ?)", state, debt,
	)
	return err
}

func removeStateDebt(ctx context.Context, q dbtx, state ledger.StateID, debt ledger.DebtID) error {
	res, err := q.ExecContext(ctx,
		"DELETE FROM state_debts WHERE state = ? AND debt = ?", state, debt,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, ledger.ErrDebtNotFound)
}

func statePeople(ctx context.Context, q dbtx, state ledger.StateID) ([]ledger.PersonID, error) {
	if err := stateExists(ctx, q, state); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		"SELECT person FROM state_people WHERE state = ? ORDER BY person", state,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PersonID
	for rows.Next() {
		var id ledger.PersonID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func stateDebts(ctx context.Context, q dbtx, state ledger.StateID) ([]ledger.DebtID, error) {
	if err := stateExists(ctx, q, state); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		"SELECT debt FROM state_debts WHERE state = ? ORDER BY debt", state,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.DebtID
	for rows.Next() {
		var id ledger.DebtID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func stateExists(ctx context.Context, q dbtx, state ledger.StateID) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM states WHERE id = ?", state).Scan(&one)
	if err == sql.ErrNoRows {
		return ledger.ErrStateNotFound
	}
	return err
}

// =============================================================================
// REFERENCE COUNTING
// =============================================================================

func personReferencedElsewhere(ctx context.Context, q dbtx, person ledger.PersonID, excluding ledger.StateID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM state_people WHERE person = ? AND state != ? LIMIT 1",
		person, excluding,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func debtReferencedElsewhere(ctx context.Context, q dbtx, debt ledger.DebtID, excluding ledger.StateID) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM state_debts WHERE debt = ? AND state != ? LIMIT 1",
		debt, excluding,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// SNAPSHOT READS
// =============================================================================

func loadSnapshot(ctx context.Context, q dbtx, state ledger.StateID) (*ledger.Snapshot, error) {
	st, err := getState(ctx, q, state)
	if err != nil {
		return nil, err
	}

	snap := &ledger.Snapshot{
		State:    st,
		People:   make(map[ledger.PersonID]ledger.Person),
		Debts:    make(map[ledger.DebtID]ledger.Debt),
		SubDebts: make(map[ledger.DebtID][]ledger.SubDebt),
	}

	rows, err := q.QueryContext(ctx,
		`SELECT p.id, p.name, p.email, p.linked_account, p.retired
		 FROM people p JOIN state_people sp ON sp.person = p.id
		 WHERE sp.state = ?`, state,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      ledger.Person
			linked sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &linked, &p.Retired); err != nil {
			return nil, err
		}
		if linked.Valid {
			lid := ledger.PersonID(linked.Int64)
			p.LinkedAccount = &lid
		}
		snap.People[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debtRows, err := q.QueryContext(ctx,
		`SELECT d.id, d.description, d.date, d.payee
		 FROM debts d JOIN state_debts sd ON sd.debt = d.id
		 WHERE sd.state = ?`, state,
	)
	if err != nil {
		return nil, err
	}
	defer debtRows.Close()
	for debtRows.Next() {
		var (
			d    ledger.Debt
			date string
		)
		if err := debtRows.Scan(&d.ID, &d.Description, &date, &d.Payee); err != nil {
			return nil, err
		}
		d.Date, err = time.Parse(timeFormat, date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse debt date: %w", err)
		}
		snap.Debts[d.ID] = d
	}
	if err := debtRows.Err(); err != nil {
		return nil, err
	}

	subRows, err := q.QueryContext(ctx,
		`SELECT s.id, s.debt, s.amount, s.debtor
		 FROM subdebts s JOIN state_debts sd ON sd.debt = s.debt
		 WHERE sd.state = ?
		 ORDER BY s.id`, state,
	)
	if err != nil {
		return nil, err
	}
	defer subRows.Close()
	for subRows.Next() {
		var sd ledger.SubDebt
		if err := subRows.Scan(&sd.ID, &sd.Debt, &sd.Amount, &sd.Debtor); err != nil {
			return nil, err
		}
		snap.SubDebts[sd.Debt] = append(snap.SubDebts[sd.Debt], sd)
	}
	if err := subRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// =============================================================================
// STORE METHODS - lock, then delegate to the shared helpers
// =============================================================================

func (s *Store) CreateInstance(ctx context.Context, name string) (ledger.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createInstance(ctx, s.db, name)
}

func (s *Store) GetInstance(ctx context.Context, id ledger.InstanceID) (ledger.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInstance(ctx, s.db, id)
}

func (s *Store) ListInstances(ctx context.Context) ([]ledger.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInstances(ctx, s.db)
}

func (s *Store) RenameInstance(ctx context.Context, id ledger.InstanceID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return renameInstance(ctx, s.db, id, name)
}

func (s *Store) CreatePerson(ctx context.Context, p ledger.Person) (ledger.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createPerson(ctx, s.db, p)
}

func (s *Store) GetPerson(ctx context.Context, id ledger.PersonID) (ledger.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPerson(ctx, s.db, id)
}

func (s *Store) UpdatePerson(ctx context.Context, p ledger.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePerson(ctx, s.db, p)
}

func (s *Store) DeletePerson(ctx context.Context, id ledger.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deletePerson(ctx, s.db, id)
}

func (s *Store) CreateDebt(ctx context.Context, d ledger.Debt) (ledger.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDebt(ctx, s.db, d)
}

func (s *Store) GetDebt(ctx context.Context, id ledger.DebtID) (ledger.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDebt(ctx, s.db, id)
}

func (s *Store) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteDebt(ctx, s.db, id)
}

func (s *Store) CreateSubDebt(ctx context.Context, sd ledger.SubDebt) (ledger.SubDebt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createSubDebt(ctx, s.db, sd)
}

func (s *Store) SubDebtsByDebt(ctx context.Context, id ledger.DebtID) ([]ledger.SubDebt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return subDebtsByDebt(ctx, s.db, id)
}

func (s *Store) CreateState(ctx context.Context, st ledger.State) (ledger.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createState(ctx, s.db, st)
}

func (s *Store) GetState(ctx context.Context, id ledger.StateID) (ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getState(ctx, s.db, id)
}

func (s *Store) DeleteState(ctx context.Context, id ledger.StateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteState(ctx, s.db, id)
}

func (s *Store) LatestState(ctx context.Context, instance ledger.InstanceID) (ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestState(ctx, s.db, instance)
}

func (s *Store) StatesByInstance(ctx context.Context, instance ledger.InstanceID) ([]ledger.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statesByInstance(ctx, s.db, instance)
}

func (s *Store) AddStatePerson(ctx context.Context, state ledger.StateID, person ledger.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addStatePerson(ctx, s.db, state, person)
}

func (s *Store) RemoveStatePerson(ctx context.Context, state ledger.StateID, person ledger.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeStatePerson(ctx, s.db, state, person)
}

func (s *Store) AddStateDebt(ctx context.Context, state ledger.StateID, debt ledger.DebtID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addStateDebt(ctx, s.db, state, debt)
}

func (s *Store) RemoveStateDebt(ctx context.Context, state ledger.StateID, debt ledger.DebtID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeStateDebt(ctx, s.db, state, debt)
}

func (s *Store) StatePeople(ctx context.Context, state ledger.StateID) ([]ledger.PersonID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statePeople(ctx, s.db, state)
}

func (s *Store) StateDebts(ctx context.Context, state ledger.StateID) ([]ledger.DebtID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateDebts(ctx, s.db, state)
}

func (s *Store) PersonReferencedElsewhere(ctx context.Context, person ledger.PersonID, excluding ledger.StateID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return personReferencedElsewhere(ctx, s.db, person, excluding)
}

func (s *Store) DebtReferencedElsewhere(ctx context.Context, debt ledger.DebtID, excluding ledger.StateID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return debtReferencedElsewhere(ctx, s.db, debt, excluding)
}

func (s *Store) LoadSnapshot(ctx context.Context, state ledger.StateID) (*ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadSnapshot(ctx, s.db, state)
}

// =============================================================================
// TX STORE METHODS - same helpers, no locking
// =============================================================================

func (t *txStore) CreateInstance(ctx context.Context, name string) (ledger.Instance, error) {
	return createInstance(ctx, t.q, name)
}

func (t *txStore) GetInstance(ctx context.Context, id ledger.InstanceID) (ledger.Instance, error) {
	return getInstance(ctx, t.q, id)
}

func (t *txStore) ListInstances(ctx context.Context) ([]ledger.Instance, error) {
	return listInstances(ctx, t.q)
}

func (t *txStore) RenameInstance(ctx context.Context, id ledger.InstanceID, name string) error {
	return renameInstance(ctx, t.q, id, name)
}

func (t *txStore) CreatePerson(ctx context.Context, p ledger.Person) (ledger.Person, error) {
	return createPerson(ctx, t.q, p)
}

func (t *txStore) GetPerson(ctx context.Context, id ledger.PersonID) (ledger.Person, error) {
	return getPerson(ctx, t.q, id)
}

func (t *txStore) UpdatePerson(ctx context.Context, p ledger.Person) error {
	return updatePerson(ctx, t.q, p)
}

func (t *txStore) DeletePerson(ctx context.Context, id ledger.PersonID) error {
	return deletePerson(ctx, t.q, id)
}

func (t *txStore) CreateDebt(ctx context.Context, d ledger.Debt) (ledger.Debt, error) {
	return createDebt(ctx, t.q, d)
}

func (t *txStore) GetDebt(ctx context.Context, id ledger.DebtID) (ledger.Debt, error) {
	return getDebt(ctx, t.q, id)
}

func (t *txStore) DeleteDebt(ctx context.Context, id ledger.DebtID) error {
	return deleteDebt(ctx, t.q, id)
}

func (t *txStore) CreateSubDebt(ctx context.Context, sd ledger.SubDebt) (ledger.SubDebt, error) {
	return createSubDebt(ctx, t.q, sd)
}

func (t *txStore) SubDebtsByDebt(ctx context.Context, id ledger.DebtID) ([]ledger.SubDebt, error) {
	return subDebtsByDebt(ctx, t.q, id)
}

func (t *txStore) CreateState(ctx context.Context, st ledger.State) (ledger.State, error) {
	return createState(ctx, t.q, st)
}

func (t *txStore) GetState(ctx context.Context, id ledger.StateID) (ledger.State, error) {
	return getState(ctx, t.q, id)
}

func (t *txStore) DeleteState(ctx context.Context, id ledger.StateID) error {
	return deleteState(ctx, t.q, id)
}

func (t *txStore) LatestState(ctx context.Context, instance ledger.InstanceID) (ledger.State, error) {
	return latestState(ctx, t.q, instance)
}

func (t *txStore) StatesByInstance(ctx context.Context, instance ledger.InstanceID) ([]ledger.State, error) {
	return statesByInstance(ctx, t.q, instance)
}

func (t *txStore) AddStatePerson(ctx context.Context, state ledger.StateID, person ledger.PersonID) error {
	return addStatePerson(ctx, t.q, state, person)
}

func (t *txStore) RemoveStatePerson(ctx context.Context, state ledger.StateID, person ledger.PersonID) error {
	return removeStatePerson(ctx, t.q, state, person)
}

func (t *txStore) AddStateDebt(ctx context.Context, state ledger.StateID, debt ledger.DebtID) error {
	return addStateDebt(ctx, t.q, state, debt)
}

func (t *txStore) RemoveStateDebt(ctx context.Context, state ledger.StateID, debt ledger.DebtID) error {
	return removeStateDebt(ctx, t.q, state, debt)
}

func (t *txStore) StatePeople(ctx context.Context, state ledger.StateID) ([]ledger.PersonID, error) {
	return statePeople(ctx, t.q, state)
}

func (t *txStore) StateDebts(ctx context.Context, state ledger.StateID) ([]ledger.DebtID, error) {
	return stateDebts(ctx, t.q, state)
}

func (t *txStore) PersonReferencedElsewhere(ctx context.Context, person ledger.PersonID, excluding ledger.StateID) (bool, error) {
	return personReferencedElsewhere(ctx, t.q, person, excluding)
}

func (t *txStore) DebtReferencedElsewhere(ctx context.Context, debt ledger.DebtID, excluding ledger.StateID) (bool, error) {
	return debtReferencedElsewhere(ctx, t.q, debt, excluding)
}

func (t *txStore) LoadSnapshot(ctx context.Context, state ledger.StateID) (*ledger.Snapshot, error) {
	return loadSnapshot(ctx, t.q, state)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullID(id *ledger.PersonID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
