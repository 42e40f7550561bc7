// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/debt-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	nextID int64

	instances map[ledger.InstanceID]ledger.Instance
	people    map[ledger.PersonID]ledger.Person
	debts     map[ledger.DebtID]ledger.Debt
	subdebts  map[ledger.SubDebtID]ledger.SubDebt
	states    map[ledger.StateID]ledger.State

	statePeople map[ledger.StateID]map[ledger.PersonID]bool
	stateDebts  map[ledger.StateID]map[ledger.DebtID]bool
}

func NewMemory() *Memory {
	return &Memory{
		instances:   make(map[ledger.InstanceID]ledger.Instance),
		people:      make(map[ledger.PersonID]ledger.Person),
		debts:       make(map[ledger.DebtID]ledger.Debt),
		subdebts:    make(map[ledger.SubDebtID]ledger.SubDebt),
		states:      make(map[ledger.StateID]ledger.State),
		statePeople: make(map[ledger.StateID]map[ledger.PersonID]bool),
		stateDebts:  make(map[ledger.StateID]map[ledger.DebtID]bool),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// =============================================================================
// INSTANCES
// =============================================================================

func (m *Memory) CreateInstance(_ context.Context, name string) (ledger.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst := ledger.Instance{ID: ledger.InstanceID(m.id()), Name: name}
	m.instances[inst.ID] = inst
	return inst, nil
}

func (m *Memory) GetInstance(_ context.Context, id ledger.InstanceID) (ledger.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[id]
	if !ok {
		return ledger.Instance{}, ledger.ErrInstanceNotFound
	}
	return inst, nil
}

func (m *Memory) ListInstances(_ context.Context) ([]ledger.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RenameInstance(_ context.Context, id ledger.InstanceID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return ledger.ErrInstanceNotFound
	}
	inst.Name = name
	m.instances[id] = inst
	return nil
}

// =============================================================================
// PEOPLE
// =============================================================================

func (m *Memory) CreatePerson(_ context.Context, p ledger.Person) (ledger.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = ledger.PersonID(m.id())
	m.people[p.ID] = p
	return p, nil
}

func (m *Memory) GetPerson(_ context.Context, id ledger.PersonID) (ledger.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return ledger.Person{}, ledger.ErrPersonNotFound
	}
	return p, nil
}

func (m *Memory) UpdatePerson(_ context.Context, p ledger.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[p.ID]; !ok {
		return ledger.ErrPersonNotFound
	}
	m.people[p.ID] = p
	return nil
}

func (m *Memory) DeletePerson(_ context.Context, id ledger.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[id]; !ok {
		return ledger.ErrPersonNotFound
	}
	delete(m.people, id)
	// Links to the deleted person are cleared, matching the SQLite store's
	// ON DELETE SET NULL.
	for pid, p := range m.people {
		if p.LinkedAccount != nil && *p.LinkedAccount == id {
			p.LinkedAccount = nil
			m.people[pid] = p
		}
	}
	return nil
}

// =============================================================================
// DEBTS
// =============================================================================

func (m *Memory) CreateDebt(_ context.Context, d ledger.Debt) (ledger.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = ledger.DebtID(m.id())
	m.debts[d.ID] = d
	return d, nil
}

func (m *Memory) GetDebt(_ context.Context, id ledger.DebtID) (ledger.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.debts[id]
	if !ok {
		return ledger.Debt{}, ledger.ErrDebtNotFound
	}
	return d, nil
}

// DeleteDebt cascades to the debt's subdebts.
func (m *Memory) DeleteDebt(_ context.Context, id ledger.DebtID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debts[id]; !ok {
		return ledger.ErrDebtNotFound
	}
	delete(m.debts, id)
	for sid, sd := range m.subdebts {
		if sd.Debt == id {
			delete(m.subdebts, sid)
		}
	}
	return nil
}

func (m *Memory) CreateSubDebt(_ context.Context, sd ledger.SubDebt) (ledger.SubDebt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debts[sd.Debt]; !ok {
		return ledger.SubDebt{}, ledger.ErrDebtNotFound
	}
	sd.ID = ledger.SubDebtID(m.id())
	m.subdebts[sd.ID] = sd
	return sd, nil
}

func (m *Memory) SubDebtsByDebt(_ context.Context, id ledger.DebtID) ([]ledger.SubDebt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subDebtsLocked(id), nil
}

func (m *Memory) subDebtsLocked(id ledger.DebtID) []ledger.SubDebt {
	var out []ledger.SubDebt
	for _, sd := range m.subdebts {
		if sd.Debt == id {
			out = append(out, sd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// STATES
// =============================================================================

func (m *Memory) CreateState(_ context.Context, s ledger.State) (ledger.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[s.Instance]; !ok {
		return ledger.State{}, ledger.ErrInstanceNotFound
	}
	s.ID = ledger.StateID(m.id())
	s.Parents = append([]ledger.StateID(nil), s.Parents...)
	m.states[s.ID] = s
	m.statePeople[s.ID] = make(map[ledger.PersonID]bool)
	m.stateDebts[s.ID] = make(map[ledger.DebtID]bool)
	return s, nil
}

func (m *Memory) GetState(_ context.Context, id ledger.StateID) (ledger.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	if !ok {
		return ledger.State{}, ledger.ErrStateNotFound
	}
	return s, nil
}

func (m *Memory) DeleteState(_ context.Context, id ledger.StateID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return ledger.ErrStateNotFound
	}
	delete(m.states, id)
	delete(m.statePeople, id)
	delete(m.stateDebts, id)
	return nil
}

// LatestState picks the maximum date; ties break by highest id so the order
// is deterministic even though ties are not expected under the single-writer
// lock.
func (m *Memory) LatestState(_ context.Context, instance ledger.InstanceID) (ledger.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest ledger.State
	found := false
	for _, s := range m.states {
		if s.Instance != instance {
			continue
		}
		if !found || s.Date.After(latest.Date) || (s.Date.Equal(latest.Date) && s.ID > latest.ID) {
			latest = s
			found = true
		}
	}
	if !found {
		return ledger.State{}, ledger.ErrEmptyLedger
	}
	return latest, nil
}

func (m *Memory) StatesByInstance(_ context.Context, instance ledger.InstanceID) ([]ledger.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.State
	for _, s := range m.states {
		if s.Instance == instance {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

func (m *Memory) AddStatePerson(_ context.Context, state ledger.StateID, person ledger.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.statePeople[state]
	if !ok {
		return ledger.ErrStateNotFound
	}
	if _, ok := m.people[person]; !ok {
		return ledger.ErrPersonNotFound
	}
	members[person] = true
	return nil
}

func (m *Memory) RemoveStatePerson(_ context.Context, state ledger.StateID, person ledger.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.statePeople[state]
	if !ok {
		return ledger.ErrStateNotFound
	}
	if !members[person] {
		return ledger.ErrPersonNotFound
	}
	delete(members, person)
	return nil
}

func (m *Memory) AddStateDebt(_ context.Context, state ledger.StateID, debt ledger.DebtID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.stateDebts[state]
	if !ok {
		return ledger.ErrStateNotFound
	}
	if _, ok := m.debts[debt]; !ok {
		return ledger.ErrDebtNotFound
	}
	members[debt] = true
	return nil
}

func (m *Memory) RemoveStateDebt(_ context.Context, state ledger.StateID, debt ledger.DebtID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.stateDebts[state]
	if !ok {
		return ledger.ErrStateNotFound
	}
	if !members[debt] {
		return ledger.ErrDebtNotFound
	}
	delete(members, debt)
	return nil
}

func (m *Memory) StatePeople(_ context.Context, state ledger.StateID) ([]ledger.PersonID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.statePeople[state]
	if !ok {
		return nil, ledger.ErrStateNotFound
	}
	out := make([]ledger.PersonID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) StateDebts(_ context.Context, state ledger.StateID) ([]ledger.DebtID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.stateDebts[state]
	if !ok {
		return nil, ledger.ErrStateNotFound
	}
	out := make([]ledger.DebtID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// REFERENCE COUNTING
// =============================================================================

func (m *Memory) PersonReferencedElsewhere(_ context.Context, person ledger.PersonID, excluding ledger.StateID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sid, members := range m.statePeople {
		if sid != excluding && members[person] {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DebtReferencedElsewhere(_ context.Context, debt ledger.DebtID, excluding ledger.StateID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sid, members := range m.stateDebts {
		if sid != excluding && members[debt] {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// SNAPSHOT READS
// =============================================================================

func (m *Memory) LoadSnapshot(_ context.Context, state ledger.StateID) (*ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[state]
	if !ok {
		return nil, ledger.ErrStateNotFound
	}

	snap := &ledger.Snapshot{
		State:    s,
		People:   make(map[ledger.PersonID]ledger.Person),
		Debts:    make(map[ledger.DebtID]ledger.Debt),
		SubDebts: make(map[ledger.DebtID][]ledger.SubDebt),
	}
	for pid := range m.statePeople[state] {
		p, ok := m.people[pid]
		if !ok {
			return nil, ledger.ErrPersonNotFound
		}
		snap.People[pid] = p
	}
	for did := range m.stateDebts[state] {
		d, ok := m.debts[did]
		if !ok {
			return nil, ledger.ErrDebtNotFound
		}
		snap.Debts[did] = d
		snap.SubDebts[did] = m.subDebtsLocked(did)
	}
	return snap, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// WithTx executes fn against the store, simulated with a deep snapshot and
// rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	before := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

type memorySnapshot struct {
	nextID      int64
	instances   map[ledger.InstanceID]ledger.Instance
	people      map[ledger.PersonID]ledger.Person
	debts       map[ledger.DebtID]ledger.Debt
	subdebts    map[ledger.SubDebtID]ledger.SubDebt
	states      map[ledger.StateID]ledger.State
	statePeople map[ledger.StateID]map[ledger.PersonID]bool
	stateDebts  map[ledger.StateID]map[ledger.DebtID]bool
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		nextID:      m.nextID,
		instances:   make(map[ledger.InstanceID]ledger.Instance, len(m.instances)),
		people:      make(map[ledger.PersonID]ledger.Person, len(m.people)),
		debts:       make(map[ledger.DebtID]ledger.Debt, len(m.debts)),
		subdebts:    make(map[ledger.SubDebtID]ledger.SubDebt, len(m.subdebts)),
		states:      make(map[ledger.StateID]ledger.State, len(m.states)),
		statePeople: make(map[ledger.StateID]map[ledger.PersonID]bool, len(m.statePeople)),
		stateDebts:  make(map[ledger.StateID]map[ledger.DebtID]bool, len(m.stateDebts)),
	}
	for k, v := range m.instances {
		snap.instances[k] = v
	}
	for k, v := range m.people {
		snap.people[k] = v
	}
	for k, v := range m.debts {
		snap.debts[k] = v
	}
	for k, v := range m.subdebts {
		snap.subdebts[k] = v
	}
	for k, v := range m.states {
		snap.states[k] = v
	}
	for k, v := range m.statePeople {
		inner := make(map[ledger.PersonID]bool, len(v))
		for id := range v {
			inner[id] = true
		}
		snap.statePeople[k] = inner
	}
	for k, v := range m.stateDebts {
		inner := make(map[ledger.DebtID]bool, len(v))
		for id := range v {
			inner[id] = true
		}
		snap.stateDebts[k] = inner
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID = snap.nextID
	m.instances = snap.instances
	m.people = snap.people
	m.debts = snap.debts
	m.subdebts = snap.subdebts
	m.states = snap.states
	m.statePeople = snap.statePeople
	m.stateDebts = snap.stateDebts
}
