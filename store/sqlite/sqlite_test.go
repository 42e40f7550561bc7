package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-engine/ledger"
	"github.com/warp/debt-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedInstance(t *testing.T, s *sqlite.Store) ledger.InstanceID {
	t.Helper()
	inst, err := s.CreateInstance(context.Background(), "flat 12")
	require.NoError(t, err)
	return inst.ID
}

// =============================================================================
// ROW ROUND-TRIPS
// =============================================================================

func TestStore_PersonRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)
	require.NotZero(t, ana.ID)

	bo, err := s.CreatePerson(ctx, ledger.Person{Name: "Bo", LinkedAccount: &ana.ID})
	require.NoError(t, err)

	got, err := s.GetPerson(ctx, bo.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bo", got.Name)
	require.NotNil(t, got.LinkedAccount)
	assert.Equal(t, ana.ID, *got.LinkedAccount)
	assert.False(t, got.Retired)

	got.Retired = true
	got.LinkedAccount = nil
	require.NoError(t, s.UpdatePerson(ctx, got))

	got, err = s.GetPerson(ctx, bo.ID)
	require.NoError(t, err)
	assert.True(t, got.Retired)
	assert.Nil(t, got.LinkedAccount)

	_, err = s.GetPerson(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrPersonNotFound)
}

func TestStore_DebtDatePrecision(t *testing.T) {
	// GIVEN: A debt with a sub-second timestamp
	// WHEN: Reading it back
	// THEN: The stored date is exact, not truncated

	s := newTestStore(t)
	ctx := context.Background()

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana"})
	require.NoError(t, err)

	when := time.Date(2026, time.March, 1, 12, 30, 45, 123456789, time.UTC)
	d, err := s.CreateDebt(ctx, ledger.Debt{Description: "rent", Date: when, Payee: ana.ID})
	require.NoError(t, err)

	got, err := s.GetDebt(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(when))
}

func TestStore_DeleteDebt_CascadesSubDebts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana"})
	require.NoError(t, err)
	d, err := s.CreateDebt(ctx, ledger.Debt{Description: "rent", Date: time.Now().UTC(), Payee: ana.ID})
	require.NoError(t, err)
	_, err = s.CreateSubDebt(ctx, ledger.SubDebt{Debt: d.ID, Amount: 500, Debtor: ana.ID})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDebt(ctx, d.ID))

	subs, err := s.SubDebtsByDebt(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

// =============================================================================
// STATES
// =============================================================================

func TestStore_LatestState_OrderAndEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	_, err := s.LatestState(ctx, inst)
	assert.ErrorIs(t, err, ledger.ErrEmptyLedger)

	base := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	first, err := s.CreateState(ctx, ledger.State{Instance: inst, Date: base, Reason: "first"})
	require.NoError(t, err)
	second, err := s.CreateState(ctx, ledger.State{
		Instance: inst,
		Date:     base.Add(500 * time.Millisecond), // sub-second gap must still order correctly
		Reason:   "second",
		Parents:  []ledger.StateID{first.ID},
	})
	require.NoError(t, err)

	latest, err := s.LatestState(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, []ledger.StateID{first.ID}, latest.Parents)

	states, err := s.StatesByInstance(ctx, inst)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, first.ID, states[0].ID)
	assert.Equal(t, second.ID, states[1].ID)
}

func TestStore_DeleteState_CascadesMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana"})
	require.NoError(t, err)
	st, err := s.CreateState(ctx, ledger.State{Instance: inst, Date: time.Now().UTC(), Reason: "setup"})
	require.NoError(t, err)
	require.NoError(t, s.AddStatePerson(ctx, st.ID, ana.ID))

	require.NoError(t, s.DeleteState(ctx, st.ID))

	_, err = s.StatePeople(ctx, st.ID)
	assert.ErrorIs(t, err, ledger.ErrStateNotFound)

	// The person row itself is untouched; only membership cascades.
	_, err = s.GetPerson(ctx, ana.ID)
	assert.NoError(t, err)
}

// =============================================================================
// REFERENCE COUNTING
// =============================================================================

func TestStore_ReferencedElsewhere(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana"})
	require.NoError(t, err)
	now := time.Now().UTC()
	a, err := s.CreateState(ctx, ledger.State{Instance: inst, Date: now, Reason: "a"})
	require.NoError(t, err)
	b, err := s.CreateState(ctx, ledger.State{Instance: inst, Date: now.Add(time.Second), Reason: "b"})
	require.NoError(t, err)

	require.NoError(t, s.AddStatePerson(ctx, a.ID, ana.ID))
	require.NoError(t, s.AddStatePerson(ctx, b.ID, ana.ID))

	ref, err := s.PersonReferencedElsewhere(ctx, ana.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ref, "still a member of state a")

	require.NoError(t, s.RemoveStatePerson(ctx, a.ID, ana.ID))

	ref, err = s.PersonReferencedElsewhere(ctx, ana.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ref, "b is the only remaining reference")
}

// =============================================================================
// SNAPSHOT READS
// =============================================================================

func TestStore_LoadSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inst := seedInstance(t, s)

	ana, err := s.CreatePerson(ctx, ledger.Person{Name: "Ana"})
	require.NoError(t, err)
	bo, err := s.CreatePerson(ctx, ledger.Person{Name: "Bo", LinkedAccount: &ana.ID})
	require.NoError(t, err)

	d, err := s.CreateDebt(ctx, ledger.Debt{Description: "rent", Date: time.Now().UTC(), Payee: ana.ID})
	require.NoError(t, err)
	_, err = s.CreateSubDebt(ctx, ledger.SubDebt{Debt: d.ID, Amount: 300, Debtor: ana.ID})
	require.NoError(t, err)
	_, err = s.CreateSubDebt(ctx, ledger.SubDebt{Debt: d.ID, Amount: 300, Debtor: bo.ID})
	require.NoError(t, err)

	// A second debt outside the state must not leak into the snapshot.
	other, err := s.CreateDebt(ctx, ledger.Debt{Description: "other", Date: time.Now().UTC(), Payee: ana.ID})
	require.NoError(t, err)

	st, err := s.CreateState(ctx, ledger.State{Instance: inst, Date: time.Now().UTC(), Reason: "setup"})
	require.NoError(t, err)
	require.NoError(t, s.AddStatePerson(ctx, st.ID, ana.ID))
	require.NoError(t, s.AddStatePerson(ctx, st.ID, bo.ID))
	require.NoError(t, s.AddStateDebt(ctx, st.ID, d.ID))

	snap, err := s.LoadSnapshot(ctx, st.ID)
	require.NoError(t, err)

	assert.Equal(t, st.ID, snap.State.ID)
	assert.Len(t, snap.People, 2)
	require.NotNil(t, snap.People[bo.ID].LinkedAccount)
	assert.Equal(t, ana.ID, *snap.People[bo.ID].LinkedAccount)
	assert.Len(t, snap.Debts, 1)
	assert.NotContains(t, snap.Debts, other.ID)
	assert.Equal(t, ledger.Amount(600), snap.Total(d.ID))

	_, err = s.LoadSnapshot(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrStateNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wantErr := assert.AnError
	var createdID ledger.PersonID
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		p, err := tx.CreatePerson(ctx, ledger.Person{Name: "ghost"})
		if err != nil {
			return err
		}
		createdID = p.ID
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, err = s.GetPerson(ctx, createdID)
	assert.ErrorIs(t, err, ledger.ErrPersonNotFound)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var createdID ledger.PersonID
	err := s.WithTx(ctx, func(tx ledger.Store) error {
		p, err := tx.CreatePerson(ctx, ledger.Person{Name: "Ana"})
		if err != nil {
			return err
		}
		createdID = p.ID
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetPerson(ctx, createdID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
}

// The whole engine stack should run unchanged on the SQLite store.
func TestGraph_OverSQLite_EndToEnd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g := ledger.NewGraph(s)

	inst, err := s.CreateInstance(ctx, "trip")
	require.NoError(t, err)

	var ana, bo ledger.Person
	_, err = g.MutateInitial(ctx, inst.ID, "setup", func(e *ledger.StateEditor) error {
		if ana, err = e.AddPerson(ctx, "Ana", "", nil); err != nil {
			return err
		}
		bo, err = e.AddPerson(ctx, "Bo", "", &ana.ID)
		return err
	})
	require.NoError(t, err)

	latest, err := g.LatestState(ctx, inst.ID)
	require.NoError(t, err)
	leaf, err := g.CloneAndMutate(ctx, latest, "hotel", func(e *ledger.StateEditor) error {
		_, err := e.AddDebt(ctx, ledger.DebtInput{
			Description: "hotel",
			Payee:       bo.ID,
			Shares:      []ledger.Share{{Debtor: ana.ID, Amount: 1000}},
		})
		return err
	})
	require.NoError(t, err)

	snap, err := g.Snapshot(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Debts, 1)

	require.NoError(t, g.DeleteLeaf(ctx, leaf))
	latest, err = g.LatestState(ctx, inst.ID)
	require.NoError(t, err)
	snap, err = g.Snapshot(ctx, latest.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Debts)
	assert.Len(t, snap.People, 2)
}
