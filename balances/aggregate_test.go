package balances_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-engine/balances"
	"github.com/warp/debt-engine/ledger"
)

// =============================================================================
// TEST SETUP - snapshots are plain values, no store needed
// =============================================================================

type debtSpec struct {
	id     ledger.DebtID
	date   time.Time
	payee  ledger.PersonID
	shares map[ledger.PersonID]ledger.Amount
}

func buildSnapshot(people []ledger.Person, debts []debtSpec) *ledger.Snapshot {
	snap := &ledger.Snapshot{
		People:   make(map[ledger.PersonID]ledger.Person),
		Debts:    make(map[ledger.DebtID]ledger.Debt),
		SubDebts: make(map[ledger.DebtID][]ledger.SubDebt),
	}
	for _, p := range people {
		snap.People[p.ID] = p
	}
	var nextSub ledger.SubDebtID
	for _, d := range debts {
		snap.Debts[d.id] = ledger.Debt{ID: d.id, Description: "debt", Date: d.date, Payee: d.payee}
		for debtor, amount := range d.shares {
			nextSub++
			snap.SubDebts[d.id] = append(snap.SubDebts[d.id], ledger.SubDebt{
				ID: nextSub, Debt: d.id, Amount: amount, Debtor: debtor,
			})
		}
	}
	return snap
}

func linked(to ledger.PersonID) *ledger.PersonID { return &to }

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func rowFor(t *testing.T, rows []balances.Row, id ledger.PersonID) balances.Row {
	t.Helper()
	for _, r := range rows {
		if r.Person == id {
			return r
		}
	}
	t.Fatalf("no row for person %d", id)
	return balances.Row{}
}

// =============================================================================
// MODE SEMANTICS
// =============================================================================

// One couple: Ana (1) is the account, Bo (2) is linked to her. Bo pays a
// 10.00 debt that Ana owes in full.
func coupleSnapshot() *ledger.Snapshot {
	return buildSnapshot(
		[]ledger.Person{
			{ID: 1, Name: "Ana"},
			{ID: 2, Name: "Bo", LinkedAccount: linked(1)},
		},
		[]debtSpec{
			{id: 1, date: day(1), payee: 2, shares: map[ledger.PersonID]ledger.Amount{1: 1000}},
		},
	)
}

func TestAggregate_Summary_FoldsIntoLinkedAccount(t *testing.T) {
	// GIVEN: Bo linked to Ana; Bo paid 10.00 that Ana owes
	// WHEN: Aggregating in summary mode
	// THEN: One row for Ana where debt and payment cancel out

	rows, err := balances.Aggregate(coupleSnapshot(), balances.ModeSummary, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	ana := rows[0]
	assert.Equal(t, ledger.PersonID(1), ana.Person)
	assert.Equal(t, ledger.Amount(1000), ana.Owed)
	assert.Equal(t, ledger.Amount(1000), ana.Paid)
	assert.Equal(t, ledger.Amount(0), ana.Balance)
}

func TestAggregate_Individual_NoFolding(t *testing.T) {
	// GIVEN: The same couple
	// WHEN: Aggregating in individual mode
	// THEN: Ana owes, Bo is owed; links play no role

	rows, err := balances.Aggregate(coupleSnapshot(), balances.ModeIndividual, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ana := rowFor(t, rows, 1)
	bo := rowFor(t, rows, 2)
	assert.Equal(t, ledger.Amount(-1000), ana.Balance)
	assert.Equal(t, ledger.Amount(1000), bo.Balance)

	// Ordered by balance ascending: Ana first.
	assert.Equal(t, ledger.PersonID(1), rows[0].Person)
}

func TestAggregate_Detailed_PropagatesUpAndIndents(t *testing.T) {
	// GIVEN: The same couple
	// WHEN: Aggregating in detailed mode
	// THEN: Both rows appear; Bo's payment also shows on Ana's row; Bo is
	//       indented under Ana

	rows, err := balances.Aggregate(coupleSnapshot(), balances.ModeDetailed, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, ledger.PersonID(1), rows[0].Person, "account before dependent")
	assert.Equal(t, 0, rows[0].Depth)
	assert.Equal(t, ledger.Amount(1000), rows[0].Owed)
	assert.Equal(t, ledger.Amount(1000), rows[0].Paid)

	assert.Equal(t, ledger.PersonID(2), rows[1].Person)
	assert.Equal(t, 1, rows[1].Depth)
	assert.Equal(t, ledger.Amount(1000), rows[1].Paid)
}

// =============================================================================
// CONSERVATION AND ROUNDING
// =============================================================================

func TestAggregate_Conservation(t *testing.T) {
	// GIVEN: Several debts among unlinked people
	// WHEN: Aggregating in summary and individual modes
	// THEN: Total owed equals total paid equals the cost of all debts

	snap := buildSnapshot(
		[]ledger.Person{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Bo"}, {ID: 3, Name: "Cleo"}},
		[]debtSpec{
			{id: 1, date: day(1), payee: 1, shares: map[ledger.PersonID]ledger.Amount{2: 300, 3: 300}},
			{id: 2, date: day(2), payee: 2, shares: map[ledger.PersonID]ledger.Amount{1: 450, 2: 450}},
			{id: 3, date: day(3), payee: 3, shares: map[ledger.PersonID]ledger.Amount{1: 125}},
		},
	)
	const totalCost = ledger.Amount(300 + 300 + 450 + 450 + 125)

	for _, mode := range []balances.Mode{balances.ModeSummary, balances.ModeIndividual} {
		rows, err := balances.Aggregate(snap, mode, nil)
		require.NoError(t, err)

		var owed, paid, balance ledger.Amount
		for _, r := range rows {
			owed += r.Owed
			paid += r.Paid
			balance += r.Balance
		}
		assert.Equal(t, totalCost, owed, mode)
		assert.Equal(t, totalCost, paid, mode)
		assert.Equal(t, ledger.Amount(0), balance, mode)
	}
}

func TestAggregate_FloorSplitSharesSumBelowTotal(t *testing.T) {
	// GIVEN: 1.00 floor-split three ways at recording time (0.33 each)
	// WHEN: Aggregating
	// THEN: The payer's asset is the sum of shares (0.99), not the nominal
	//       total; the lost cent never reappears

	total := ledger.Amount(100)
	share := total.Split(3)
	snap := buildSnapshot(
		[]ledger.Person{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Bo"}, {ID: 3, Name: "Cleo"}},
		[]debtSpec{
			{id: 1, date: day(1), payee: 1, shares: map[ledger.PersonID]ledger.Amount{
				1: share, 2: share, 3: share,
			}},
		},
	)

	rows, err := balances.Aggregate(snap, balances.ModeIndividual, nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.Amount(99), rowFor(t, rows, 1).Paid)
}

// =============================================================================
// CUTOFF
// =============================================================================

func TestAggregate_Cutoff_StrictlyBefore(t *testing.T) {
	// GIVEN: Debts on the 1st and the 5th
	// WHEN: Aggregating with a cutoff of the 5th
	// THEN: Only the debt on the 1st counts; the cutoff day itself is excluded

	snap := buildSnapshot(
		[]ledger.Person{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Bo"}},
		[]debtSpec{
			{id: 1, date: day(1), payee: 1, shares: map[ledger.PersonID]ledger.Amount{2: 200}},
			{id: 2, date: day(5), payee: 1, shares: map[ledger.PersonID]ledger.Amount{2: 700}},
		},
	)

	cutoff := day(5)
	rows, err := balances.Aggregate(snap, balances.ModeIndividual, &cutoff)
	require.NoError(t, err)
	assert.Equal(t, ledger.Amount(-200), rowFor(t, rows, 2).Balance)
	assert.Equal(t, ledger.Amount(200), rowFor(t, rows, 1).Paid)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestAggregate_EmptySnapshot(t *testing.T) {
	rows, err := balances.Aggregate(buildSnapshot(nil, nil), balances.ModeSummary, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAggregate_DebtorNotInState_Error(t *testing.T) {
	// GIVEN: A debt whose debtor is not a member of the snapshot
	// WHEN: Aggregating
	// THEN: A wrapped not-found error, never a silent zero row

	snap := buildSnapshot(
		[]ledger.Person{{ID: 1, Name: "Ana"}},
		[]debtSpec{
			{id: 1, date: day(1), payee: 1, shares: map[ledger.PersonID]ledger.Amount{9: 100}},
		},
	)

	_, err := balances.Aggregate(snap, balances.ModeSummary, nil)
	assert.ErrorIs(t, err, ledger.ErrPersonNotFound)
}

func TestAggregate_LinkToAbsentPerson_TreatedAsRoot(t *testing.T) {
	// GIVEN: Bo links to a person missing from the snapshot
	// WHEN: Aggregating in summary mode
	// THEN: Bo acts as his own top-level account

	snap := buildSnapshot(
		[]ledger.Person{{ID: 2, Name: "Bo", LinkedAccount: linked(9)}},
		[]debtSpec{
			{id: 1, date: day(1), payee: 2, shares: map[ledger.PersonID]ledger.Amount{2: 100}},
		},
	)

	rows, err := balances.Aggregate(snap, balances.ModeSummary, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.PersonID(2), rows[0].Person)
}

func TestAggregate_LinkCycle_DetailedStillTerminates(t *testing.T) {
	// GIVEN: Degraded data with a link cycle Ana <-> Bo
	// WHEN: Aggregating in detailed mode
	// THEN: No hang, no error; both rows present

	snap := buildSnapshot(
		[]ledger.Person{
			{ID: 1, Name: "Ana", LinkedAccount: linked(2)},
			{ID: 2, Name: "Bo", LinkedAccount: linked(1)},
		},
		nil,
	)

	rows, err := balances.Aggregate(snap, balances.ModeDetailed, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"summary", "detailed", "individual"} {
		mode, err := balances.ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, balances.Mode(s), mode)
	}
	_, err := balances.ParseMode("everything")
	assert.Error(t, err)
}
