package balances

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/debt-engine/ledger"
)

func TestResolveTop_Chain(t *testing.T) {
	// 3 -> 2 -> 1
	lm := links{3: 2, 2: 1}
	cache := make(map[ledger.PersonID]ledger.PersonID)

	assert.Equal(t, ledger.PersonID(1), resolveTop(3, lm, cache))
	assert.Equal(t, ledger.PersonID(1), resolveTop(2, lm, cache))
	assert.Equal(t, ledger.PersonID(1), resolveTop(1, lm, cache))
}

func TestResolveTop_Cycle_ReturnsLastDistinct(t *testing.T) {
	// 1 -> 2 -> 1: walking from 1 visits 1, 2, then stops when 1 reappears.
	lm := links{1: 2, 2: 1}
	cache := make(map[ledger.PersonID]ledger.PersonID)

	assert.Equal(t, ledger.PersonID(1), resolveTop(1, lm, cache))
	assert.Equal(t, ledger.PersonID(2), resolveTop(2, lm, cache))
}

func TestResolveTop_SelfLink(t *testing.T) {
	lm := links{1: 1}
	cache := make(map[ledger.PersonID]ledger.PersonID)

	assert.Equal(t, ledger.PersonID(1), resolveTop(1, lm, cache))
}

func TestResolveTop_Memoized(t *testing.T) {
	lm := links{3: 2, 2: 1}
	cache := make(map[ledger.PersonID]ledger.PersonID)

	resolveTop(3, lm, cache)
	assert.Equal(t, ledger.PersonID(1), cache[3])

	// A poisoned cache entry is trusted; proves the cache is actually read.
	cache[3] = 9
	assert.Equal(t, ledger.PersonID(9), resolveTop(3, lm, cache))
}

func TestBuildLinks_SkipsAbsentTargets(t *testing.T) {
	absent := ledger.PersonID(9)
	one := ledger.PersonID(1)
	snap := &ledger.Snapshot{
		People: map[ledger.PersonID]ledger.Person{
			1: {ID: 1},
			2: {ID: 2, LinkedAccount: &absent},
			3: {ID: 3, LinkedAccount: &one},
		},
	}

	lm := buildLinks(snap)
	assert.Equal(t, links{3: 1}, lm)
}
