/*
resolver.go - Linked-account hierarchy resolution

PURPOSE:
  Some people designate another person as their linked account (a couple
  sharing one balance). Aggregation rolls a dependent's debts up to the top
  of the chain. This file resolves "who is my top-level account" for one
  aggregation pass, with memoization.

CYCLE TOLERANCE:
  The editor rejects cycle-forming links at write time, but pre-existing bad
  data must still be readable. The walk tracks visited ids; if a previously
  visited id is reached again, it stops there and returns the last distinct
  id reached instead of looping forever.

SEE ALSO:
  - aggregate.go: builds the per-pass context and uses resolveTop
  - ledger/editor.go: write-time cycle rejection
*/
package balances

import "github.com/warp/debt-engine/ledger"

// links is the membership map of one snapshot: person id -> linked account
// id. An entry exists only when the link target is itself a member of the
// snapshot; a link to an absent person makes its owner a root.
type links map[ledger.PersonID]ledger.PersonID

// buildLinks derives the membership map from a snapshot once per pass.
func buildLinks(snap *ledger.Snapshot) links {
	m := make(links)
	for id, p := range snap.People {
		if p.LinkedAccount == nil {
			continue
		}
		if _, ok := snap.People[*p.LinkedAccount]; !ok {
			continue
		}
		m[id] = *p.LinkedAccount
	}
	return m
}

// resolveTop follows linked-account pointers from id until a person with no
// link (or an already-visited person) is reached. Every resolution is
// memoized in cache, so repeated calls are O(1) within one pass.
func resolveTop(id ledger.PersonID, lm links, cache map[ledger.PersonID]ledger.PersonID) ledger.PersonID {
	if top, ok := cache[id]; ok {
		return top
	}
	seen := make(map[ledger.PersonID]bool)
	k := id
	for !seen[k] {
		next, ok := lm[k]
		if !ok {
			break
		}
		seen[k] = true
		k = next
	}
	cache[id] = k
	return k
}
