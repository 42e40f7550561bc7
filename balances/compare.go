/*
compare.go - Tree comparator for the detailed view

PURPOSE:
  A total order over summary records consistent with the linked-account
  forest, used only in detailed mode. The guarantee: a subtree always
  renders as a contiguous block under its root, with the root first
  (indentation follows depth).

RULES (in order):
  1. Equal record          -> 0
  2. x ancestor of y       -> -1 (ancestors sort before descendants)
  3. y ancestor of x       -> +1
  4. Both have parents:    same parent -> compare by balance; otherwise find
     the lowest common ancestor by walking x's ancestor chain against y's,
     and recurse on the two children of that ancestor, one from each chain.
     No common ancestor -> recurse on the two top-most ancestors.
  5. One side has a parent -> recurse comparing that side's parent against
     the other side's record.
  6. Neither has a parent  -> compare by balance.

SEE ALSO:
  - aggregate.go: builds the forest this comparator walks
*/
package balances

// compare orders two arena records per the rules above. Returns -1, 0 or +1.
func (p *pass) compare(x, y int) int {
	if x == y {
		return 0
	}
	if p.hasDescendant(x, y) {
		return -1
	}
	if p.hasDescendant(y, x) {
		return 1
	}

	xp, yp := p.arena[x].parent, p.arena[y].parent
	switch {
	case xp >= 0 && yp >= 0:
		if xp == yp {
			return p.compareBalance(x, y)
		}
		// Walk x's ancestor chain; the first of y's ancestors found on it
		// is the lowest common ancestor.
		onXChain := make(map[int]bool)
		for a := xp; a >= 0; a = p.arena[a].parent {
			onXChain[a] = true
		}
		for a := yp; a >= 0; a = p.arena[a].parent {
			if onXChain[a] {
				return p.compare(p.childToward(a, x), p.childToward(a, y))
			}
		}
		// Different trees entirely: compare the two roots.
		return p.compare(p.topAncestor(x), p.topAncestor(y))
	case xp >= 0:
		return p.compare(xp, y)
	case yp >= 0:
		return p.compare(x, yp)
	default:
		return p.compareBalance(x, y)
	}
}

// compareBalance orders by balance ascending, breaking exact ties by person
// id so distinct records never compare equal.
func (p *pass) compareBalance(x, y int) int {
	bx, by := p.balance(x), p.balance(y)
	switch {
	case bx < by:
		return -1
	case bx > by:
		return 1
	case p.arena[x].person < p.arena[y].person:
		return -1
	default:
		return 1
	}
}

// hasDescendant reports whether y is in x's subtree (transitively).
func (p *pass) hasDescendant(x, y int) bool {
	for _, c := range p.arena[x].children {
		if c == y || p.hasDescendant(c, y) {
			return true
		}
	}
	return false
}

// childToward returns the child of ancestor that lies on the chain from n up
// to ancestor. n must be a strict descendant of ancestor.
func (p *pass) childToward(ancestor, n int) int {
	k := n
	for p.arena[k].parent != ancestor {
		k = p.arena[k].parent
	}
	return k
}

// topAncestor returns the root of n's tree.
func (p *pass) topAncestor(n int) int {
	k := n
	for p.arena[k].parent >= 0 {
		k = p.arena[k].parent
	}
	return k
}
