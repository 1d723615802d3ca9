package pager

import "strings"

// fileID namespaces a bare filename as a FILE: page id, unless it already
// carries a namespace prefix.
func fileID(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return "FILE:" + name
}

// Comparator is a temporary dual-slot overlay over a Pager for diff/merge
// tasks. It borrows the Pager by reference rather than owning pages itself
// (spec §9 Design Note): the overlay is explicit, short-lived, and the
// Pager's normal L1 budget invariant is restored by PurgePair.
type Comparator struct {
	pager *Pager
}

// NewComparator wraps an existing Pager.
func NewComparator(p *Pager) *Comparator {
	return &Comparator{pager: p}
}

// LoadPair evicts every non-SYS: page from L1, then force-inserts both
// pages at priority 10, even if their combined cost exceeds capacity — the
// overlay may exceed the budget but never the physical cost that would
// still fit (cost(A)+cost(B) <= capacity). Returns false only when the pair
// itself is too large to ever coexist.
func (c *Comparator) LoadPair(idA, contentA, idB, contentB string) bool {
	p := c.pager
	p.mu.Lock()
	defer p.mu.Unlock()

	tokensA := p.counter.CountTokens(contentA)
	tokensB := p.counter.CountTokens(contentB)
	if tokensA+tokensB > p.capacity {
		return false
	}

	p.evictAllExceptSysLocked()

	turn := p.currentTurn
	p.forceInsert(&Page{
		ID: fileID(idA), Content: contentA, TokenCost: tokensA,
		LastAccessedTurn: turn, Priority: 10, TTL: defaultTTL,
	})
	p.forceInsert(&Page{
		ID: fileID(idB), Content: contentB, TokenCost: tokensB,
		LastAccessedTurn: turn, Priority: 10, TTL: defaultTTL,
	})
	return true
}

// PurgePair evicts every FILE: page from L1 unconditionally, restoring the
// Pager's normal capacity invariant.
func (c *Comparator) PurgePair() {
	p := c.pager
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictAllFilesLocked()
}
