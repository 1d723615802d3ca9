// Package pager implements the kernel's hierarchical memory manager: L1
// (active, token-bounded), L2 (unbounded staging), and L3 (archival, backed
// by the Sidecar's vector index). It is the Go port of the Python reference
// implementation's DynamicPager, generalized to the full pin/priority/ttl
// model described in the specification.
package pager

import (
	"sort"
	"strings"
	"sync"

	"github.com/B-A-M-N/amnesic/internal/klog"
	"github.com/B-A-M-N/amnesic/internal/tokenizer"
)

// defaultTTL is the number of un-accessed turns a non-pinned page survives
// in L1 before tick() demotes it to L2.
const defaultTTL = 10

// Page is a named unit of cached text. The Pager is its exclusive owner;
// callers outside this package only ever hold its id.
type Page struct {
	ID               string
	Content          string
	TokenCost        int
	LastAccessedTurn int
	Priority         int // 0..10, 10 highest
	Pinned           bool
	TTL              int
}

// Archiver is the narrow contract the Pager needs from the Sidecar to
// support L3 archive/recall. Implemented by *sidecar.Sidecar.
type Archiver interface {
	Ingest(key, value, typ string, metadata map[string]any) error
	QuerySemantic(query string, k int) ([]SemanticHit, error)
	QueryExact(key string) (string, bool)
	Count() int
}

// SemanticHit is one result of an L3 semantic recall.
type SemanticHit struct {
	Key     string
	Content string
	Score   float64
}

// Stats summarizes current tier occupancy.
type Stats struct {
	L1Used     int
	L1Capacity int
	L1Count    int
	L2Count    int
	L3Count    int
}

// Pager owns the three memory tiers for a single session. Not safe to share
// across sessions; each session constructs and owns its own Pager.
type Pager struct {
	mu sync.Mutex

	capacity    int
	l1          map[string]*Page
	l2          map[string]*Page
	currentTurn int

	counter  *tokenizer.Counter
	archiver Archiver
}

// New constructs a Pager with the given L1 token capacity. archiver may be
// nil, in which case ArchiveToL3/RecallFromL3 are no-ops.
func New(capacityTokens int, archiver Archiver) *Pager {
	return &Pager{
		capacity: capacityTokens,
		l1:       make(map[string]*Page),
		l2:       make(map[string]*Page),
		counter:  tokenizer.New(nil),
		archiver: archiver,
	}
}

// SetCapacity adjusts the L1 token budget (used by elastic-context resizing
// in the Session). It does not itself evict; callers should follow with
// Tick to enforce the new ceiling.
func (p *Pager) SetCapacity(tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capacity = tokens
}

// Capacity returns the current L1 token budget.
func (p *Pager) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Pin loads or overwrites a page that cannot be evicted.
func (p *Pager) Pin(id, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	page := &Page{
		ID:               id,
		Content:          content,
		TokenCost:        p.counter.CountTokens(content),
		LastAccessedTurn: p.currentTurn,
		Priority:         10,
		Pinned:           true,
		TTL:              defaultTTL,
	}
	delete(p.l2, id)
	p.promoteToL1(page)
}

// RequestAccess is the hit path: refresh access bookkeeping, promote from
// L2 if present, or create a new page from content. Returns false only when
// the page cannot be admitted to L1 even after evicting every evictable page.
func (p *Pager) RequestAccess(id string, content *string, priority int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if priority <= 0 {
		priority = 5
	}

	if page, ok := p.l1[id]; ok {
		page.LastAccessedTurn = p.currentTurn
		page.TTL = defaultTTL
		if priority > page.Priority {
			page.Priority = priority
		}
		if content != nil {
			page.Content = *content
			page.TokenCost = p.counter.CountTokens(*content)
		}
		return true
	}

	if page, ok := p.l2[id]; ok {
		delete(p.l2, id)
		page.LastAccessedTurn = p.currentTurn
		page.TTL = defaultTTL
		if priority > page.Priority {
			page.Priority = priority
		}
		if content != nil {
			page.Content = *content
			page.TokenCost = p.counter.CountTokens(*content)
		}
		return p.promoteToL1(page)
	}

	if content == nil {
		klog.Warn(klog.CategoryPager, "PageFault: %s not found in L1/L2 and no content provided", id)
		return false
	}

	page := &Page{
		ID:               id,
		Content:          *content,
		TokenCost:        p.counter.CountTokens(*content),
		LastAccessedTurn: p.currentTurn,
		Priority:         priority,
		TTL:              defaultTTL,
	}
	return p.promoteToL1(page)
}

// Prefetch places a page into L2 without promoting it to L1. No-op if the
// page is already in L1; overwrites content if already in L2.
func (p *Pager) Prefetch(id, content string, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if priority <= 0 {
		priority = 3
	}
	if _, ok := p.l1[id]; ok {
		return
	}

	if page, ok := p.l2[id]; ok {
		page.Content = content
		page.TokenCost = p.counter.CountTokens(content)
		if priority > page.Priority {
			page.Priority = priority
		}
		page.LastAccessedTurn = p.currentTurn
		return
	}

	p.l2[id] = &Page{
		ID:               id,
		Content:          content,
		TokenCost:        p.counter.CountTokens(content),
		LastAccessedTurn: p.currentTurn,
		Priority:         priority,
		TTL:              defaultTTL,
	}
}

// EvictToL2 explicitly demotes a page. Pinned pages are never moved; the
// call is logged and ignored.
func (p *Pager) EvictToL2(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictToL2Locked(id)
}

func (p *Pager) evictToL2Locked(id string) {
	page, ok := p.l1[id]
	if !ok {
		return
	}
	if page.Pinned {
		klog.Warn(klog.CategoryPager, "eviction blocked: %s is pinned", id)
		return
	}
	delete(p.l1, id)
	p.l2[id] = page
}

// ArchiveToL3 hands the page to the Sidecar's vector index and removes it
// from L1/L2. No-op if no archiver is configured.
func (p *Pager) ArchiveToL3(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if page, ok := p.l1[id]; ok {
		p.evictToL2Locked(id)
		_ = page
	}

	page, ok := p.l2[id]
	if !ok {
		return
	}
	if p.archiver == nil {
		klog.Warn(klog.CategoryPager, "L3 unavailable (no archiver); %s remains in L2", id)
		return
	}
	meta := map[string]any{"priority": page.Priority, "archived_at": p.currentTurn}
	if err := p.archiver.Ingest(id, page.Content, "text_content", meta); err != nil {
		klog.Error(klog.CategoryPager, "archive %s failed: %v", id, err)
		return
	}
	delete(p.l2, id)
}

// RecallFromL3 performs semantic search and rehydrates matches into L2 (not
// L1, to avoid thrash) at priority 3.
func (p *Pager) RecallFromL3(query string, k int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.archiver == nil {
		return nil
	}
	hits, err := p.archiver.QuerySemantic(query, k)
	if err != nil {
		klog.Error(klog.CategoryPager, "recall failed: %v", err)
		return nil
	}

	var ids []string
	for _, h := range hits {
		if _, inL1 := p.l1[h.Key]; inL1 {
			continue
		}
		p.l2[h.Key] = &Page{
			ID:               h.Key,
			Content:          h.Content,
			TokenCost:        p.counter.CountTokens(h.Content),
			LastAccessedTurn: p.currentTurn,
			Priority:         3,
			TTL:              defaultTTL,
		}
		ids = append(ids, h.Key)
	}
	return ids
}

// Tick runs once per turn: increments the turn counter, decrements TTL on
// every non-pinned L1 page (demoting any that reach zero), then runs
// capacity governance if L1 usage exceeds the budget.
func (p *Pager) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentTurn++

	for id, page := range p.l1 {
		if page.Pinned {
			continue
		}
		page.TTL--
		if page.TTL <= 0 {
			p.evictToL2Locked(id)
		}
	}

	p.governCapacityLocked()
}

// governCapacityLocked demotes the lowest-scored non-pinned pages until L1
// usage is at or under capacity, or nothing evictable remains.
func (p *Pager) governCapacityLocked() {
	for p.currentUsageLocked() > p.capacity {
		victim := p.lowestScoredCandidateLocked()
		if victim == "" {
			return
		}
		p.evictToL2Locked(victim)
	}
}

func (p *Pager) lowestScoredCandidateLocked() string {
	var victim string
	bestScore := 0
	first := true
	for id, page := range p.l1 {
		if page.Pinned {
			continue
		}
		score := page.Priority*10 + page.LastAccessedTurn
		if first || score < bestScore {
			bestScore = score
			victim = id
			first = false
		}
	}
	return victim
}

// promoteToL1 applies the admission/eviction algorithm and, on success,
// inserts page into L1.
func (p *Pager) promoteToL1(page *Page) bool {
	if page.TokenCost > p.capacity {
		return false
	}
	for p.currentUsageLocked()+page.TokenCost > p.capacity {
		victim := p.lowestScoredCandidateLocked()
		if victim == "" {
			return false
		}
		p.evictToL2Locked(victim)
	}
	p.l1[page.ID] = page
	return true
}

func (p *Pager) currentUsageLocked() int {
	total := 0
	for _, page := range p.l1 {
		total += page.TokenCost
	}
	return total
}

// Render produces the concatenated L1 view: pinned pages first, then
// descending priority, each preceded by a display header.
func (p *Pager) Render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pages := make([]*Page, 0, len(p.l1))
	for _, page := range p.l1 {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Pinned != pages[j].Pinned {
			return pages[i].Pinned
		}
		return pages[i].Priority > pages[j].Priority
	})

	var sb strings.Builder
	for _, page := range pages {
		display := strings.TrimPrefix(page.ID, "FILE:")
		display = strings.TrimPrefix(display, "SYS:")
		display = strings.TrimPrefix(display, "ARTIFACT:")
		sb.WriteString("=== ")
		sb.WriteString(display)
		sb.WriteString(" ===\n")
		sb.WriteString(page.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Stats reports current tier occupancy.
func (p *Pager) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	l3 := 0
	if p.archiver != nil {
		l3 = p.archiver.Count()
	}
	return Stats{
		L1Used:     p.currentUsageLocked(),
		L1Capacity: p.capacity,
		L1Count:    len(p.l1),
		L2Count:    len(p.l2),
		L3Count:    l3,
	}
}

// Blocker returns the id of the lowest-priority evictable L1 resident — the
// page a caller should name in an "L1 RAM VIOLATION (FILE:<id> is open)"
// message, since it is the one `unstage_context` would need to clear to
// admit a new page. Returns "" if L1 holds only pinned pages.
func (p *Pager) Blocker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lowestScoredCandidateLocked()
}

// InL1 reports whether id is currently resident in L1.
func (p *Pager) InL1(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.l1[id]
	return ok
}

// InL2 reports whether id is currently resident in L2.
func (p *Pager) InL2(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.l2[id]
	return ok
}

// L1IDs returns a snapshot of the ids currently resident in L1.
func (p *Pager) L1IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.l1))
	for id := range p.l1 {
		ids = append(ids, id)
	}
	return ids
}

// L1Snapshot returns a deep copy of every page currently in L1, for use by
// Comparator and Snapshot/Restore.
func (p *Pager) L1Snapshot() map[string]Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Page, len(p.l1))
	for id, page := range p.l1 {
		out[id] = *page
	}
	return out
}

// RestoreL1 overwrites L1 wholesale with the given page set (used by
// Snapshot/Restore). L2 and L3 are left untouched.
func (p *Pager) RestoreL1(pages map[string]Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.l1 = make(map[string]*Page, len(pages))
	for id, page := range pages {
		cp := page
		p.l1[id] = &cp
	}
}

// CurrentTurn returns the pager's turn counter.
func (p *Pager) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTurn
}

// forceInsert is used only by the Comparator to bypass the capacity
// invariant for the duration of a dual-slot overlay.
func (p *Pager) forceInsert(page *Page) {
	p.l1[page.ID] = page
}

// evictAllExceptSysLocked demotes every non-SYS: page in L1, used by
// Comparator.LoadPair.
func (p *Pager) evictAllExceptSysLocked() {
	for id := range p.l1 {
		if !strings.HasPrefix(id, "SYS:") {
			p.evictToL2Locked(id)
		}
	}
}

// evictAllFilesLocked demotes every FILE: page in L1 to L2 unconditionally,
// used by Comparator.PurgePair.
func (p *Pager) evictAllFilesLocked() {
	for id := range p.l1 {
		if strings.HasPrefix(id, "FILE:") {
			page := p.l1[id]
			delete(p.l1, id)
			p.l2[id] = page
		}
	}
}
