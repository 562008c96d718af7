// Package space implements the policy layer of spec.md §4.2: the space
// variants (CopySpace, ImmortalSpace, LargeObjectSpace, ImmixSpace,
// MarkSweepSpace, MarkCompactSpace) and the per-space accounting and
// trace/forward primitives they share.
//
// It is grounded on mheap.go's span allocator (PageResource mirrors
// mheap.grow/allocSpanLocked's "bump the arena, count pages" accounting,
// simplified to a monotonic bump allocator since the core has no OS-level
// page mapping of its own to perform) and mfixalloc.go's chunked freelist
// allocator (reused, generalized to arbitrary cell sizes, by
// MarkSweepSpace's per-block freelist).
package space

import (
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
)

// PageResource tracks a space's virtual-address commitment: a monotonic
// bump allocator over a pre-reserved range, plus the reserved/committed
// page counters spec.md §4.2 requires every space expose. It is shared (via
// a pointer) whenever two spaces logically partition one reservation, the
// same "page resources are shared; allocation from them uses a per-resource
// mutex" rule spec.md §5 states.
type PageResource struct {
	mu    sync.Mutex
	base  address.Address
	limit address.Address
	bump  address.Address

	committedPages uint64
}

// NewPageResource reserves [base, base+totalBytes) for bump allocation.
// totalBytes must be a multiple of sys.PageSize.
func NewPageResource(base address.Address, totalBytes uint64) *PageResource {
	return &PageResource{base: base, limit: base.Add(int64(totalBytes)), bump: base}
}

// Base returns the start of the reserved range.
func (p *PageResource) Base() address.Address { return p.base }

// ReservedPages is the number of pages ever bumped past, mirroring
// mheap.grow's "the arena only grows" accounting; it never shrinks except
// via Reset or RewindTo.
func (p *PageResource) ReservedPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(p.bump.Sub(p.base)) / sys.PageSize
}

// CommittedPages is the number of pages actually backing live allocations,
// distinct from ReservedPages when a freelist space (MarkSweepSpace) frees
// individual cells without returning the whole page to the bump frontier.
func (p *PageResource) CommittedPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committedPages
}

// AllocPages bump-allocates pages contiguous pages, returning their start
// address and ok=false if the reservation is exhausted — the same
// "grow the heap, if that fails too the allocation fails" shape as
// mheap.allocSpanLocked, without the teacher's free-span reuse (a space
// here only shrinks via Reset, which CopySpace calls for its fromspace at
// the end of each cycle, or RewindTo, which MarkCompactSpace's Release
// calls).
func (p *PageResource) AllocPages(pages uint64) (address.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	need := int64(pages * sys.PageSize)
	next := p.bump.Add(need)
	if next.GT(p.limit) {
		return address.ZeroAddress, false
	}
	start := p.bump
	p.bump = next
	p.committedPages += pages
	return start, true
}

// Reset rewinds the bump frontier to the base and zeros both page counters,
// reclaiming the entire range at once — CopySpace's fromspace does this in
// Release, which is how scenario 1 of spec.md §8 observes
// fromspace.reserved_pages() == 0 after release.
func (p *PageResource) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bump = p.base
	p.committedPages = 0
}

// ReleasePages gives back pages worth of committed (but not reserved)
// space, for freelist-style spaces that reclaim individual cells without
// rewinding the bump frontier.
func (p *PageResource) ReleasePages(pages uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pages > p.committedPages {
		pages = p.committedPages
	}
	p.committedPages -= pages
}

// RewindTo moves the bump frontier back to newHighWater, page-aligning up,
// and recomputes committedPages accordingly — MarkCompactSpace's Release
// calls this after Compact to reclaim the space a compaction pass freed,
// the compacting analogue of Reset's "rewind to the very base."
func (p *PageResource) RewindTo(newHighWater address.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	aligned := newHighWater.AlignUp(sys.PageShift)
	if aligned.GT(p.bump) {
		return // never grow the frontier; only a release-time shrink is meaningful here
	}
	p.bump = aligned
	p.committedPages = uint64(p.bump.Sub(p.base)) / sys.PageSize
}
