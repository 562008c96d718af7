package space

import (
	"sort"
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/sidemeta"
)

// MarkCompactSpace implements spec.md §4.2's two-phase mark-compact
// protocol: a marking trace builds the mark bitmap; CalculateForwarding
// assigns every live object a new address by dense-prefix accumulation
// over the live set in address order; a second trace (ForwardingOffset)
// rewrites references via the computed offsets; Compact physically slides
// objects into their new addresses via a caller-supplied mover (the
// embedder's own memmove-equivalent — this core only computes where
// things go, consistent with CopySpace/ImmixSpace delegating the actual
// byte move to binding.ObjectModel).
type MarkCompactSpace struct {
	BaseSpace

	markBits *sidemeta.Store

	mu      sync.Mutex
	sizes   map[address.Address]uint64 // object -> size, as allocated
	order   []address.Address          // allocation order, which is also address order for a bump allocator
	forward map[address.Address]address.Address
}

// NewMarkCompactSpace builds a MarkCompactSpace over pr's reservation.
func NewMarkCompactSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap, rangeBytes uint64) *MarkCompactSpace {
	spec := sidemeta.Spec{Name: "markcompact-mark", LogNumOfBits: 0, LogBytesInRegion: objectGranularityLog}
	store := sidemeta.NewStore(spec, pr.Base(), rangeBytes)
	store.Commit(pr.Base(), rangeBytes)
	return &MarkCompactSpace{
		BaseSpace: NewBaseSpace(name, descriptor, pr, chunkMap),
		markBits:  store,
		sizes:     make(map[address.Address]uint64),
	}
}

// Alloc bump-allocates size bytes, recording the object's address and size
// for the next cycle's compaction bookkeeping.
func (s *MarkCompactSpace) Alloc(size uint64) (address.Address, bool) {
	pages := (size + sys.PageSize - 1) / sys.PageSize
	if pages == 0 {
		pages = 1
	}
	addr, ok := s.pr.AllocPages(pages)
	if !ok {
		return address.ZeroAddress, false
	}
	s.claimChunksFor(addr, pages*sys.PageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[addr] = size
	s.order = append(s.order, addr)
	return addr, true
}

// TraceObject marks obj, reporting whether this is its first visit this
// cycle.
func (s *MarkCompactSpace) TraceObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	if s.markBits.CompareAndSwap(obj.ToAddress(), 0, 1) {
		return obj, true
	}
	return obj, false
}

// Prepare clears mark bits ahead of a new cycle's marking trace.
func (s *MarkCompactSpace) Prepare(fullHeap bool) {
	s.markBits.Bzero(s.pr.Base(), s.pr.ReservedPages()*sys.PageSize)
}

// CalculateForwarding walks every allocated object in address order — the
// same order as s.order, since Alloc only ever bumps forward — and assigns
// each live one a new address equal to the base plus the cumulative size
// of every live object preceding it. This dense-prefix accumulation is
// what spec.md §4.2 calls "assigns new addresses by dense-prefix
// accumulation," and is the step that guarantees surviving objects keep
// their relative order (spec.md §8 scenario 2).
func (s *MarkCompactSpace) CalculateForwarding() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := append([]address.Address(nil), s.order...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].LT(ordered[j]) })

	s.forward = make(map[address.Address]address.Address, len(ordered))
	cursor := s.pr.Base()
	for _, obj := range ordered {
		if s.markBits.Load(obj) == 0 {
			continue // dead: no forwarding address, simply dropped from the compacted layout
		}
		s.forward[obj] = cursor
		cursor = cursor.Add(int64(s.sizes[obj]))
	}
}

// ForwardingOffset returns obj's computed new address and whether obj
// survived this cycle's marking trace. Must be called after
// CalculateForwarding; this is the second trace's per-reference rewrite
// step of spec.md §4.2.
func (s *MarkCompactSpace) ForwardingOffset(obj address.Address) (address.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newAddr, ok := s.forward[obj]
	return newAddr, ok
}

// Compact performs the final slide: for every surviving object in address
// order, invoke mover(oldAddr, newAddr, size) so the embedder can relocate
// its bytes, then update this space's own bookkeeping to the compacted
// layout. The page resource is left as it is; Release rewinds it to the
// new high-water mark.
func (s *MarkCompactSpace) Compact(mover func(old, new address.Address, size uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := append([]address.Address(nil), s.order...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].LT(ordered[j]) })

	newOrder := make([]address.Address, 0, len(ordered))
	newSizes := make(map[address.Address]uint64, len(ordered))
	for _, obj := range ordered {
		newAddr, ok := s.forward[obj]
		if !ok {
			continue
		}
		size := s.sizes[obj]
		if mover != nil {
			mover(obj, newAddr, size)
		}
		newOrder = append(newOrder, newAddr)
		newSizes[newAddr] = size
	}
	s.order = newOrder
	s.sizes = newSizes
	s.forward = nil
}

// Release rewinds the page resource's bump frontier to the end of the
// just-compacted live set, reclaiming every byte the dead objects held.
func (s *MarkCompactSpace) Release(fullHeap bool) {
	s.mu.Lock()
	highWater := s.pr.Base()
	for _, obj := range s.order {
		if end := obj.Add(int64(s.sizes[obj])); end.GT(highWater) {
			highWater = end
		}
	}
	s.mu.Unlock()
	s.pr.RewindTo(highWater)
}
