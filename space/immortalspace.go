package space

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/sidemeta"
)

// ImmortalSpace never reclaims objects, per spec.md §3: "never reclaimed;
// marked but not swept." It still participates in tracing (so its objects'
// outgoing edges get scanned) but Release never frees anything.
type ImmortalSpace struct {
	BaseSpace
	markBits *sidemeta.Store
}

// NewImmortalSpace builds an ImmortalSpace over pr's reservation, with a
// 1-bit mark-bit store covering it.
func NewImmortalSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap, rangeBytes uint64) *ImmortalSpace {
	spec := sidemeta.Spec{Name: "immortal-mark", LogNumOfBits: 0, LogBytesInRegion: sys.PageShift}
	store := sidemeta.NewStore(spec, pr.Base(), rangeBytes)
	store.Commit(pr.Base(), rangeBytes)
	return &ImmortalSpace{BaseSpace: NewBaseSpace(name, descriptor, pr, chunkMap), markBits: store}
}

// Alloc bump-allocates size bytes, claiming the backing chunks.
func (s *ImmortalSpace) Alloc(size uint64) (address.Address, bool) {
	pages := (size + sys.PageSize - 1) / sys.PageSize
	if pages == 0 {
		pages = 1
	}
	addr, ok := s.pr.AllocPages(pages)
	if ok {
		s.claimChunksFor(addr, pages*sys.PageSize)
	}
	return addr, ok
}

// TraceObject marks obj, reporting whether this is the first visit this
// cycle (immortal objects are never forwarded, so tracing is mark-only).
func (s *ImmortalSpace) TraceObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	if s.markBits.CompareAndSwap(obj.ToAddress(), 0, 1) {
		return obj, true
	}
	return obj, false
}

// Prepare clears mark bits ahead of a new cycle.
func (s *ImmortalSpace) Prepare(fullHeap bool) {
	s.markBits.Bzero(s.pr.Base(), s.pr.ReservedPages()*sys.PageSize)
}

// Release is a no-op: immortal objects are never reclaimed.
func (s *ImmortalSpace) Release(fullHeap bool) {}
