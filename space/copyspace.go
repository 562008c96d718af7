package space

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/forward"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/sidemeta"
)

// CopySpace is one semispace half with a "hi" flag. Its page resource is
// a single contiguous bump range; it does not allocate from discontiguous
// chunks. A SemiSpace plan owns a pair of CopySpaces and swaps which one
// is the to-space each cycle; hi is purely a debug/identity flag distinguishing the pair's two
// halves, mutated only under STW per spec.md §5.
type CopySpace struct {
	BaseSpace
	hi            bool
	copySemantics binding.CopySemantics
	fwd           *forward.Table
	bits          *sidemeta.Store
	pointer       *sidemeta.Store
}

// NewCopySpace builds a CopySpace over pr's reservation, with forwarding
// state stored in side metadata sized to cover that same reservation.
func NewCopySpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap, hi bool, semantics binding.CopySemantics, rangeBytes uint64) *CopySpace {
	bitsSpec := forward.BitsSpec(sys.PageShift)
	ptrSpec := forward.PointerSpec(sys.PageShift)
	bits := sidemeta.NewStore(bitsSpec, pr.Base(), rangeBytes)
	pointer := sidemeta.NewStore(ptrSpec, pr.Base(), rangeBytes)
	// The whole reservation is committed up front: CopySpace's metadata
	// range tracks 1:1 with its page resource, and unlike the data heap
	// itself nothing here benefits from staged commit.
	bits.Commit(pr.Base(), rangeBytes)
	pointer.Commit(pr.Base(), rangeBytes)
	return &CopySpace{
		BaseSpace:     NewBaseSpace(name, descriptor, pr, chunkMap),
		hi:            hi,
		copySemantics: semantics,
		fwd:           forward.NewTable(bits, pointer),
		bits:          bits,
		pointer:       pointer,
	}
}

// Hi reports which half of the semispace pair this instance represents.
func (s *CopySpace) Hi() bool { return s.hi }

// Alloc bump-allocates size bytes for a new (mutator-side) object,
// claiming the backing chunks in the process-wide ChunkMap.
func (s *CopySpace) Alloc(size uint64) (address.Address, bool) {
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

// TraceObject implements spec.md §4.2's CopySpace.trace_object protocol.
// It returns the canonical to-space reference for obj and whether this
// trace is the one that copied it (first visit this cycle) — callers use
// that boolean exactly as they would the spec's "enqueues the object iff
// first-visited" instruction, deciding whether to scan obj's own edges.
func (s *CopySpace) TraceObject(obj address.ObjectReference, om binding.ObjectModel, ctx binding.CopyContext) (address.ObjectReference, bool) {
	if s.fwd.StateOf(obj) == forward.Forwarded {
		return s.fwd.Pointer(obj), false
	}
	if s.fwd.TryForward(obj) {
		newRef := om.Copy(obj, s.copySemantics, ctx)
		s.fwd.Publish(obj, newRef)
		return newRef, true
	}
	// Lost the race: spin for the winner's result. SpinWaitForward also
	// handles the (rare) revert case: NOT_TRIGGERED means the winner
	// backed out, so we retry from scratch, mirroring spec.md §4.3's
	// "Readers blocked in spin-wait MUST handle both the Forwarded and
	// NotTriggered final states."
	if ref, ok := s.fwd.SpinWaitForward(obj); ok {
		return ref, false
	}
	return s.TraceObject(obj, om, ctx)
}

// Prepare resets forwarding state across the space's reserved range ahead
// of a new cycle, per spec.md §4.2: "called once per GC before any
// tracing; resets mark bits, flips semispace, etc." Flipping which
// CopySpace is the allocation target is the owning plan's job, not this
// space's.
func (s *CopySpace) Prepare(fullHeap bool) {
	s.bits.Bzero(s.pr.Base(), s.pr.ReservedPages()*sys.PageSize)
}

// Release reclaims the entire semispace at once — this half is always
// either fully live (it was this cycle's to-space) or fully dead (it was
// the from-space and every survivor has been forwarded out of it) — which
// is exactly what spec.md §8 scenario 1 checks via ReservedPages()==0.
func (s *CopySpace) Release(fullHeap bool) {
	s.pr.Reset()
}
