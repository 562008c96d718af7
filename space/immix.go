package space

import (
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/forward"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/sidemeta"
)

// TraceKind selects ImmixSpace.TraceObject's behavior, per spec.md §4.2:
// mark-only versus mark-and-evacuate-if-defragging.
type TraceKind int

const (
	// TraceKindFast marks only; used in cycles that do not defragment.
	TraceKindFast TraceKind = iota
	// TraceKindTransitive marks, and evacuates the object if its block
	// is in the defrag set.
	TraceKindTransitive
)

// ImmixSpace lays out lines, blocks, and chunks with defrag state, per
// spec.md §3/§4.2. Mark state is tracked at both object and line
// granularity (line marks drive hole counting for the defrag decision);
// evacuation of defrag-set blocks reuses the forwarding protocol exactly
// as CopySpace does.
type ImmixSpace struct {
	BaseSpace

	objectMarks *sidemeta.Store // 1 bit per object-granularity region
	lineMarks   *sidemeta.Store // 1 bit per line

	fwd *forward.Table

	mu         sync.Mutex
	defragSet  map[region.Block]bool
	allBlocks  map[region.Block]bool // every block this space has bump-allocated, for AllBlocks and ApplyDefragDecision's line walk
}

const objectGranularityLog = 4 // 16-byte granularity for the object mark bit, a reasonable minimum-object-size assumption

// NewImmixSpace builds an ImmixSpace over pr's reservation.
func NewImmixSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap, rangeBytes uint64) *ImmixSpace {
	objSpec := sidemeta.Spec{Name: "immix-object-mark", LogNumOfBits: 0, LogBytesInRegion: objectGranularityLog}
	lineSpec := sidemeta.Spec{Name: "immix-line-mark", LogNumOfBits: 0, LogBytesInRegion: region.LogLineBytes}
	objStore := sidemeta.NewStore(objSpec, pr.Base(), rangeBytes)
	lineStore := sidemeta.NewStore(lineSpec, pr.Base(), rangeBytes)
	objStore.Commit(pr.Base(), rangeBytes)
	lineStore.Commit(pr.Base(), rangeBytes)
	fwdBits := sidemeta.NewStore(forward.BitsSpec(sys.PageShift), pr.Base(), rangeBytes)
	fwdPtr := sidemeta.NewStore(forward.PointerSpec(sys.PageShift), pr.Base(), rangeBytes)
	fwdBits.Commit(pr.Base(), rangeBytes)
	fwdPtr.Commit(pr.Base(), rangeBytes)
	return &ImmixSpace{
		BaseSpace:   NewBaseSpace(name, descriptor, pr, chunkMap),
		objectMarks: objStore,
		lineMarks:   lineStore,
		fwd:         forward.NewTable(fwdBits, fwdPtr),
		defragSet:   make(map[region.Block]bool),
		allBlocks:   make(map[region.Block]bool),
	}
}

// Alloc bump-allocates size bytes rounded up to whole pages, registering
// every block those pages touch for ApplyDefragDecision's line walk.
func (s *ImmixSpace) Alloc(size uint64) (address.Address, bool) {
	pages := (size + sys.PageSize - 1) / sys.PageSize
	if pages == 0 {
		pages = 1
	}
	addr, ok := s.pr.AllocPages(pages)
	if !ok {
		return address.ZeroAddress, false
	}
	bytes := pages * sys.PageSize
	s.claimChunksFor(addr, bytes)

	s.mu.Lock()
	for a := addr.AlignDown(region.LogBlockBytes); a.LT(addr.Add(int64(bytes))); a = a.Add(region.BlockBytes) {
		s.allBlocks[region.BlockOf(a)] = true
	}
	s.mu.Unlock()
	return addr, true
}

// isDefragBlock reports whether obj's block was selected for evacuation
// this cycle by the last ApplyDefragDecision call.
func (s *ImmixSpace) isDefragBlock(obj address.ObjectReference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defragSet[region.BlockOf(obj.ToAddress())]
}

// TraceObject implements spec.md §4.2's two ImmixSpace trace kinds.
func (s *ImmixSpace) TraceObject(obj address.ObjectReference, kind TraceKind, om binding.ObjectModel, ctx binding.CopyContext) (address.ObjectReference, bool) {
	if kind == TraceKindTransitive && s.isDefragBlock(obj) {
		return s.evacuate(obj, om, ctx)
	}
	if s.objectMarks.CompareAndSwap(obj.ToAddress(), 0, 1) {
		s.lineMarks.Store(region.LineOf(obj.ToAddress()).Start(), 1)
		return obj, true
	}
	return obj, false
}

// evacuate moves obj out of a defrag-set block using the same
// NotTriggered->BeingForwarded->Forwarded protocol CopySpace uses, per
// spec.md §4.3's "the forwarding protocol" being shared across every
// copying trace path, not just CopySpace's.
func (s *ImmixSpace) evacuate(obj address.ObjectReference, om binding.ObjectModel, ctx binding.CopyContext) (address.ObjectReference, bool) {
	if s.fwd.StateOf(obj) == forward.Forwarded {
		return s.fwd.Pointer(obj), false
	}
	if s.fwd.TryForward(obj) {
		newRef := om.Copy(obj, 0, ctx)
		s.fwd.Publish(obj, newRef)
		if s.objectMarks.CompareAndSwap(newRef.ToAddress(), 0, 1) {
			s.lineMarks.Store(region.LineOf(newRef.ToAddress()).Start(), 1)
		}
		return newRef, true
	}
	if ref, ok := s.fwd.SpinWaitForward(obj); ok {
		return ref, false
	}
	return s.evacuate(obj, om, ctx)
}

// Prepare clears object and line mark bits ahead of a new cycle.
func (s *ImmixSpace) Prepare(fullHeap bool) {
	n := s.pr.ReservedPages() * sys.PageSize
	s.objectMarks.Bzero(s.pr.Base(), n)
	s.lineMarks.Bzero(s.pr.Base(), n)
}

// ComputeHistogram walks blocks (typically a subset assigned to one
// worker, per spec.md §4.2's "merged from per-worker histograms") and
// returns a DefragHistogram of (hole count -> live lines) for them.
func (s *ImmixSpace) ComputeHistogram(blocks []region.Block) *DefragHistogram {
	h := NewDefragHistogram(region.LinesPerBlock)
	for _, b := range blocks {
		holes, liveLines := s.blockHolesAndLiveLines(b)
		h.Record(holes, liveLines)
	}
	return h
}

// AllBlocks returns every block this space has ever bump-allocated into,
// for callers to pass to ComputeHistogram (the Immix plan's Prepare packet
// passes the whole list in one call).
func (s *ImmixSpace) AllBlocks() []region.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]region.Block, 0, len(s.allBlocks))
	for b := range s.allBlocks {
		out = append(out, b)
	}
	return out
}

// blockHolesAndLiveLines counts maximal runs of unmarked lines within b (a
// "hole") and the number of marked ("live") lines.
func (s *ImmixSpace) blockHolesAndLiveLines(b region.Block) (holes int, liveLines uint64) {
	inHole := false
	for _, l := range b.Lines() {
		if s.lineMarks.Load(l.Start()) != 0 {
			liveLines++
			inHole = false
			continue
		}
		if !inHole {
			holes++
			inHole = true
		}
	}
	return holes, liveLines
}

// ApplyDefragDecision computes the spill threshold from merged (the
// coordinator-side merge of every worker's ComputeHistogram result) and
// populates the defrag set with every block whose hole count meets or
// exceeds that threshold. The Immix plan calls this in the Prepare packet,
// so TraceKindTransitive tracing consults the set in the same cycle, until
// Release clears it.
func (s *ImmixSpace) ApplyDefragDecision(merged *DefragHistogram, availableToSpaceLines uint64) (threshold int, linesToEvacuate uint64) {
	threshold, linesToEvacuate = merged.SpillThreshold(availableToSpaceLines)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defragSet = make(map[region.Block]bool)
	for b := range s.allBlocks {
		holes, _ := s.blockHolesAndLiveLines(b)
		if holes >= threshold {
			s.defragSet[b] = true
		}
	}
	return threshold, linesToEvacuate
}

// Release is a no-op beyond clearing the defrag set: evacuated blocks'
// pages aren't individually tracked for reclamation at this layer (a full
// implementation would release empty blocks back to a free-block list;
// spec.md §4.2 only requires exposing the defrag decision itself, per
// §4.13's supplemented scope).
func (s *ImmixSpace) Release(fullHeap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defragSet = make(map[region.Block]bool)
}
