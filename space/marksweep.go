package space

import (
	"math/bits"
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/sidemeta"
)

// MarkSweepSpace is a fixed-cell-size freelist space: one size class per
// instance, objects allocated from a per-size free list and returned to it
// at release time if unmarked, per spec.md §3's "freelist per block;
// per-cell mark bits." Grounded on mfixalloc.go's fixalloc: bump a fresh
// block of cells while the free list is empty, pop from the free list
// otherwise, and on free just prepend to the list again.
//
// mfixalloc.go threads its free list through the freed memory itself
// (mlink.next lives in the first word of the freed block). This core has
// no backing bytes to write into — cells are bare address-space
// reservations — so the chain is instead modeled as an explicit
// address-to-address map; the allocation order and two-path shape
// (free-list-first, chunk-bump-second) are otherwise identical.
type MarkSweepSpace struct {
	BaseSpace

	cellSize uint64
	markBits *sidemeta.Store

	mu       sync.Mutex
	freeHead address.Address
	freeOK   bool
	next     map[address.Address]address.Address // free-list chain, keyed by cell
	live     map[address.Address]bool            // cells currently handed out by Alloc (not on the free list)
}

// NewMarkSweepSpace builds a MarkSweepSpace over pr's reservation, with
// cellSize-granularity mark bits covering it. cellSize is the fixed size
// of every object this instance allocates; the owning plan picks one
// MarkSweepSpace per size class.
func NewMarkSweepSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap, rangeBytes, cellSize uint64) *MarkSweepSpace {
	// One mark bit per region of the largest power of two not exceeding
	// cellSize, so every cell start falls in a region of its own.
	logCell := uint(sys.PageShift)
	if cellSize > 0 {
		logCell = uint(bits.Len64(cellSize) - 1)
	}
	spec := sidemeta.Spec{Name: "marksweep-mark", LogNumOfBits: 0, LogBytesInRegion: logCell}
	store := sidemeta.NewStore(spec, pr.Base(), rangeBytes)
	store.Commit(pr.Base(), rangeBytes)
	return &MarkSweepSpace{
		BaseSpace: NewBaseSpace(name, descriptor, pr, chunkMap),
		cellSize:  cellSize,
		markBits:  store,
		next:      make(map[address.Address]address.Address),
		live:      make(map[address.Address]bool),
	}
}

// Alloc returns one cell. size must not exceed this space's cellSize; the
// owning plan is responsible for routing each allocation to the
// MarkSweepSpace instance with a matching size class.
func (s *MarkSweepSpace) Alloc(size uint64) (address.Address, bool) {
	if size > s.cellSize {
		return address.ZeroAddress, false
	}

	s.mu.Lock()
	if cell, ok := s.popFreeLocked(); ok {
		s.live[cell] = true
		s.mu.Unlock()
		return cell, true
	}
	s.mu.Unlock()

	pages := (s.cellSize + sys.PageSize - 1) / sys.PageSize
	if pages == 0 {
		pages = 1
	}
	blockStart, ok := s.pr.AllocPages(pages)
	if !ok {
		return address.ZeroAddress, false
	}
	blockBytes := pages * sys.PageSize
	s.claimChunksFor(blockStart, blockBytes)

	cellsInBlock := blockBytes / s.cellSize
	if cellsInBlock == 0 {
		cellsInBlock = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	first := blockStart
	s.live[first] = true
	for i := uint64(1); i < cellsInBlock; i++ {
		cell := blockStart.Add(int64(i * s.cellSize))
		s.pushFreeLocked(cell)
	}
	return first, true
}

func (s *MarkSweepSpace) pushFreeLocked(cell address.Address) {
	if s.freeOK {
		s.next[cell] = s.freeHead
	}
	s.freeHead = cell
	s.freeOK = true
}

func (s *MarkSweepSpace) popFreeLocked() (address.Address, bool) {
	if !s.freeOK {
		return address.ZeroAddress, false
	}
	cell := s.freeHead
	next, hasNext := s.next[cell]
	delete(s.next, cell)
	s.freeHead = next
	s.freeOK = hasNext
	return cell, true
}

// TraceObject marks obj's cell, reporting whether this is its first visit
// this cycle.
func (s *MarkSweepSpace) TraceObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	if s.markBits.CompareAndSwap(obj.ToAddress(), 0, 1) {
		return obj, true
	}
	return obj, false
}

// Prepare clears mark bits ahead of a new cycle.
func (s *MarkSweepSpace) Prepare(fullHeap bool) {
	s.markBits.Bzero(s.pr.Base(), s.pr.ReservedPages()*sys.PageSize)
}

// Release sweeps every cell currently handed out, returning unmarked ones
// to the free list — the freelist-space analogue of LargeObjectSpace's
// list walk, at cell instead of whole-object granularity. Cells already on
// the free list are untouched: they were never traced, so revisiting them
// here would double-link them into the chain.
func (s *MarkSweepSpace) Release(fullHeap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for cell := range s.live {
		if s.markBits.Load(cell) == 0 {
			delete(s.live, cell)
			s.pushFreeLocked(cell)
		}
	}
}
