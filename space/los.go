package space

import (
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
)

// losCell is one node of the doubly-linked list of allocated large objects
// spec.md §4.2 describes LargeObjectSpace's sweep as walking.
type losCell struct {
	ref        address.ObjectReference
	pages      uint64
	marked     bool
	prev, next *losCell
}

// LargeObjectSpace independently page-allocates every object, per spec.md
// §3: "per-object metadata; swept by list walk." A map gives TraceObject
// O(1) mark-bit access (spec.md calls for "mark bit per object", not a
// specific storage scheme); the doubly-linked list preserves the sweep's
// list-walk shape.
type LargeObjectSpace struct {
	BaseSpace

	mu    sync.Mutex
	cells map[address.ObjectReference]*losCell
	head  *losCell
}

// NewLargeObjectSpace builds an empty LargeObjectSpace over pr, registered
// in the process-wide chunkMap under descriptor.
func NewLargeObjectSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap) *LargeObjectSpace {
	return &LargeObjectSpace{
		BaseSpace: NewBaseSpace(name, descriptor, pr, chunkMap),
		cells:     make(map[address.ObjectReference]*losCell),
	}
}

// Alloc reserves size bytes for a large object and registers it at the
// head of the sweep list, returning the allocation's start address.
func (s *LargeObjectSpace) Alloc(size uint64) (address.Address, bool) {
	pages := (size + sys.PageSize - 1) / sys.PageSize
	if pages == 0 {
		pages = 1
	}
	addr, ok := s.pr.AllocPages(pages)
	if !ok {
		return address.ZeroAddress, false
	}
	s.claimChunksFor(addr, pages*sys.PageSize)
	ref := addr.ToObjectReference()

	s.mu.Lock()
	defer s.mu.Unlock()
	cell := &losCell{ref: ref, pages: pages, next: s.head}
	if s.head != nil {
		s.head.prev = cell
	}
	s.head = cell
	s.cells[ref] = cell
	return addr, true
}

// TraceObject marks obj, reporting whether this is its first visit this
// cycle. Large objects are never moved.
func (s *LargeObjectSpace) TraceObject(obj address.ObjectReference) (address.ObjectReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[obj]
	if !ok {
		return obj, false
	}
	if cell.marked {
		return obj, false
	}
	cell.marked = true
	return obj, true
}

// Prepare clears every cell's mark bit ahead of a new cycle.
func (s *LargeObjectSpace) Prepare(fullHeap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cells {
		c.marked = false
	}
}

// Release walks the list once, per spec.md's "swept by list walk",
// unlinking and freeing every cell that wasn't marked this cycle.
func (s *LargeObjectSpace) Release(fullHeap bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := s.head; c != nil; {
		next := c.next
		if !c.marked {
			s.unlinkLocked(c)
			delete(s.cells, c.ref)
			s.pr.ReleasePages(c.pages)
		}
		c = next
	}
}

func (s *LargeObjectSpace) unlinkLocked(c *losCell) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		s.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
}
