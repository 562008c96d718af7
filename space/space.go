package space

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/region"
)

// Space is the common capability every space variant exposes, per
// spec.md §4.2.
type Space interface {
	Name() string
	Descriptor() int
	InSpace(addr address.Address) bool
	Prepare(fullHeap bool)
	Release(fullHeap bool)
	ReservedPages() uint64
	CommittedPages() uint64
}

// BaseSpace carries the fields every space variant shares: a name, a
// descriptor, a page resource and the process-wide chunk map. It holds no
// side-metadata context or per-region tables; concrete spaces embed
// BaseSpace and add their own metadata stores and trace/mark state.
type BaseSpace struct {
	name       string
	descriptor int
	pr         *PageResource
	chunkMap   *region.ChunkMap
}

// NewBaseSpace builds the shared fields. chunkMap is the process-wide
// registry (spec.md §3's "Spaces share the page-resource maps via a
// process-wide registry"); every space in one runtime instance passes the
// same *region.ChunkMap.
func NewBaseSpace(name string, descriptor int, pr *PageResource, chunkMap *region.ChunkMap) BaseSpace {
	return BaseSpace{name: name, descriptor: descriptor, pr: pr, chunkMap: chunkMap}
}

func (b *BaseSpace) Name() string       { return b.name }
func (b *BaseSpace) Descriptor() int    { return b.descriptor }
func (b *BaseSpace) ReservedPages() uint64  { return b.pr.ReservedPages() }
func (b *BaseSpace) CommittedPages() uint64 { return b.pr.CommittedPages() }

// InSpace reports whether addr falls in a chunk the ChunkMap currently
// attributes to this space's descriptor, per spec.md §4.2's in_space
// contract: "true iff address is within the space's current commitment."
func (b *BaseSpace) InSpace(addr address.Address) bool {
	st := b.chunkMap.Get(region.ChunkOf(addr))
	return !st.Free && st.SpaceIndex == b.descriptor
}

// claimChunksFor registers every chunk spanning [start, start+bytes) as
// owned by this space in the process-wide ChunkMap, the allocation-time
// half of the "at most one space per non-free chunk" invariant (spec.md
// §3). Spaces call this whenever AllocPages grows their committed range.
func (b *BaseSpace) claimChunksFor(start address.Address, bytes uint64) {
	end := start.Add(int64(bytes))
	for c := region.ChunkOf(start); c.Start().LT(end); c = region.Chunk(c.Start().Add(region.ChunkBytes)) {
		b.chunkMap.Allocate(c, b.descriptor)
	}
}
