package region

import (
	"fmt"
	"sync"
)

// ChunkState is the state of one chunk in the process-wide ChunkMap, per
// spec.md §3: "ChunkState ∈ {Free, Allocated(space_index)}".
type ChunkState struct {
	Free       bool
	SpaceIndex int // valid iff !Free
}

// FreeChunkState is the zero/free state.
var FreeChunkState = ChunkState{Free: true}

// ChunkMap is the process-wide registry mapping chunk -> ChunkState,
// mirroring the "Spaces share the page-resource maps via a process-wide
// registry" ownership rule of spec.md §3. It also tracks, per space index,
// the minimal chunk_range known to contain every allocated chunk of that
// space, as the invariant in §3 requires.
type ChunkMap struct {
	mu     sync.Mutex
	states map[Chunk]ChunkState
	ranges map[int]*chunkRange
}

type chunkRange struct {
	lo, hi Chunk // [lo, hi], inclusive; valid iff initialized
	init   bool
}

// NewChunkMap creates an empty registry.
func NewChunkMap() *ChunkMap {
	return &ChunkMap{
		states: make(map[Chunk]ChunkState),
		ranges: make(map[int]*chunkRange),
	}
}

// Allocate assigns chunk to spaceIndex. It panics if chunk is already
// allocated to a different space, preserving "at most one space index per
// non-free chunk".
func (m *ChunkMap) Allocate(chunk Chunk, spaceIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[chunk]; ok && !st.Free && st.SpaceIndex != spaceIndex {
		panic(fmt.Sprintf("region: chunk %v already allocated to space %d, cannot allocate to %d", chunk, st.SpaceIndex, spaceIndex))
	}
	m.states[chunk] = ChunkState{Free: false, SpaceIndex: spaceIndex}

	r, ok := m.ranges[spaceIndex]
	if !ok {
		r = &chunkRange{}
		m.ranges[spaceIndex] = r
	}
	if !r.init {
		r.lo, r.hi, r.init = chunk, chunk, true
		return
	}
	if chunk < r.lo {
		r.lo = chunk
	}
	if chunk > r.hi {
		r.hi = chunk
	}
}

// Free releases chunk back to the Free state. The owning space's chunk
// range is intentionally not shrunk (it remains a conservative superset),
// matching "the covered chunk_range always contains every allocated chunk".
func (m *ChunkMap) Free(chunk Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[chunk] = FreeChunkState
}

// Get returns the current state of chunk (FreeChunkState if never seen).
func (m *ChunkMap) Get(chunk Chunk) ChunkState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[chunk]; ok {
		return st
	}
	return FreeChunkState
}

// Range returns the [lo, hi] chunk range known to contain every chunk ever
// allocated to spaceIndex. ok is false if the space has never been
// allocated a chunk.
func (m *ChunkMap) Range(spaceIndex int) (lo, hi Chunk, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, found := m.ranges[spaceIndex]
	if !found || !r.init {
		return 0, 0, false
	}
	return r.lo, r.hi, true
}

// AllocatedChunks returns every chunk currently allocated to spaceIndex, by
// scanning its conservative range. This is O(range), matching the
// teacher's own willingness to linear-scan span maps during sweeps.
func (m *ChunkMap) AllocatedChunks(spaceIndex int) []Chunk {
	lo, hi, ok := m.Range(spaceIndex)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Chunk
	for c := lo; c <= hi; c += Chunk(ChunkBytes) {
		if st, found := m.states[c]; found && !st.Free && st.SpaceIndex == spaceIndex {
			out = append(out, c)
		}
	}
	return out
}
