package space_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/space"
)

const testHeapBytes = 64 * region.ChunkBytes

// fakeObjectModel copies every object to a fixed size via whatever
// allocator the caller's CopyContext wraps.
type fakeObjectModel struct{}

func (fakeObjectModel) ObjectStartRef(obj address.ObjectReference) address.Address {
	return obj.ToAddress()
}
func (fakeObjectModel) GetCurrentSize(address.ObjectReference) uintptr    { return 32 }
func (fakeObjectModel) GetSizeWhenCopied(address.ObjectReference) uintptr { return 32 }
func (fakeObjectModel) GetAlignWhenCopied(address.ObjectReference) uintptr {
	return 8
}
func (fakeObjectModel) Copy(from address.ObjectReference, semantics binding.CopySemantics, ctx binding.CopyContext) address.ObjectReference {
	return ctx.AllocCopy(32, 8, 0, semantics).ToObjectReference()
}
func (fakeObjectModel) RefToAddress(obj address.ObjectReference) address.Address { return obj.ToAddress() }
func (fakeObjectModel) AddressToRef(addr address.Address) address.ObjectReference {
	return addr.ToObjectReference()
}

// allocator is the sliver of Space every evacuating trace path needs from
// its copy destination.
type allocator interface {
	Alloc(size uint64) (address.Address, bool)
}

// fakeCopyContext routes AllocCopy through a real space's own Alloc, so
// evacuated objects land inside that space's committed chunks exactly as a
// mutator-side allocation would — the ChunkMap and side-metadata range
// stay consistent with what InSpace and the forwarding table expect.
type fakeCopyContext struct{ dest allocator }

func (c *fakeCopyContext) AllocCopy(size, align, offset uintptr, semantics binding.CopySemantics) address.Address {
	addr, ok := c.dest.Alloc(uint64(size))
	if !ok {
		panic("space_test: copy target exhausted")
	}
	return addr
}

func newReservation(t *testing.T) (*space.PageResource, *region.ChunkMap) {
	t.Helper()
	return space.NewPageResource(address.Address(0), testHeapBytes), region.NewChunkMap()
}

func TestCopySpaceTraceObjectRace(t *testing.T) {
	fromPR, chunkMap := newReservation(t)
	toPR := space.NewPageResource(address.Address(testHeapBytes), testHeapBytes)

	from := space.NewCopySpace("from", 1, fromPR, chunkMap, false, binding.CopySemantics(0), testHeapBytes)
	to := space.NewCopySpace("to", 2, toPR, chunkMap, true, binding.CopySemantics(0), testHeapBytes)

	addr, ok := from.Alloc(32)
	require.True(t, ok)
	obj := addr.ToObjectReference()

	require.True(t, from.InSpace(addr))

	om := fakeObjectModel{}
	const n = 16
	var wg sync.WaitGroup
	var copies int32
	var mu sync.Mutex
	results := make([]address.ObjectReference, n)

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			ctx := &fakeCopyContext{dest: to}
			ref, firstVisit := from.TraceObject(obj, om, ctx)
			if firstVisit {
				mu.Lock()
				copies++
				mu.Unlock()
			}
			results[i] = ref
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, copies, "exactly one goroutine must win the forwarding race")
	for _, r := range results[1:] {
		require.Equal(t, results[0], r, "every caller must observe the same forwarded reference")
	}
	require.True(t, to.InSpace(results[0].ToAddress()))
}

func TestCopySpaceReleaseResetsFromspace(t *testing.T) {
	pr, chunkMap := newReservation(t)
	cs := space.NewCopySpace("from", 1, pr, chunkMap, false, binding.CopySemantics(0), testHeapBytes)

	_, ok := cs.Alloc(4096)
	require.True(t, ok)
	require.Greater(t, cs.ReservedPages(), uint64(0))

	cs.Release(true)
	require.EqualValues(t, 0, cs.ReservedPages())
	require.EqualValues(t, 0, cs.CommittedPages())
}

func TestImmortalSpaceMarksButNeverReleases(t *testing.T) {
	pr, chunkMap := newReservation(t)
	is := space.NewImmortalSpace("immortal", 3, pr, chunkMap, testHeapBytes)

	addr, ok := is.Alloc(64)
	require.True(t, ok)
	obj := addr.ToObjectReference()

	_, first := is.TraceObject(obj)
	require.True(t, first)
	_, second := is.TraceObject(obj)
	require.False(t, second, "a second trace in the same cycle must not re-report first visit")

	reserved := is.ReservedPages()
	is.Release(true)
	require.Equal(t, reserved, is.ReservedPages(), "immortal objects are never reclaimed")

	is.Prepare(true)
	_, thirdAfterPrepare := is.TraceObject(obj)
	require.True(t, thirdAfterPrepare, "Prepare must clear mark bits for the next cycle")
}

func TestLargeObjectSpaceSweepsUnmarkedCells(t *testing.T) {
	pr, chunkMap := newReservation(t)
	los := space.NewLargeObjectSpace("los", 4, pr, chunkMap)

	liveAddr, ok := los.Alloc(sys.PageSize)
	require.True(t, ok)
	deadAddr, ok := los.Alloc(sys.PageSize)
	require.True(t, ok)

	liveObj := liveAddr.ToObjectReference()
	deadObj := deadAddr.ToObjectReference()

	committedBefore := los.CommittedPages()
	require.EqualValues(t, 2, committedBefore)

	los.Prepare(true)
	_, marked := los.TraceObject(liveObj)
	require.True(t, marked)

	los.Release(true)
	require.EqualValues(t, 1, los.CommittedPages(), "the unmarked cell's page must be released")

	_, stillThere := los.TraceObject(deadObj)
	require.False(t, stillThere, "a swept cell is no longer tracked")
}

func TestImmixSpaceFastTraceMarksOnce(t *testing.T) {
	pr, chunkMap := newReservation(t)
	ix := space.NewImmixSpace("immix", 5, pr, chunkMap, testHeapBytes)

	addr, ok := ix.Alloc(64)
	require.True(t, ok)
	obj := addr.ToObjectReference()

	om := fakeObjectModel{}
	ctx := &fakeCopyContext{dest: ix}

	_, first := ix.TraceObject(obj, space.TraceKindFast, om, ctx)
	require.True(t, first)
	_, second := ix.TraceObject(obj, space.TraceKindFast, om, ctx)
	require.False(t, second)
}

func TestImmixSpaceDefragDecisionIsIndependentOfHistogram(t *testing.T) {
	require.True(t, space.DecideWhetherToDefrag(true, false, false, false))
	require.True(t, space.DecideWhetherToDefrag(false, false, true, false))
	require.False(t, space.DecideWhetherToDefrag(false, false, false, false))
}

func TestDefragHistogramSpillThresholdPicksMostFragmentedFirst(t *testing.T) {
	h := space.NewDefragHistogram(4)
	h.Record(4, 10) // 10 live lines in blocks with 4 holes
	h.Record(2, 50) // 50 live lines in blocks with 2 holes
	h.Record(0, 5)  // 5 live lines in blocks with 0 holes

	// Only enough to-space room for the most-fragmented bucket; the empty
	// 3-hole bucket also fits, so the smallest qualifying hole count is 3.
	threshold, lines := h.SpillThreshold(10)
	require.Equal(t, 3, threshold)
	require.EqualValues(t, 10, lines)

	// Enough room for the two most-fragmented buckets too; the empty 1-hole
	// bucket also fits, while adding the 0-hole bucket would need 65 lines.
	threshold, lines = h.SpillThreshold(60)
	require.Equal(t, 1, threshold)
	require.EqualValues(t, 60, lines)
}

func TestImmixSpaceApplyDefragDecisionEvacuatesSelectedBlocks(t *testing.T) {
	// Immix evacuates within its own reservation (defrag-set blocks copy
	// into the space's own free blocks), unlike CopySpace's two-space
	// design, so allocation and evacuation share one space throughout.
	pr, chunkMap := newReservation(t)
	ix := space.NewImmixSpace("immix", 6, pr, chunkMap, testHeapBytes)

	addr, ok := ix.Alloc(64)
	require.True(t, ok)
	obj := addr.ToObjectReference()

	om := fakeObjectModel{}
	ctx := &fakeCopyContext{dest: ix}
	_, ok = ix.TraceObject(obj, space.TraceKindFast, om, ctx)
	require.True(t, ok)

	merged := space.NewDefragHistogram(region.LinesPerBlock)
	merged.Record(0, 1)
	threshold, _ := ix.ApplyDefragDecision(merged, 0)
	require.Equal(t, 1, threshold, "zero available to-space lines fit only the empty buckets, so every block with at least one hole is selected")

	evacCtx := &fakeCopyContext{dest: ix}
	newRef, firstVisit := ix.TraceObject(obj, space.TraceKindTransitive, om, evacCtx)
	require.True(t, firstVisit)
	require.NotEqual(t, obj, newRef, "an object in the defrag set must be evacuated under TraceKindTransitive")

	_, again := ix.TraceObject(obj, space.TraceKindTransitive, om, evacCtx)
	require.False(t, again, "re-tracing the forwarded object must not re-report first visit")
}

func TestMarkSweepSpaceFreeListRoundTrip(t *testing.T) {
	pr, chunkMap := newReservation(t)
	ms := space.NewMarkSweepSpace("ms32", 8, pr, chunkMap, testHeapBytes, 32)

	a, ok := ms.Alloc(32)
	require.True(t, ok)
	b, ok := ms.Alloc(32)
	require.True(t, ok)
	require.NotEqual(t, a, b)

	objA := a.ToObjectReference()
	ms.Prepare(true)
	_, marked := ms.TraceObject(objA)
	require.True(t, marked)

	committedBefore := ms.CommittedPages()
	ms.Release(true)
	require.Equal(t, committedBefore, ms.CommittedPages(), "unmarked cells return to the free list, not to the page resource")

	c, ok := ms.Alloc(32)
	require.True(t, ok)
	require.Equal(t, b, c, "the freed cell must be reused before a new block is carved out")
}

func TestMarkCompactSpaceTwoPhaseCompactionPreservesOrderAndContent(t *testing.T) {
	pr, chunkMap := newReservation(t)
	mc := space.NewMarkCompactSpace("mc", 9, pr, chunkMap, testHeapBytes)

	const n = 10
	addrs := make([]address.Address, n)
	content := make(map[address.Address]byte, n)
	for i := 0; i < n; i++ {
		addr, ok := mc.Alloc(64)
		require.True(t, ok)
		addrs[i] = addr
		content[addr] = byte('A' + i)
	}

	// Drop references to every even-indexed object (A, C, E, G, I), as in
	// the scenario this mirrors: mark only the survivors.
	mc.Prepare(true)
	var survivors []address.Address
	for i, addr := range addrs {
		if i%2 == 0 {
			continue
		}
		_, first := mc.TraceObject(addr.ToObjectReference())
		require.True(t, first)
		survivors = append(survivors, addr)
	}

	mc.CalculateForwarding()

	newAddrs := make(map[address.Address]address.Address, len(survivors))
	for _, old := range survivors {
		newAddr, ok := mc.ForwardingOffset(old)
		require.True(t, ok)
		newAddrs[old] = newAddr
	}

	newContent := make(map[address.Address]byte, len(survivors))
	mover := func(old, new address.Address, size uint64) {
		newContent[new] = content[old]
	}
	mc.Compact(mover)
	mc.Release(true)

	// Surviving new addresses must be strictly ascending, in the same
	// relative order their old addresses were in.
	prevOld := survivors[0]
	prevNew := newAddrs[prevOld]
	for _, old := range survivors[1:] {
		newAddr := newAddrs[old]
		require.True(t, prevOld.LT(old))
		require.True(t, prevNew.LT(newAddr), "new addresses must preserve ascending order")
		prevOld, prevNew = old, newAddr
	}

	// Content must have moved along with its object, byte for byte.
	for _, old := range survivors {
		require.Equal(t, content[old], newContent[newAddrs[old]])
	}

	// Dead objects must not have survived the compaction.
	require.Len(t, newAddrs, len(survivors))
}

func TestRegistryDispatchesByDescriptorAndPreparesReleasesAll(t *testing.T) {
	chunkMap := region.NewChunkMap()
	reg := space.NewRegistry()

	imPR := space.NewPageResource(address.Address(0), testHeapBytes)
	losPR := space.NewPageResource(address.Address(testHeapBytes), testHeapBytes)

	immortal := space.NewImmortalSpace("immortal", 10, imPR, chunkMap, testHeapBytes)
	los := space.NewLargeObjectSpace("los", 11, losPR, chunkMap)

	reg.Register(immortal)
	reg.Register(los)

	require.Equal(t, space.Space(immortal), reg.Lookup(10))
	require.Equal(t, space.Space(los), reg.Lookup(11))
	require.Nil(t, reg.Lookup(99))
	require.Len(t, reg.All(), 2)

	require.Panics(t, func() { reg.Register(immortal) }, "re-registering a descriptor must panic")

	addr, ok := los.Alloc(sys.PageSize)
	require.True(t, ok)
	_, marked := los.TraceObject(addr.ToObjectReference())
	require.True(t, marked)

	// A fresh cycle: PrepareAll clears every registered space's mark
	// state, and since nothing retraces the object this time, it's
	// unreachable — ReleaseAll must sweep it.
	reg.PrepareAll(true)
	reg.ReleaseAll(true)
	require.EqualValues(t, 0, los.CommittedPages(), "ReleaseAll must sweep the now-unmarked object")
}

func TestBaseSpaceInSpaceTracksChunkOwnership(t *testing.T) {
	pr, chunkMap := newReservation(t)
	cs := space.NewCopySpace("s", 7, pr, chunkMap, false, binding.CopySemantics(0), testHeapBytes)

	require.False(t, cs.InSpace(address.Address(0)), "nothing allocated yet")
	addr, ok := cs.Alloc(64)
	require.True(t, ok)
	require.True(t, cs.InSpace(addr))
	require.False(t, cs.InSpace(addr.Add(2*region.ChunkBytes)))
}
