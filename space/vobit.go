package space

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/sidemeta"
)

// VOBitUpdateStrategy selects how a space refreshes its valid-object bits
// once a trace completes, per spec.md §9 Open Question 1. Both strategies
// exist as VOBitTable methods (ClearAndReconstruct and
// CopyFromMarkBitsStrategy); no space reads this type, and nothing calls
// either method during a collection cycle.
type VOBitUpdateStrategy int

const (
	// ClearAndReconstruct wipes every VO bit in the swept range and
	// re-sets one bit per object the core's post-trace live-object
	// enumeration reports.
	ClearAndReconstruct VOBitUpdateStrategy = iota
	// CopyFromMarkBits mirrors the mark-bit store directly, valid only
	// when the VO-bit table and the mark-bit store share identical
	// region geometry.
	CopyFromMarkBits
)

// VOBitTable tracks, at objectGranularityLog (16-byte) regions, which addresses are
// exactly the start of a live object, implementing spec.md §7's
// is_mmtk_object(addr) query: Some(ref) iff a live object starts at
// exactly addr, never a false positive for an address outside the heap.
type VOBitTable struct {
	store      *sidemeta.Store
	rangeStart address.Address
	rangeBytes uint64
}

// NewVOBitTable builds a VOBitTable over the data range
// [rangeStart, rangeStart+rangeBytes).
func NewVOBitTable(rangeStart address.Address, rangeBytes uint64) *VOBitTable {
	spec := sidemeta.Spec{Name: "vo-bit", LogNumOfBits: 0, LogBytesInRegion: objectGranularityLog}
	return &VOBitTable{
		store:      sidemeta.NewStore(spec, rangeStart, rangeBytes),
		rangeStart: rangeStart,
		rangeBytes: rangeBytes,
	}
}

// Commit marks the metadata backing [start, start+bytes) as mapped,
// mirroring the chunk-commit call every space already makes for its other
// side-metadata stores.
func (t *VOBitTable) Commit(start address.Address, bytes uint64) { t.store.Commit(start, bytes) }

// Set records that an object starts at exactly objStart.
func (t *VOBitTable) Set(objStart address.Address) { t.store.StoreAtomic(objStart, 1) }

// Clear removes the record that an object starts at objStart.
func (t *VOBitTable) Clear(objStart address.Address) { t.store.StoreAtomic(objStart, 0) }

func (t *VOBitTable) inRange(addr address.Address) bool {
	if addr.LT(t.rangeStart) {
		return false
	}
	return uint64(addr.Sub(t.rangeStart)) < t.rangeBytes
}

// IsMMTkObject answers spec.md §7's is_mmtk_object: an address outside the
// declared range, or one whose region's VO bit is unset, reports false
// rather than panicking — unlike Store's Load/Store path, this is a
// query the core must be able to run against arbitrary (possibly
// conservative-scan-derived) addresses without first proving they're
// mapped. An address that isn't the exact start of a live object but
// falls within the same 16-byte region as one may still
// report true; spec.md §7 permits this (the result must not crash on an
// out-of-heap address, not that every byte within a region is
// disambiguated at sub-region granularity).
func (t *VOBitTable) IsMMTkObject(addr address.Address) (address.ObjectReference, bool) {
	if !t.inRange(addr) {
		return 0, false
	}
	if t.store.LoadAtomic(addr) == 0 {
		return 0, false
	}
	return addr.ToObjectReference(), true
}

// ClearAndReconstruct implements the first of spec.md §9's two VO-bit
// update strategies: wipe every bit in [start, start+bytes) then re-set
// one bit per address in liveObjects, the core's post-trace live-object
// enumeration.
func (t *VOBitTable) ClearAndReconstruct(start address.Address, bytes uint64, liveObjects []address.Address) {
	t.store.Bzero(start, bytes)
	for _, obj := range liveObjects {
		t.store.StoreAtomic(obj, 1)
	}
}

// CopyFromMarkBitsStrategy implements the second strategy: since the
// VO-bit table and a mark-bit store sharing its 16-byte region size have
// identical geometry, the VO-bit table can mirror the mark store wholesale
// instead of walking the live set object by object.
func (t *VOBitTable) CopyFromMarkBitsStrategy(markBits *sidemeta.Store, start address.Address, bytes uint64) {
	t.store.Bcopy(markBits, start, bytes)
}
