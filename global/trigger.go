package global

import "github.com/gopherheap/gcplan/binding"

// GCTriggerPolicy decides when the heap is full enough to require a
// collection and whether it may instead grow, per spec.md §4.6's
// "pluggable; see GCTriggerPolicy."
type GCTriggerPolicy interface {
	// IsHeapFull reports whether reservedPages has reached the point a
	// collection must run before any further allocation.
	IsHeapFull(reservedPages uint64) bool

	// CanHeapGrow reports whether the heap may expand instead of
	// collecting, consulted by GlobalState.DecideCollectionKind.
	CanHeapGrow(reservedPages uint64) bool
}

// FixedHeapSize triggers a collection once reservedPages reaches
// totalPages, and never grows the heap beyond that, per spec.md §4.6:
// "GC when reserved_pages >= total_pages."
type FixedHeapSize struct {
	totalPages uint64
}

// NewFixedHeapSize builds a FixedHeapSize policy over a heap of
// totalPages pages.
func NewFixedHeapSize(totalPages uint64) *FixedHeapSize {
	return &FixedHeapSize{totalPages: totalPages}
}

func (p *FixedHeapSize) IsHeapFull(reservedPages uint64) bool {
	return reservedPages >= p.totalPages
}

func (p *FixedHeapSize) CanHeapGrow(uint64) bool { return false }

// Delegated forwards every decision to a binding-provided implementation,
// per spec.md §4.6's "forward decisions to a binding-provided
// implementation, receiving on_gc_start/on_gc_end/is_gc_required/
// is_heap_full/can_heap_size_grow."
type Delegated struct {
	vm binding.DelegatedHeapGrowth
}

// NewDelegated wraps a binding-supplied DelegatedHeapGrowth implementation.
func NewDelegated(vm binding.DelegatedHeapGrowth) *Delegated {
	return &Delegated{vm: vm}
}

func (d *Delegated) IsHeapFull(reservedPages uint64) bool {
	return d.vm.IsHeapFull(reservedPages)
}

func (d *Delegated) CanHeapGrow(reservedPages uint64) bool {
	return d.vm.CanHeapSizeGrow(reservedPages)
}

// OnGCStart and OnGCEnd notify the delegated binding of collection
// boundaries, per spec.md §4.6; the coordinator calls these around each
// cycle when the active trigger is Delegated.
func (d *Delegated) OnGCStart() { d.vm.OnGCStart() }
func (d *Delegated) OnGCEnd()   { d.vm.OnGCEnd() }

// IsGCRequired asks the binding directly whether a collection is needed
// right now, independent of the reserved/total page comparison
// FixedHeapSize uses — e.g. a binding-side stress-test policy.
func (d *Delegated) IsGCRequired() bool { return d.vm.IsGCRequired() }
