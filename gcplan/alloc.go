package gcplan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/internal/telemetry"
)

// maxAllocAttempts bounds the collect-and-retry loop a failed allocation
// drives, per spec.md §4.6: a binding that still can't satisfy an
// allocation after this many full collections is genuinely out of memory,
// not merely unlucky about timing with a concurrent mutator.
const maxAllocAttempts = 8

// Alloc implements spec.md §6's alloc(mutator, size, align, offset,
// semantics): the mutator-side fast path is a bump allocation from the
// space semantics routes to; the slow path (that space reporting it has
// no room) drives the stop-the-world collect-and-retry loop before
// escalating to Collection.OutOfMemory.
func (in *Instance) Alloc(mutator *Mutator, size, align, offset uintptr, semantics binding.AllocationSemantics) address.Address {
	bytes := uint64(size)
	if align > 1 {
		// The spaces this core wires bump-allocate in whole pages and
		// don't accept an align/offset pair of their own; padding the
		// request keeps every alignment this core could be asked for
		// representable without threading align/offset through every
		// space's Alloc signature.
		bytes += uint64(align - 1)
	}

	allocFn, ok := in.allocators[semantics]
	if !ok {
		allocFn = in.allocators[binding.Default]
	}

	if addr, ok := allocFn(bytes); ok {
		in.recordAllocation(bytes)
		return addr
	}

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		if err := in.runCollectionCycle(mutator.TLS); err != nil {
			in.col.OutOfMemory(mutator.TLS, binding.AddressSpaceOutOfMemory)
			return address.Address(0)
		}
		if addr, ok := allocFn(bytes); ok {
			in.recordAllocation(bytes)
			return addr
		}
	}

	telemetry.LogAllocationFailure(in.log, bytes, in.global.CurCollectionAttempts(), maxAllocAttempts)
	in.global.OutOfMemory(in.col, mutator.TLS, binding.HeapOutOfMemory)
	return address.Address(0)
}

func (in *Instance) recordAllocation(bytes uint64) {
	in.global.RecordAllocationSuccess()
	in.global.IncreaseAllocationBytesBy(bytes)
	in.metrics.ObserveAllocation(bytes)
}

// PostAlloc implements spec.md §6's post_alloc(mutator, obj, size,
// semantics): the core's one chance to record obj's existence before the
// mutator can publish a reference to it, so the next full-heap scan's
// is_mmtk_object queries find it even if obj is never reached by a root.
func (in *Instance) PostAlloc(mutator *Mutator, obj address.ObjectReference, size uintptr, semantics binding.AllocationSemantics) {
	in.vobits.Set(obj.ToAddress())
}
