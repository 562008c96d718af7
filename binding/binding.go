// Package binding declares the capability set a host VM must implement for
// gcplan to manage its heap, per spec.md §6. These are contracts, not
// teacher-derived code: the teacher (a Go runtime) IS the VM, so it has no
// separable binding layer of its own — this package is the seam spec.md
// asks an embeddable collector to expose. Every method takes the thread-
// local-storage handle the teacher's own runtime passes around as `*g`/`*m`,
// here just an opaque comparable token the binding defines.
package binding

import "github.com/gopherheap/gcplan/address"

// TLS is an opaque per-thread handle the binding uses to identify the
// calling mutator or worker thread, standing in for the teacher's `*g`.
type TLS interface{}

// AllocationSemantics tags the kind of allocation being requested, routing
// the mutator to the plan-specific allocator, per spec.md §6.
type AllocationSemantics int

const (
	Default AllocationSemantics = iota
	Immortal
	Los
	Code
	ReadOnly
	NonMoving
)

// CopySemantics identifies which to-space copy policy a copying trace
// should use (distinct spaces may each get their own copy semantics id).
type CopySemantics int

// OutOfMemoryKind distinguishes heap exhaustion from address-space
// exhaustion, per spec.md §7's error taxonomy.
type OutOfMemoryKind int

const (
	HeapOutOfMemory OutOfMemoryKind = iota
	AddressSpaceOutOfMemory
)

// SlotVisitor is the capability the core hands to Scanning.ScanObject so it
// can report each outgoing edge discovered while scanning one object. The
// queue package's ObjectsClosure implements it.
type SlotVisitor interface {
	VisitSlot(slot address.Address)
}

// ObjectModel exposes everything the core needs to know about the host's
// object layout: reference-point arithmetic, sizing, and copying, per
// spec.md §6.
type ObjectModel interface {
	// ObjectStartRef returns the address at which obj's storage begins,
	// which may differ from obj itself by a binding-chosen offset.
	ObjectStartRef(obj address.ObjectReference) address.Address

	// GetCurrentSize returns obj's size in bytes as currently laid out.
	GetCurrentSize(obj address.ObjectReference) uintptr

	// GetSizeWhenCopied returns the size obj will occupy once copied,
	// which may differ from GetCurrentSize (e.g. header compaction).
	GetSizeWhenCopied(obj address.ObjectReference) uintptr

	// GetAlignWhenCopied returns the alignment, in bytes, required of
	// obj's copied location.
	GetAlignWhenCopied(obj address.ObjectReference) uintptr

	// Copy copies obj to a new location chosen by the binding (typically
	// bump-allocated from the copy context) and returns the new
	// reference. The core has already reserved GetSizeWhenCopied bytes.
	Copy(from address.ObjectReference, semantics CopySemantics, ctx CopyContext) address.ObjectReference

	// RefToAddress and AddressToRef convert between an ObjectReference
	// and the raw Address it designates, honoring the binding's
	// reference-point offset.
	RefToAddress(obj address.ObjectReference) address.Address
	AddressToRef(addr address.Address) address.ObjectReference
}

// CopyContext is a per-worker, thread-local allocation context a copying
// trace uses to bump-allocate to-space storage without synchronization
// during tracing, per spec.md §5's "per-worker copy contexts are
// thread-local and may be mutated without synchronization."
type CopyContext interface {
	AllocCopy(size, align, offset uintptr, semantics CopySemantics) address.Address
}

// Scanning exposes root discovery and per-object edge enumeration.
type Scanning interface {
	// ScanObject invokes visitor.VisitSlot once per outgoing edge of obj.
	ScanObject(tls TLS, obj address.ObjectReference, visitor SlotVisitor)

	// ScanRootsInAllMutatorThreads discovers every mutator-thread root
	// edge and reports each to visitor.
	ScanRootsInAllMutatorThreads(visitor SlotVisitor)

	// ScanVMSpecificRoots discovers VM-internal roots (globals, JIT code
	// caches, etc.) not associated with any single mutator thread.
	ScanVMSpecificRoots(visitor SlotVisitor)

	// PrepareForRootsReScanning resets any state ScanRootsInAllMutatorThreads
	// accumulates between an initial scan and a later re-scan.
	PrepareForRootsReScanning()

	// SupportsReturnBarrier reports whether the binding can install a
	// return barrier (used by some concurrent-marking plan variants).
	SupportsReturnBarrier() bool
}

// GCThreadKind distinguishes the coordinator thread from a worker thread in
// Collection.SpawnGCThread.
type GCThreadKind int

const (
	GCThreadController GCThreadKind = iota
	GCThreadWorker
)

// Collection exposes mutator suspension/resumption and the binding's
// thread-spawning and OOM-reporting facilities.
type Collection interface {
	// StopAllMutators suspends every mutator thread, then invokes
	// closure once each mutator's roots are ready for scanning (e.g.
	// after a safepoint poll catches every thread at a GC-safe PC).
	StopAllMutators(tls TLS, closure func(mutatorTLS TLS))

	// ResumeMutators resumes every mutator thread suspended by
	// StopAllMutators.
	ResumeMutators(tls TLS)

	// BlockForGC parks the calling mutator thread until the in-flight
	// collection completes, for mutators that must rendezvous on a
	// trigger rather than continuing past the allocation slow path.
	BlockForGC(tls TLS)

	// SpawnGCThread asks the binding to spawn an OS thread running the
	// given GC thread kind; run is the entry point the spawned thread
	// must call immediately.
	SpawnGCThread(tls TLS, kind GCThreadKind, run func())

	// OutOfMemory reports a fatal or recoverable OOM condition to the
	// binding, which decides whether to throw a VM-level exception or
	// abort the process.
	OutOfMemory(tls TLS, kind OutOfMemoryKind)
}

// DelegatedHeapGrowth is the capability a binding implements to take over
// the heap-full/heap-growth decision from the core's own FixedHeapSize
// policy, per spec.md §4.6's Delegated trigger policy: "forward decisions
// to a binding-provided implementation, receiving on_gc_start/on_gc_end/
// is_gc_required/is_heap_full/can_heap_size_grow."
type DelegatedHeapGrowth interface {
	// OnGCStart notifies the binding that a collection cycle is beginning.
	OnGCStart()

	// OnGCEnd notifies the binding that a collection cycle has finished.
	OnGCEnd()

	// IsGCRequired reports whether the binding wants a collection right
	// now, independent of reservedPages.
	IsGCRequired() bool

	// IsHeapFull reports whether reservedPages should be treated as a
	// full heap for trigger purposes.
	IsHeapFull(reservedPages uint64) bool

	// CanHeapSizeGrow reports whether the binding will allow the heap to
	// grow instead of forcing a collection.
	CanHeapSizeGrow(reservedPages uint64) bool
}

// Mutator is the opaque per-mutator-thread handle ActivePlan iterates.
type Mutator interface{}

// ActivePlan lets the core enumerate live mutators and resolve the mutator
// owning a given TLS handle.
type ActivePlan interface {
	// Mutators returns every currently bound mutator.
	Mutators() []Mutator

	// MutatorOf resolves the Mutator bound to tls, or nil if tls does
	// not currently own a bound mutator.
	MutatorOf(tls TLS) Mutator
}
