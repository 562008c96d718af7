// Package global implements spec.md §4.6: the process-wide GlobalState
// singleton (initialization, stacks-scanning progress, emergency/user-
// triggered flags, allocation byte counter, per-cycle collection-attempt
// counter) and the pluggable GC-trigger policies that consult it.
//
// Grounded on runtime2.go's schedt struct: a handful of atomically-updated
// counters and flags plus one mutex-protected enum, mutated under
// documented orderings rather than one coarse lock.
package global

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// GcStatus is the mutex-protected phase enum, mirroring gc_status in
// global_state.rs.
type GcStatus int

const (
	NotInGC GcStatus = iota
	GcPrepare
	GcProper
)

// ErrConcurrentGCNotSupported is returned by DecideCollectionKind if it
// observes a last-internal-triggered collection: this core has no
// concurrent-GC plan variant, so that state should be unreachable,
// mirroring global_state.rs's is_internal_triggered_collection assertion.
var ErrConcurrentGCNotSupported = errors.New("global: internally-triggered collection observed, but no concurrent GC plan is wired")

// GlobalState is the process-wide singleton spec.md §4.6 names. It is
// always used through a pointer shared across the coordinator, workers,
// and every bound mutator, never copied.
type GlobalState struct {
	initialized           atomic.Bool
	triggerGCWhenHeapFull atomic.Bool

	statusMu sync.Mutex
	status   GcStatus

	emergencyCollection             atomic.Bool
	userTriggeredCollection         atomic.Bool
	internalTriggeredCollection     atomic.Bool
	lastInternalTriggeredCollection atomic.Bool

	allocationSuccess atomic.Bool

	maxCollectionAttempts atomic.Uint64
	curCollectionAttempts atomic.Uint64

	scannedStacks  atomic.Uint64
	stacksPrepared atomic.Bool

	allocationBytes atomic.Uint64
}

// New creates a GlobalState with triggerGCWhenHeapFull defaulted to true,
// matching global_state.rs's Default impl.
func New() *GlobalState {
	s := &GlobalState{}
	s.triggerGCWhenHeapFull.Store(true)
	return s
}

// IsInitialized reports whether InitializeCollection has run.
func (s *GlobalState) IsInitialized() bool { return s.initialized.Load() }

// SetInitialized marks collection as initialized; called once by
// gcplan.InitializeCollection.
func (s *GlobalState) SetInitialized() { s.initialized.Store(true) }

// ShouldTriggerGCWhenHeapIsFull reports whether the slow allocation path
// should consult the trigger policy at all — bindings may disable this
// temporarily without undoing the policy itself.
func (s *GlobalState) ShouldTriggerGCWhenHeapIsFull() bool {
	return s.triggerGCWhenHeapFull.Load()
}

// SetTriggerGCWhenHeapIsFull toggles whether a full heap triggers a cycle.
func (s *GlobalState) SetTriggerGCWhenHeapIsFull(v bool) {
	s.triggerGCWhenHeapFull.Store(v)
}

// Status returns the current GC phase.
func (s *GlobalState) Status() GcStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// SetStatus transitions the GC phase.
func (s *GlobalState) SetStatus(status GcStatus) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
}

// IsEmergencyCollection reports whether the current cycle was escalated to
// an emergency (exhaustive, non-growing) collection.
func (s *GlobalState) IsEmergencyCollection() bool { return s.emergencyCollection.Load() }

// IsUserTriggeredCollection reports whether application code requested
// this cycle directly.
func (s *GlobalState) IsUserTriggeredCollection() bool { return s.userTriggeredCollection.Load() }

// TriggerUserCollection marks the next cycle as user-triggered, for
// gcplan.HandleUserCollectionRequest.
func (s *GlobalState) TriggerUserCollection() { s.userTriggeredCollection.Store(true) }

// TriggerInternalCollection marks the next cycle as internally triggered
// (e.g. a plan deciding it needs a nursery collection mid-mutation).
func (s *GlobalState) TriggerInternalCollection() { s.internalTriggeredCollection.Store(true) }

// RecordAllocationSuccess marks that some allocation has succeeded since
// the last emergency collection, resetting determine_collection_attempts's
// failure streak.
func (s *GlobalState) RecordAllocationSuccess() { s.allocationSuccess.Store(true) }

// DecideCollectionKind implements set_collection_kind: it computes this
// cycle's attempt count, decides whether to escalate to an emergency
// collection, and returns that decision. lastCollectionWasExhaustive and
// heapCanGrow are supplied by the plan and the trigger policy
// respectively, per spec.md §4.6.
func (s *GlobalState) DecideCollectionKind(lastCollectionWasExhaustive, heapCanGrow bool) (bool, error) {
	if s.lastInternalTriggeredCollection.Load() {
		return false, ErrConcurrentGCNotSupported
	}

	var attempts uint64
	if s.userTriggeredCollection.Load() {
		attempts = 1
	} else {
		attempts = s.determineCollectionAttempts()
	}
	s.curCollectionAttempts.Store(attempts)

	emergency := !s.internalTriggeredCollection.Load() &&
		lastCollectionWasExhaustive &&
		attempts > 1 &&
		!heapCanGrow
	s.emergencyCollection.Store(emergency)
	return emergency, nil
}

// determineCollectionAttempts implements determine_collection_attempts:
// a failed-to-free cycle bumps the running maximum; a successful one
// resets the streak to 1.
func (s *GlobalState) determineCollectionAttempts() uint64 {
	if !s.allocationSuccess.Load() {
		return s.maxCollectionAttempts.Add(1)
	}
	s.allocationSuccess.Store(false)
	s.maxCollectionAttempts.Store(1)
	return 1
}

// CurCollectionAttempts returns the attempt count DecideCollectionKind
// most recently computed.
func (s *GlobalState) CurCollectionAttempts() uint64 { return s.curCollectionAttempts.Load() }

// ResetCollectionTrigger implements reset_collection_trigger: carries the
// internally-triggered flag forward as "last cycle's" value and clears
// both triggered flags ahead of the next cycle.
func (s *GlobalState) ResetCollectionTrigger() {
	s.lastInternalTriggeredCollection.Store(s.internalTriggeredCollection.Load())
	s.internalTriggeredCollection.Store(false)
	s.userTriggeredCollection.Store(false)
}

// StacksPrepared reports whether every mutator's stack has been scanned
// this cycle.
func (s *GlobalState) StacksPrepared() bool { return s.stacksPrepared.Load() }

// PrepareForStackScanning resets the per-cycle stack-scan counters ahead
// of a new root-scanning pass.
func (s *GlobalState) PrepareForStackScanning() {
	s.scannedStacks.Store(0)
	s.stacksPrepared.Store(false)
}

// InformStackScanned records that one more mutator stack has been
// scanned, returning true exactly once — for the caller that observes the
// nMutators'th scan — mirroring inform_stack_scanned's single-winner
// contract.
func (s *GlobalState) InformStackScanned(nMutators uint64) bool {
	old := s.scannedStacks.Add(1) - 1
	done := old+1 == nMutators
	if done {
		s.stacksPrepared.Store(true)
	}
	return done
}

// AllocationBytes returns the running allocation-byte counter used to
// drive stress-test GC triggers.
func (s *GlobalState) AllocationBytes() uint64 { return s.allocationBytes.Load() }

// IncreaseAllocationBytesBy adds size to the allocation-byte counter and
// returns the counter's new value.
func (s *GlobalState) IncreaseAllocationBytesBy(size uint64) uint64 {
	return s.allocationBytes.Add(size)
}
