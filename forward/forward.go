// Package forward implements the per-object forwarding protocol of
// spec.md §4.3: a two-bit atomic state machine (NotTriggered /
// BeingForwarded / Forwarded) plus a forwarding-pointer slot, with the CAS
// race resolution between concurrent tracers that spec.md §8's scenario 3
// tests for.
//
// The state machine is backed by a sidemeta.Store (the
// LOCAL_FORWARDING_BITS_SPEC capability), grounded on the teacher's
// lfstack.go CAS-loop idiom: push/pop there settle a race with one
// compare-and-swap the same way TryForward here settles the
// NotTriggered->BeingForwarded transition.
package forward

import (
	"runtime"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/sidemeta"
)

// State is one of the three forwarding states spec.md §3 defines.
type State uint64

const (
	NotTriggered  State = 0b00
	BeingForwarded State = 0b10
	Forwarded     State = 0b11
)

// BitsSpec is the canonical 2-bit side-metadata spec for forwarding state,
// LOCAL_FORWARDING_BITS_SPEC in binding terms (spec.md §6). Each call
// returns a new value; every copying space builds its own Store from it.
func BitsSpec(logBytesInRegion uint) sidemeta.Spec {
	return sidemeta.Spec{Name: "forwarding-bits", LogNumOfBits: 1, LogBytesInRegion: logBytesInRegion}
}

// PointerSpec is the companion slot for the forwarding pointer itself,
// LOCAL_FORWARDING_POINTER_SPEC. It's word-sized (64 bits) regardless of
// platform pointer width for simplicity; real pointer values fit.
func PointerSpec(logBytesInRegion uint) sidemeta.Spec {
	return sidemeta.Spec{Name: "forwarding-pointer", LogNumOfBits: 6, LogBytesInRegion: logBytesInRegion}
}

// Table resolves forwarding races for a set of objects, storing both the
// state bits and the forwarding pointer in side metadata. Spec.md §4.3
// allows header-embedded storage as an alternative; Table only implements
// the side-metadata placement, which is sufficient to satisfy the binding
// contract in §6 (ObjectModel's spec is either-or, and the core is
// agnostic about which a given build chose).
type Table struct {
	bits    *sidemeta.Store
	pointer *sidemeta.Store
}

// NewTable builds a Table over pre-committed bits/pointer stores.
func NewTable(bits, pointer *sidemeta.Store) *Table {
	return &Table{bits: bits, pointer: pointer}
}

// StateOf returns the current forwarding state of obj.
func (t *Table) StateOf(obj address.ObjectReference) State {
	return State(t.bits.LoadAtomic(obj.ToAddress()))
}

// TryForward attempts the NotTriggered -> BeingForwarded transition for
// obj, implementing step 2 of spec.md §4.2's CopySpace.trace_object
// protocol. won is true iff the caller is the winner and must now copy the
// object and call Publish; if won is false, the caller must call
// SpinWaitForward to read the winner's result instead.
func (t *Table) TryForward(obj address.ObjectReference) (won bool) {
	return t.bits.CompareAndSwap(obj.ToAddress(), uint64(NotTriggered), uint64(BeingForwarded))
}

// Publish atomically records newRef as obj's forwarding pointer and
// transitions obj to Forwarded, implementing the winner's half of step 3.
// Readers that observe the Forwarded state via StateOf are guaranteed, by
// the happens-before ordering of the two SeqCst stores below, to then read
// this same newRef from Pointer.
func (t *Table) Publish(obj address.ObjectReference, newRef address.ObjectReference) {
	t.pointer.StoreAtomic(obj.ToAddress(), uint64(newRef))
	t.bits.StoreAtomic(obj.ToAddress(), uint64(Forwarded))
}

// Revert transitions a BeingForwarded object back to NotTriggered, the
// revert path of spec.md §4.3 for a winner that chooses not to copy (e.g.
// the binding rejected the move). The caller must be the same goroutine
// that won TryForward for obj.
func (t *Table) Revert(obj address.ObjectReference) {
	if !t.bits.CompareAndSwap(obj.ToAddress(), uint64(BeingForwarded), uint64(NotTriggered)) {
		panic("forward: Revert called without holding BeingForwarded")
	}
}

// Pointer reads obj's forwarding pointer. Only meaningful once StateOf
// returns Forwarded; callers needing the race-safe read-after-publish
// sequence should use SpinWaitForward instead of calling this directly from
// the loser side.
func (t *Table) Pointer(obj address.ObjectReference) address.ObjectReference {
	return address.ObjectReference(t.pointer.LoadAtomic(obj.ToAddress()))
}

// SpinWaitForward is the loser's half of spec.md §4.2 step 4: spin-read the
// forwarding bits until the winner reaches a final state (Forwarded or,
// after a Revert, NotTriggered), then return the appropriate result.
// forwarded is false if the winner reverted; callers must then retry
// tracing obj themselves (typically by calling TryForward again).
func (t *Table) SpinWaitForward(obj address.ObjectReference) (ref address.ObjectReference, forwarded bool) {
	for {
		switch t.StateOf(obj) {
		case Forwarded:
			return t.Pointer(obj), true
		case NotTriggered:
			return address.ZeroObjectReference, false
		default: // BeingForwarded: still racing, yield and retry
			runtime.Gosched()
		}
	}
}
