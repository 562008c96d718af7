package gcplan

import "github.com/gopherheap/gcplan/binding"

// HarnessBegin implements spec.md §6's harness_begin(tls): brackets the
// start of a benchmarked region, resetting the collection-attempt streak
// so a warm-up phase's allocation failures don't skew the measured
// region's emergency-escalation decisions.
func (in *Instance) HarnessBegin(tls binding.TLS) {
	in.global.ResetCollectionTrigger()
	// Marking a success makes the next decision restart the streak at 1.
	in.global.RecordAllocationSuccess()
	in.lastExhaustive = false
}

// HarnessEnd implements spec.md §6's harness_end(tls): brackets the end of
// a benchmarked region. There's nothing this core needs to undo — logging
// and metrics already accumulate continuously — so this is a deliberate
// no-op kept as a named hook a binding can still call unconditionally.
func (in *Instance) HarnessEnd(tls binding.TLS) {}
