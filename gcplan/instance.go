// Package gcplan is the core-provided operation set of spec.md §6: the
// handful of entry points a host VM binding calls to initialize the
// collector, bind/unbind mutators, allocate, and drive collection, built
// on top of the plan/, work/, space/, and global/ packages.
package gcplan

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/global"
	"github.com/gopherheap/gcplan/internal/options"
	"github.com/gopherheap/gcplan/internal/telemetry"
	"github.com/gopherheap/gcplan/plan"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// Instance is the runtime handle mmtk_init returns in spec.md §6 — the
// MMTK type parameter every plan/work/queue generic is instantiated with
// in this binding, self-referentially, since the scheduler threads the
// instance itself through every packet it runs.
type Instance struct {
	opts    options.Options
	global  *global.GlobalState
	trigger global.GCTriggerPolicy
	metrics *global.Metrics
	log     telemetry.Logger

	plan  plan.Plan[*Instance]
	sched *work.Scheduler[*Instance]
	coord *work.Coordinator[*Instance]

	col binding.Collection
	ap  binding.ActivePlan

	// lastExhaustive feeds GlobalState.DecideCollectionKind's emergency
	// escalation check. Every plan this core wires traces its whole
	// reachable set each cycle except GenCopy's nursery-only cycles;
	// runCollectionCycle updates it after each cycle completes.
	lastExhaustive bool

	vobits *space.VOBitTable

	allocMu    sync.Mutex
	allocators map[binding.AllocationSemantics]allocFunc

	mutatorMu sync.Mutex
	mutators  map[binding.TLS]*Mutator
}

type allocFunc func(size uint64) (address.Address, bool)

// Mutator is the handle bind_mutator returns, one per host thread
// permitted to allocate, per spec.md §6.
type Mutator struct {
	ID       uuid.UUID
	TLS      binding.TLS
	instance *Instance
}

// Global exposes the instance's GlobalState, e.g. so a binding wiring
// DelegatedHeapGrowth can call ResetCollectionTrigger directly.
func (in *Instance) Global() *global.GlobalState { return in.global }
