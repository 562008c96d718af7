package gcplan

import (
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/global"
	"github.com/gopherheap/gcplan/internal/options"
	"github.com/gopherheap/gcplan/internal/telemetry"
	"github.com/gopherheap/gcplan/work"
)

// InitializeCollection implements spec.md §6's initialize_collection(tls):
// the binding calls this once, after Init, to spawn the controller thread
// and the scheduler's worker pool. RequestGC/WaitDone (via
// HandleUserCollectionRequest or Alloc's slow path) are unusable before
// this runs. Idempotent, since two mutator threads can race discovering
// the first allocation.
func (in *Instance) InitializeCollection(tls binding.TLS) {
	if in.global.IsInitialized() {
		return
	}
	in.sched = work.NewScheduler[*Instance](in.opts.NumWorkers)
	in.coord = newCoordinator(in.sched)
	in.sched.Start(in)
	in.col.SpawnGCThread(tls, binding.GCThreadController, func() { in.coord.Run(in) })
	in.global.SetInitialized()
}

// newCoordinator builds a Coordinator bound to sched, wiring this
// instance's schedule-collection dispatch and end-of-cycle logging. Both
// InitializeCollection and AfterFork build a fresh one, since
// PrepareToFork's drain leaves the previous Coordinator's request channel
// closed.
func newCoordinator(sched *work.Scheduler[*Instance]) *work.Coordinator[*Instance] {
	coord := work.NewCoordinator[*Instance](sched, func(sched *work.Scheduler[*Instance], mmtk *Instance) {
		mmtk.plan.ScheduleCollection(sched, mmtk)
	})
	coord.EndOfGC = func(mmtk *Instance) { mmtk.logCycleComplete() }
	return coord
}

// HandleUserCollectionRequest implements spec.md §6's
// handle_user_collection_request(tls): application code (a binding's
// System.gc() equivalent) asked for a collection directly. It blocks
// until that cycle completes.
func (in *Instance) HandleUserCollectionRequest(tls binding.TLS) {
	in.global.TriggerUserCollection()
	if err := in.runCollectionCycle(tls); err != nil {
		in.log.Err().Err(err).Log("user-requested collection could not run")
	}
}

// runCollectionCycle is the StopAllMutators/RequestGC/WaitDone/
// ResumeMutators sequence both HandleUserCollectionRequest and Alloc's
// slow path drive, per spec.md §4.6.
func (in *Instance) runCollectionCycle(tls binding.TLS) error {
	reserved := in.plan.ReservedPages()
	emergency, err := in.global.DecideCollectionKind(in.lastExhaustive, in.trigger.CanHeapGrow(reserved))
	if err != nil {
		return err
	}
	in.metrics.Observe(emergency)
	if d, ok := in.trigger.(*global.Delegated); ok {
		d.OnGCStart()
	}

	in.global.SetStatus(global.GcPrepare)
	in.global.PrepareForStackScanning()
	in.col.StopAllMutators(tls, func(mutatorTLS binding.TLS) {
		in.global.InformStackScanned(uint64(in.mutatorCount()))
	})

	in.global.SetStatus(global.GcProper)
	in.coord.RequestGC()
	in.coord.WaitDone()
	in.global.SetStatus(global.NotInGC)

	in.col.ResumeMutators(tls)
	if d, ok := in.trigger.(*global.Delegated); ok {
		d.OnGCEnd()
	}

	// Every plan this core wires is single-generation except GenCopy,
	// whose own ScheduleCollection decides nursery-only vs. full-heap
	// internally; a nursery-only cycle can't be exhaustive, so GenCopy
	// is conservatively treated as non-exhaustive here rather than
	// exposing fullHeap-ness through the Plan interface for this one
	// caller.
	in.lastExhaustive = in.opts.Plan != options.PlanGenCopy
	in.global.ResetCollectionTrigger()
	return nil
}

// logCycleComplete runs on the coordinator goroutine once a cycle's last
// bucket drains, logging the attempt/emergency counters the collection
// that just ran was decided with.
func (in *Instance) logCycleComplete() {
	telemetry.LogGCCycle(in.log, telemetry.GCCycleFields{
		Kind:       string(in.opts.Plan),
		Attempt:    in.global.CurCollectionAttempts(),
		Emergency:  in.global.IsEmergencyCollection(),
		FullHeap:   in.lastExhaustive,
	})
}
