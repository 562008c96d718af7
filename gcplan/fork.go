package gcplan

import "github.com/gopherheap/gcplan/binding"

// PrepareToFork implements spec.md §6's prepare_to_fork(): drains every GC
// worker (and the controller's in-flight cycle, if any) so a host that
// forks the process doesn't duplicate a goroutine mid-collection.
func (in *Instance) PrepareToFork() {
	if in.sched == nil {
		return
	}
	in.coord.Stop()
	in.sched.PrepareToFork()
}

// AfterFork implements spec.md §6's after_fork(tls, num_workers): the
// child process (or the parent, once it has decided to keep collecting)
// re-spawns the controller and worker pool PrepareToFork drained.
func (in *Instance) AfterFork(tls binding.TLS, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = in.opts.NumWorkers
	}
	in.sched.AfterFork(in, numWorkers)
	in.coord = newCoordinator(in.sched)
	in.col.SpawnGCThread(tls, binding.GCThreadController, func() { in.coord.Run(in) })
}
