package work

// ScheduleFunc is a Plan's schedule_collection program: given the
// scheduler and the MMTK instance, it adds packets into buckets (typically
// just Unconstrained and Prepare; later stages are populated as earlier
// ones execute and discover more work), per spec.md §2: "The coordinator
// runs schedule_collection, which adds packets into buckets."
type ScheduleFunc[MMTK any] func(sched *Scheduler[MMTK], mmtk MMTK)

// Coordinator is the one dedicated goroutine that runs schedule_collection
// on each GC request, then drives the bucket pipeline open stage by stage
// until every bucket drains, per spec.md §4.4.
type Coordinator[MMTK any] struct {
	sched    *Scheduler[MMTK]
	schedule ScheduleFunc[MMTK]

	// EndOfGC, if set, runs on the coordinator after the last stage
	// drains and before mutators resume; it's where a Plan releases
	// spaces, swaps semispaces, etc.
	EndOfGC func(mmtk MMTK)

	requests chan struct{}
	done     chan struct{} // signaled once per completed cycle
}

// NewCoordinator builds a Coordinator bound to sched.
func NewCoordinator[MMTK any](sched *Scheduler[MMTK], schedule ScheduleFunc[MMTK]) *Coordinator[MMTK] {
	return &Coordinator[MMTK]{
		sched:    sched,
		schedule: schedule,
		requests: make(chan struct{}, 1),
		done:     make(chan struct{}, 1),
	}
}

// RequestGC enqueues a GC request. It does not block; a second request
// arriving while one is already pending is coalesced, matching a
// GCRequester's channel semantics (spec.md §4.4: "Waits on a GCRequester
// channel").
func (c *Coordinator[MMTK]) RequestGC() {
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Run is the coordinator's main loop. It blocks until ctx-like shutdown via
// Stop; callers typically run it in its own goroutine (spawn_gc_thread's
// GCThreadContext::Controller, per spec.md §6).
func (c *Coordinator[MMTK]) Run(mmtk MMTK) {
	for range c.requests {
		c.runOneCycle(mmtk)
		select {
		case c.done <- struct{}{}:
		default:
		}
	}
}

// Stop closes the request channel, causing Run to return once any
// in-flight cycle completes.
func (c *Coordinator[MMTK]) Stop() { close(c.requests) }

// WaitDone blocks until one GC cycle completes. Used by
// handle_user_collection_request's synchronous contract (spec.md §6).
func (c *Coordinator[MMTK]) WaitDone() { <-c.done }

// runOneCycle runs schedule_collection, activates the first stage, and
// then repeatedly waits for AllParked before opening the next stage,
// implementing find_more_work's "scan buckets for sentinels, open the next
// stage, or run EndOfGC" loop.
func (c *Coordinator[MMTK]) runOneCycle(mmtk MMTK) {
	c.sched.currentStage.Store(int32(Unconstrained))
	c.schedule(c.sched, mmtk)
	c.sched.bucket(Unconstrained).Activate()

	for {
		select {
		case p := <-c.sched.coordPacketCh:
			// Work(packet): run on the coordinator thread itself,
			// per spec.md §4.4's two coordinator event kinds.
			p.DoWork(nil, mmtk)
			continue
		case <-c.sched.allParkedCh:
		}

		stage := c.sched.CurrentStage()
		if !c.sched.bucket(stage).IsDrained() {
			// Spurious AllParked (e.g. a worker parked and unparked
			// again while the signal was in flight): nothing to do,
			// wait for the next one.
			continue
		}

		next, ok := stage.next()
		if !ok {
			break // Final drained: cycle complete
		}
		c.sched.bucket(stage).Deactivate()
		c.sched.currentStage.Store(int32(next))
		c.sched.bucket(next).Activate()
	}

	if c.EndOfGC != nil {
		c.EndOfGC(mmtk)
	}
}
