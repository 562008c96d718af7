package work

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scheduler owns the fixed ordered pipeline of buckets, the worker pool,
// and the shared monitor condvar workers park on, per spec.md §4.4.
type Scheduler[MMTK any] struct {
	buckets [NumStages]*Bucket[MMTK]

	mu            sync.Mutex
	monitor       *sync.Cond
	currentStage  atomic.Int32
	workers       []*Worker[MMTK]
	numParked     int
	shuttingDown  bool
	allParkedCh   chan struct{} // non-blocking notify to the coordinator
	coordPacketCh chan Packet[MMTK]
	group         *errgroup.Group
}

// NewScheduler creates a Scheduler with numWorkers worker slots. Workers
// are spawned by Start, not by the constructor, mirroring
// initialize_collection's separation from mmtk_init in spec.md §6.
func NewScheduler[MMTK any](numWorkers int) *Scheduler[MMTK] {
	s := &Scheduler[MMTK]{
		allParkedCh:   make(chan struct{}, 1),
		coordPacketCh: make(chan Packet[MMTK], 64),
	}
	s.monitor = sync.NewCond(&s.mu)
	for st := 0; st < NumStages; st++ {
		s.buckets[st] = NewBucket[MMTK](&s.mu, s.monitor)
	}
	s.workers = make([]*Worker[MMTK], numWorkers)
	for i := range s.workers {
		s.workers[i] = newWorker[MMTK](i, s)
	}
	return s
}

// NumWorkers returns the configured worker-pool size.
func (s *Scheduler[MMTK]) NumWorkers() int { return len(s.workers) }

// bucket returns the bucket for stage.
func (s *Scheduler[MMTK]) bucket(stage Stage) *Bucket[MMTK] { return s.buckets[stage] }

// Bucket exposes a stage's bucket for Plan.ScheduleCollection programs to
// Add packets to directly (e.g. before any worker has started draining).
func (s *Scheduler[MMTK]) Bucket(stage Stage) *Bucket[MMTK] { return s.buckets[stage] }

// CurrentStage returns the stage presently open for draining.
func (s *Scheduler[MMTK]) CurrentStage() Stage { return Stage(s.currentStage.Load()) }

// Start launches numWorkers goroutines running Worker.run(mmtk), the
// core-provided spawn_gc_thread(GCThreadContext::Worker) operation of
// spec.md §6. It does not block.
//
// Worker lifetimes are tracked with an errgroup.Group rather than a bare
// sync.WaitGroup: run never returns an error today, but the group is the
// same primitive a worker pool of this shape would use to surface a panic
// recovered inside one worker's loop as a single combined error from
// PrepareToFork, instead of silently losing it.
func (s *Scheduler[MMTK]) Start(mmtk MMTK) {
	s.group = new(errgroup.Group)
	for _, w := range s.workers {
		w := w
		s.group.Go(func() error {
			w.run(mmtk)
			return nil
		})
	}
}

// PrepareToFork deactivates every bucket and waits for all worker
// goroutines to exit their run loop, per spec.md §4.4's "the only way the
// scheduler stops": "forking requires draining all workers via
// prepare_to_fork (all buckets deactivated, all workers exit their loop)".
func (s *Scheduler[MMTK]) PrepareToFork() {
	for st := 0; st < NumStages; st++ {
		s.buckets[st].Deactivate()
	}
	s.shutdown()
	if s.group != nil {
		_ = s.group.Wait()
	}
}

// AfterFork re-spawns numWorkers fresh workers and resets all bucket and
// stage state, then starts them running against mmtk, per spec.md §6's
// prepare_to_fork/after_fork pair.
func (s *Scheduler[MMTK]) AfterFork(mmtk MMTK, numWorkers int) {
	s.revive(numWorkers)
	s.Start(mmtk)
}

// pollCurrentStage polls the active bucket for the current stage.
func (s *Scheduler[MMTK]) pollCurrentStage() (Packet[MMTK], Stage, bool) {
	stage := s.CurrentStage()
	p, ok := s.buckets[stage].Poll()
	return p, stage, ok
}

// parkAndWait blocks the calling worker on the shared monitor until either
// new work appears or the scheduler is shutting down. It returns true iff
// the worker should exit its run loop (shutdown).
func (s *Scheduler[MMTK]) parkAndWait(w *Worker[MMTK]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.numParked++
	if s.numParked == len(s.workers) {
		select {
		case s.allParkedCh <- struct{}{}:
		default:
		}
	}

	for {
		if s.shuttingDown {
			s.numParked--
			return true
		}
		// Re-check work availability under the lock before sleeping:
		// avoids the lost-wakeup race where work was added between our
		// unlocked poll and taking the monitor.
		if s.buckets[s.CurrentStage()].hasWorkLocked() {
			s.numParked--
			return false
		}
		s.monitor.Wait()
		if s.shuttingDown {
			s.numParked--
			return true
		}
		if s.buckets[s.CurrentStage()].hasWorkLocked() {
			s.numParked--
			return false
		}
	}
}

// hasWorkLocked reports whether the bucket currently has a packet or
// pending sentinel available. The caller must already hold b.mu (which, by
// construction, is the same *sync.Mutex as the Scheduler's s.mu).
func (b *Bucket[MMTK]) hasWorkLocked() bool {
	if !b.active {
		return false
	}
	return b.heap.Len() > 0 || (b.sentinelSet && !b.sentinelAdded)
}

// shutdown marks the scheduler as shutting down and wakes every parked
// worker, implementing the worker-exit half of prepare_to_fork.
func (s *Scheduler[MMTK]) shutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	s.monitor.Broadcast()
}

// revive clears the shutdown flag ahead of a fresh Start, for after_fork.
func (s *Scheduler[MMTK]) revive(numWorkers int) {
	s.mu.Lock()
	s.shuttingDown = false
	s.mu.Unlock()
	s.workers = make([]*Worker[MMTK], numWorkers)
	for i := range s.workers {
		s.workers[i] = newWorker[MMTK](i, s)
	}
	for st := 0; st < NumStages; st++ {
		s.buckets[st].reset()
	}
	s.currentStage.Store(int32(Unconstrained))
}
