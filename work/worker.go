package work

// LocallyCachedWorks bounds a Worker's local packet buffer, mirroring the
// teacher's one-workbuf's-worth-of-hysteresis design in mgcwork.go (there,
// two workbufs of up to _WorkbufSize/PtrSize pointers each; here, a small
// number of whole packets is enough since packets themselves are
// coarser-grained than individual pointers).
const LocallyCachedWorks = 16

// Worker drains its local packet buffer before polling the scheduler,
// amortizing contention on the shared buckets exactly the way gcWork's
// wbuf1/wbuf2 amortize contention on work.full/work.empty.
type Worker[MMTK any] struct {
	ID        int
	sched     *Scheduler[MMTK]
	local     []Packet[MMTK]
	processed uint64 // packets executed by this worker across its lifetime, for stats
}

func newWorker[MMTK any](id int, sched *Scheduler[MMTK]) *Worker[MMTK] {
	return &Worker[MMTK]{ID: id, sched: sched, local: make([]Packet[MMTK], 0, LocallyCachedWorks)}
}

// AddWork enqueues packet into the given stage. If the stage's bucket is
// already active, the packet is cached locally (amortized) unless the
// local buffer is full, in which case it's pushed straight to the bucket
// at DefaultPriority. If the bucket is NOT yet active, AddWork pushes
// straight to the bucket at LatePriority so the packet is not stranded in
// a local buffer that might never get drained on an already-active
// pipeline, per spec.md §4.4's add_work contract.
func (w *Worker[MMTK]) AddWork(stage Stage, packet Packet[MMTK]) {
	b := w.sched.bucket(stage)
	if !b.IsActive() {
		b.Add(LatePriority, packet)
		return
	}
	if len(w.local) < cap(w.local) {
		w.local = append(w.local, packet)
		return
	}
	b.AddDefault(packet)
}

// AddCoordinatorWork sends packet to the coordinator to run on its own
// thread, the "Work(packet)" event kind of spec.md §4.4. The packet's
// DoWork is invoked with a nil *Worker, since it executes outside any
// worker's context; coordinator-bound packets must not dereference it.
func (w *Worker[MMTK]) AddCoordinatorWork(packet Packet[MMTK]) {
	w.sched.coordPacketCh <- packet
}

// flushLocal pushes every locally cached packet for the current stage to
// its bucket, called when the worker is about to park so cached work isn't
// invisible to other workers or to the coordinator's drain check.
func (w *Worker[MMTK]) flushLocal(stage Stage) {
	if len(w.local) == 0 {
		return
	}
	b := w.sched.bucket(stage)
	for _, p := range w.local {
		b.AddDefault(p)
	}
	w.local = w.local[:0]
}

// run is the worker's main loop: drain local buffer, else poll the
// scheduler's current stage, else park on the monitor, mirroring
// schedule()/findrunnable()'s "check local, check global, then block"
// structure in proc.go.
func (w *Worker[MMTK]) run(mmtk MMTK) {
	for {
		if len(w.local) > 0 {
			p := w.local[len(w.local)-1]
			w.local = w.local[:len(w.local)-1]
			p.DoWork(w, mmtk)
			w.processed++
			continue
		}

		p, stage, ok := w.sched.pollCurrentStage()
		if ok {
			p.DoWork(w, mmtk)
			w.processed++
			continue
		}

		w.flushLocal(stage)
		if w.sched.parkAndWait(w) {
			return // scheduler shut down (prepare_to_fork or final EndOfGC)
		}
	}
}
