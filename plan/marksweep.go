package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// MarkSweep is a non-moving plan over a single MarkSweepSpace: a marking
// trace sets mark bits, then Release sweeps unmarked cells back onto the
// space's free list, per spec.md §4.2's MarkSweepSpace description.
type MarkSweep[MMTK any] struct {
	CommonPlan[MMTK]
	ms *space.MarkSweepSpace
}

// NewMarkSweep builds a MarkSweep plan over ms.
func NewMarkSweep[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace, ms *space.MarkSweepSpace) *MarkSweep[MMTK] {
	common := NewCommonPlan(base, immortal, los)
	common.Spaces.Register(ms)
	return &MarkSweep[MMTK]{CommonPlan: common, ms: ms}
}

// Alloc allocates size bytes from the mark-sweep space's free list or a
// fresh block.
func (p *MarkSweep[MMTK]) Alloc(size uint64) (address.Address, bool) { return p.ms.Alloc(size) }

type markSweepEdgeProcessor[MMTK any] struct {
	plan *MarkSweep[MMTK]
}

func (e *markSweepEdgeProcessor[MMTK]) ProcessEdge(mmtk MMTK, slot queue.Edge) (address.ObjectReference, bool) {
	obj := slot.ToObjectReference()
	if ref, first, ok := e.plan.traceCommon(obj); ok {
		return ref, first
	}
	return e.plan.ms.TraceObject(obj)
}

func (e *markSweepEdgeProcessor[MMTK]) ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *queue.ObjectsClosure[MMTK]) {
	e.plan.Scan.ScanObject(nil, obj, visitor)
}

// ScheduleCollection clears mark bits in Prepare, marks the live set
// during Closure, then sweeps dead cells back onto the free list in
// Release — a single-trace collector, unlike MarkCompact's two passes.
func (p *MarkSweep[MMTK]) ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK) {
	proc := &markSweepEdgeProcessor[MMTK]{plan: p}

	sched.Bucket(work.Prepare).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkSweepPrepare",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Prepare(true) },
	})

	var factory queue.PacketFactory[MMTK]
	factory = func(edges []queue.Edge) work.Packet[MMTK] {
		return queue.NewProcessEdgesWork[MMTK](edges, proc, work.Closure, factory, p.BufferSize)
	}
	p.ScheduleRootScan(sched, factory)

	sched.Bucket(work.Release).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkSweepRelease",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Release(true) },
	})
}
