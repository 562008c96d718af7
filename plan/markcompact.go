package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// MarkCompact is spec.md §8 scenario 2's two-phase compacting plan: a
// marking trace over Closure, then CalculateForwarding and Compact as
// their own pipeline stages — the work.Stage enum already names both,
// per spec.md §4.4's fixed stage list — followed by Release rewinding
// the page resource to the compacted high-water mark.
type MarkCompact[MMTK any] struct {
	CommonPlan[MMTK]
	mc    *space.MarkCompactSpace
	mover func(old, new address.Address, size uint64)
}

// NewMarkCompact builds a MarkCompact plan over mc. mover performs the
// actual byte relocation spec.md §4.2 leaves to the embedder; the core
// only computes where each surviving object goes.
func NewMarkCompact[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace, mc *space.MarkCompactSpace, mover func(old, new address.Address, size uint64)) *MarkCompact[MMTK] {
	common := NewCommonPlan(base, immortal, los)
	common.Spaces.Register(mc)
	return &MarkCompact[MMTK]{CommonPlan: common, mc: mc, mover: mover}
}

// Alloc bump-allocates size bytes from the mark-compact space.
func (p *MarkCompact[MMTK]) Alloc(size uint64) (address.Address, bool) { return p.mc.Alloc(size) }

type markCompactEdgeProcessor[MMTK any] struct {
	plan *MarkCompact[MMTK]
}

func (e *markCompactEdgeProcessor[MMTK]) ProcessEdge(mmtk MMTK, slot queue.Edge) (address.ObjectReference, bool) {
	obj := slot.ToObjectReference()
	if ref, first, ok := e.plan.traceCommon(obj); ok {
		return ref, first
	}
	return e.plan.mc.TraceObject(obj)
}

func (e *markCompactEdgeProcessor[MMTK]) ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *queue.ObjectsClosure[MMTK]) {
	e.plan.Scan.ScanObject(nil, obj, visitor)
}

// ScheduleCollection wires the fixed pipeline spec.md §4.2 describes for
// MarkCompactSpace: Prepare clears mark bits; Closure marks the live set;
// CalculateForwarding assigns every survivor its new address by
// dense-prefix accumulation; Compact slides objects via the caller's
// mover; Release rewinds the page resource to the new high-water mark.
func (p *MarkCompact[MMTK]) ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK) {
	proc := &markCompactEdgeProcessor[MMTK]{plan: p}

	sched.Bucket(work.Prepare).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkCompactPrepare",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Prepare(true) },
	})

	var factory queue.PacketFactory[MMTK]
	factory = func(edges []queue.Edge) work.Packet[MMTK] {
		return queue.NewProcessEdgesWork[MMTK](edges, proc, work.Closure, factory, p.BufferSize)
	}
	p.ScheduleRootScan(sched, factory)

	sched.Bucket(work.CalculateForwarding).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkCompactCalculateForwarding",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.mc.CalculateForwarding() },
	})

	sched.Bucket(work.Compact).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkCompactCompact",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.mc.Compact(p.mover) },
	})

	sched.Bucket(work.Release).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "MarkCompactRelease",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Release(true) },
	})
}

// Prepare clears the immortal/LOS mark bits and the mark-compact space's
// own mark bitmap.
func (p *MarkCompact[MMTK]) Prepare(fullHeap bool) {
	p.Immortal.Prepare(fullHeap)
	p.Los.Prepare(fullHeap)
	p.mc.Prepare(fullHeap)
}

// Release reclaims the immortal/LOS spaces normally and rewinds the
// mark-compact space's page resource to the compacted high-water mark
// Compact already established.
func (p *MarkCompact[MMTK]) Release(fullHeap bool) {
	p.Immortal.Release(fullHeap)
	p.Los.Release(fullHeap)
	p.mc.Release(fullHeap)
}
