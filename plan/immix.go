package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// Immix is a mostly-non-moving plan over a single ImmixSpace: most
// cycles mark in place (TraceKindFast); a cycle flagged by
// space.DecideWhetherToDefrag additionally evacuates the most fragmented
// blocks (TraceKindTransitive), per spec.md §4.2/§4.13.
type Immix[MMTK any] struct {
	CommonPlan[MMTK]
	ix  *space.ImmixSpace
	om  binding.ObjectModel
	ctx binding.CopyContext

	stressTest            bool
	availableToSpaceLines uint64

	// kind is this cycle's decided trace kind, set by Prepare and read
	// by the Closure-stage EdgeProcessor.
	kind space.TraceKind
}

// NewImmix builds an Immix plan over ix. availableToSpaceLines bounds how
// many live lines a defragging cycle may evacuate, per
// DefragHistogram.SpillThreshold.
func NewImmix[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace, ix *space.ImmixSpace, om binding.ObjectModel, ctx binding.CopyContext, availableToSpaceLines uint64) *Immix[MMTK] {
	common := NewCommonPlan(base, immortal, los)
	common.Spaces.Register(ix)
	return &Immix[MMTK]{CommonPlan: common, ix: ix, om: om, ctx: ctx, availableToSpaceLines: availableToSpaceLines}
}

// Alloc bump-allocates size bytes from the Immix space.
func (p *Immix[MMTK]) Alloc(size uint64) (address.Address, bool) { return p.ix.Alloc(size) }

// SetStressTest toggles the stress-test flag space.DecideWhetherToDefrag
// consults, for harnesses that want to force defragging every cycle.
func (p *Immix[MMTK]) SetStressTest(v bool) { p.stressTest = v }

type immixEdgeProcessor[MMTK any] struct {
	plan *Immix[MMTK]
}

func (e *immixEdgeProcessor[MMTK]) ProcessEdge(mmtk MMTK, slot queue.Edge) (address.ObjectReference, bool) {
	obj := slot.ToObjectReference()
	if ref, first, ok := e.plan.traceCommon(obj); ok {
		return ref, first
	}
	return e.plan.ix.TraceObject(obj, e.plan.kind, e.plan.om, e.plan.ctx)
}

func (e *immixEdgeProcessor[MMTK]) ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *queue.ObjectsClosure[MMTK]) {
	e.plan.Scan.ScanObject(nil, obj, visitor)
}

// ScheduleCollection decides this cycle's trace kind from last cycle's
// line-mark state before Prepare clears it, then marks (and possibly
// evacuates) during Closure exactly as that decision dictates.
func (p *Immix[MMTK]) ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK) {
	proc := &immixEdgeProcessor[MMTK]{plan: p}

	sched.Bucket(work.Prepare).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "ImmixPrepare",
		Func: func(w *work.Worker[MMTK], m MMTK) {
			p.decideTraceKind()
			p.Prepare(true)
		},
	})

	var factory queue.PacketFactory[MMTK]
	factory = func(edges []queue.Edge) work.Packet[MMTK] {
		return queue.NewProcessEdgesWork[MMTK](edges, proc, work.Closure, factory, p.BufferSize)
	}
	p.ScheduleRootScan(sched, factory)

	sched.Bucket(work.Release).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "ImmixRelease",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Release(true) },
	})
}

// decideTraceKind implements spec.md §4.2/§4.13's defrag decision: merge
// every block's hole histogram (computed from the marks the previous
// cycle left behind, before Prepare clears them), gate on
// space.DecideWhetherToDefrag, and if defragging, populate the space's
// defrag set via ApplyDefragDecision.
func (p *Immix[MMTK]) decideTraceKind() {
	doDefrag := space.DecideWhetherToDefrag(
		p.Global.IsEmergencyCollection(),
		false, // exhausted-reusable-space: no reusable-block allocator in this port
		p.stressTest,
		p.Global.IsUserTriggeredCollection(),
	)
	if !doDefrag {
		p.kind = space.TraceKindFast
		return
	}

	merged := p.ix.ComputeHistogram(p.ix.AllBlocks())
	p.ix.ApplyDefragDecision(merged, p.availableToSpaceLines)
	p.kind = space.TraceKindTransitive
}

// Prepare clears the immortal/LOS mark bits and the Immix space's own
// object/line mark bits.
func (p *Immix[MMTK]) Prepare(fullHeap bool) {
	p.Immortal.Prepare(fullHeap)
	p.Los.Prepare(fullHeap)
	p.ix.Prepare(fullHeap)
}

// Release reclaims the immortal/LOS spaces and clears the Immix space's
// defrag set, ready for the next cycle's decision.
func (p *Immix[MMTK]) Release(fullHeap bool) {
	p.Immortal.Release(fullHeap)
	p.Los.Release(fullHeap)
	p.ix.Release(fullHeap)
}
