package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// SemiSpace is spec.md §8 scenario 1's minimal cycle: a copying plan over
// a pair of CopySpace halves, swapping which half is the to-space (copy
// destination) each cycle and discarding the other (from-space)
// wholesale once every survivor has been forwarded out of it.
type SemiSpace[MMTK any] struct {
	CommonPlan[MMTK]

	copy0, copy1 *space.CopySpace
	toIsCopy1    bool // which half is currently the to-space (copy destination)

	om binding.ObjectModel
	// ctx is the worker-side copy allocator every trace_object call
	// copies survivors through. It is an opaque binding capability (no
	// "retarget" hook in binding.CopyContext): the binding is
	// responsible for keeping its AllocCopy implementation bound to
	// whichever half toSpace() currently names, re-binding it at the
	// start of every cycle the same way a real VM's GC worker copy
	// context is rebuilt from the plan's active copy config each GC.
	ctx binding.CopyContext

	fullHeap bool
}

// NewSemiSpace builds a SemiSpace plan over the two CopySpace halves,
// copy0 starting as the to-space (copy destination).
func NewSemiSpace[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace, copy0, copy1 *space.CopySpace, om binding.ObjectModel, ctx binding.CopyContext) *SemiSpace[MMTK] {
	common := NewCommonPlan(base, immortal, los)
	common.Spaces.Register(copy0)
	common.Spaces.Register(copy1)
	return &SemiSpace[MMTK]{CommonPlan: common, copy0: copy0, copy1: copy1, om: om, ctx: ctx}
}

// toSpace returns the half reserved empty as this cycle's copy
// destination — the binding's CopyContext must stay bound to whichever
// half this names, per the doc comment on the ctx field.
func (p *SemiSpace[MMTK]) toSpace() *space.CopySpace {
	if p.toIsCopy1 {
		return p.copy1
	}
	return p.copy0
}

// fromSpace returns the half collected this cycle — the half mutators
// have been allocating into since the last cycle's Release flipped it
// into that role.
func (p *SemiSpace[MMTK]) fromSpace() *space.CopySpace {
	if p.toIsCopy1 {
		return p.copy0
	}
	return p.copy1
}

// Alloc bump-allocates size bytes from the current from-space half: the
// half mutators allocate into is, by definition, the half this cycle
// traces and reclaims, while toSpace() stays empty in reserve for the
// copies that trace produces.
func (p *SemiSpace[MMTK]) Alloc(size uint64) (address.Address, bool) {
	return p.fromSpace().Alloc(size)
}

// SetFullHeap records whether the next scheduled cycle is a full-heap
// collection, consulted by ScheduleCollection's Release-stage packet.
func (p *SemiSpace[MMTK]) SetFullHeap(fullHeap bool) { p.fullHeap = fullHeap }

// semiSpaceEdgeProcessor implements queue.EdgeProcessor, dispatching each
// edge to the owning space's trace_object: Immortal/LOS first (shared
// with every mature plan), falling back to the from-space CopySpace's
// forwarding protocol for everything else, per spec.md §4.2.
type semiSpaceEdgeProcessor[MMTK any] struct {
	plan *SemiSpace[MMTK]
}

func (e *semiSpaceEdgeProcessor[MMTK]) ProcessEdge(mmtk MMTK, slot queue.Edge) (address.ObjectReference, bool) {
	obj := slot.ToObjectReference()
	if ref, first, ok := e.plan.traceCommon(obj); ok {
		return ref, first
	}
	return e.plan.fromSpace().TraceObject(obj, e.plan.om, e.plan.ctx)
}

func (e *semiSpaceEdgeProcessor[MMTK]) ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *queue.ObjectsClosure[MMTK]) {
	e.plan.Scan.ScanObject(nil, obj, visitor)
}

// ScheduleCollection implements spec.md §2's schedule_collection: clear
// mark/forwarding state in Prepare, scan roots into Closure via the
// semispace forwarding processor, then flip to/from and reclaim the dead
// half in Release.
func (p *SemiSpace[MMTK]) ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK) {
	fullHeap := p.fullHeap
	proc := &semiSpaceEdgeProcessor[MMTK]{plan: p}

	sched.Bucket(work.Prepare).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "SemiSpacePrepare",
		Func: func(w *work.Worker[MMTK], m MMTK) {
			p.Prepare(fullHeap)
		},
	})

	var factory queue.PacketFactory[MMTK]
	factory = func(edges []queue.Edge) work.Packet[MMTK] {
		return queue.NewProcessEdgesWork[MMTK](edges, proc, work.Closure, factory, p.BufferSize)
	}
	p.ScheduleRootScan(sched, factory)

	sched.Bucket(work.Release).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "SemiSpaceRelease",
		Func: func(w *work.Worker[MMTK], m MMTK) {
			p.Release(fullHeap)
		},
	})
}

// Prepare clears the immortal/LOS mark bits and the to-be-collected
// from-space's forwarding state; the current to-space is left untouched
// since it is empty, held in reserve for the copies this cycle makes.
func (p *SemiSpace[MMTK]) Prepare(fullHeap bool) {
	p.Immortal.Prepare(fullHeap)
	p.Los.Prepare(fullHeap)
	p.fromSpace().Prepare(fullHeap)
}

// Release reclaims the from-space wholesale and flips which half is the
// to-space, the step spec.md §8 scenario 1 checks via
// fromspace.reserved_pages() == 0 after release.
func (p *SemiSpace[MMTK]) Release(fullHeap bool) {
	p.Immortal.Release(fullHeap)
	p.Los.Release(fullHeap)
	p.fromSpace().Release(fullHeap)
	p.toIsCopy1 = !p.toIsCopy1
}
