package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// GenCopy is the supplemented generational copying plan of SPEC_FULL.md
// §4.12 (from original_source/src/plan/gencopy/{global,gc_work}.rs): a
// small nursery CopySpace collected every cycle, promoting survivors
// directly into a mature SemiSpace pair, with a full-heap collection
// (also tracing the mature from-space) triggered once the mature space's
// reservation crosses MatureFullHeapRatio of its capacity.
type GenCopy[MMTK any] struct {
	CommonPlan[MMTK]

	nursery *space.CopySpace

	mature0, mature1 *space.CopySpace
	matureToIsM1     bool

	om        binding.ObjectModel
	matureCtx binding.CopyContext

	matureTotalPages  uint64
	matureFullRatio   float64 // e.g. 0.8: full-heap once mature reservation reaches 80% of capacity

	fullHeap bool
}

// NewGenCopy builds a GenCopy plan. matureCtx is the CopyContext that
// allocates into the mature space's current to-space half — both
// nursery-survivor promotion and mature-to-mature forwarding during a
// full-heap cycle copy through this same context, per §4.12.
func NewGenCopy[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace, nursery, mature0, mature1 *space.CopySpace, om binding.ObjectModel, matureCtx binding.CopyContext, matureTotalPages uint64, matureFullRatio float64) *GenCopy[MMTK] {
	common := NewCommonPlan(base, immortal, los)
	common.Spaces.Register(nursery)
	common.Spaces.Register(mature0)
	common.Spaces.Register(mature1)
	if matureFullRatio <= 0 {
		matureFullRatio = 0.8
	}
	return &GenCopy[MMTK]{
		CommonPlan:       common,
		nursery:          nursery,
		mature0:          mature0,
		mature1:          mature1,
		om:               om,
		matureCtx:        matureCtx,
		matureTotalPages: matureTotalPages,
		matureFullRatio:  matureFullRatio,
	}
}

// matureToSpace/matureFromSpace mirror SemiSpace's to/from helpers over
// the mature pair.
func (p *GenCopy[MMTK]) matureToSpace() *space.CopySpace {
	if p.matureToIsM1 {
		return p.mature1
	}
	return p.mature0
}

func (p *GenCopy[MMTK]) matureFromSpace() *space.CopySpace {
	if p.matureToIsM1 {
		return p.mature0
	}
	return p.mature1
}

// Alloc bump-allocates size bytes from the nursery, per generational
// collectors' "all new objects start in the nursery" contract.
func (p *GenCopy[MMTK]) Alloc(size uint64) (address.Address, bool) { return p.nursery.Alloc(size) }

// decideFullHeap implements SPEC_FULL.md §4.12's promotion-ratio trigger:
// once the mature to-space's reservation reaches matureFullRatio of
// matureTotalPages, the next cycle traces the mature from-space too
// instead of collecting the nursery alone.
func (p *GenCopy[MMTK]) decideFullHeap() bool {
	if p.matureTotalPages == 0 {
		return false
	}
	reserved := float64(p.matureToSpace().ReservedPages())
	return reserved/float64(p.matureTotalPages) >= p.matureFullRatio
}

type genCopyEdgeProcessor[MMTK any] struct {
	plan *GenCopy[MMTK]
}

func (e *genCopyEdgeProcessor[MMTK]) ProcessEdge(mmtk MMTK, slot queue.Edge) (address.ObjectReference, bool) {
	obj := slot.ToObjectReference()
	if ref, first, ok := e.plan.traceCommon(obj); ok {
		return ref, first
	}
	if e.plan.nursery.InSpace(obj.ToAddress()) {
		return e.plan.nursery.TraceObject(obj, e.plan.om, e.plan.matureCtx)
	}
	// A reference into the mature space is only live to trace during a
	// full-heap cycle; a nursery-only cycle never enqueues one as a
	// root or discovers one as an edge of a traced nursery object,
	// since mature objects don't move in that cycle and their own
	// edges aren't re-scanned.
	return e.plan.matureFromSpace().TraceObject(obj, e.plan.om, e.plan.matureCtx)
}

func (e *genCopyEdgeProcessor[MMTK]) ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *queue.ObjectsClosure[MMTK]) {
	e.plan.Scan.ScanObject(nil, obj, visitor)
}

// ScheduleCollection decides nursery-only vs. full-heap from the mature
// space's reservation ratio, then schedules Prepare/Closure/Release
// exactly as SemiSpace does, restricted to whichever spaces this cycle's
// kind actually traces.
func (p *GenCopy[MMTK]) ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK) {
	p.fullHeap = p.decideFullHeap()
	fullHeap := p.fullHeap
	proc := &genCopyEdgeProcessor[MMTK]{plan: p}

	sched.Bucket(work.Prepare).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "GenCopyPrepare",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Prepare(fullHeap) },
	})

	var factory queue.PacketFactory[MMTK]
	factory = func(edges []queue.Edge) work.Packet[MMTK] {
		return queue.NewProcessEdgesWork[MMTK](edges, proc, work.Closure, factory, p.BufferSize)
	}
	p.ScheduleRootScan(sched, factory)

	sched.Bucket(work.Release).AddDefault(work.PacketFunc[MMTK]{
		FuncName: "GenCopyRelease",
		Func:     func(w *work.Worker[MMTK], m MMTK) { p.Release(fullHeap) },
	})
}

// Prepare always resets the nursery's forwarding state; a full-heap cycle
// additionally resets the immortal/LOS spaces and the mature from-space.
func (p *GenCopy[MMTK]) Prepare(fullHeap bool) {
	p.nursery.Prepare(fullHeap)
	if !fullHeap {
		return
	}
	p.Immortal.Prepare(fullHeap)
	p.Los.Prepare(fullHeap)
	p.matureFromSpace().Prepare(fullHeap)
}

// Release always reclaims the nursery wholesale (every survivor has been
// promoted out of it by the time Release runs). A full-heap cycle
// additionally reclaims the immortal/LOS spaces and flips the mature
// to/from pair, the same flip SemiSpace.Release performs.
func (p *GenCopy[MMTK]) Release(fullHeap bool) {
	p.nursery.Release(fullHeap)
	if !fullHeap {
		return
	}
	p.Immortal.Release(fullHeap)
	p.Los.Release(fullHeap)
	p.matureFromSpace().Release(fullHeap)
	p.matureToIsM1 = !p.matureToIsM1
}
