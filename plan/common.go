package plan

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/global"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/space"
	"github.com/gopherheap/gcplan/work"
)

// DefaultEdgeBufferSize is the edges-work-buffer capacity used when a
// plan isn't configured with a more specific value, per spec.md §4.5.
const DefaultEdgeBufferSize = 4096

// BasePlan carries the state every concrete plan variant needs regardless
// of its copying/marking policy: the global trigger/attempt-count state
// (global.GlobalState), the descriptor-indexed space registry spec.md §9
// names as the cyclic-space-graph strategy, and the binding's root-
// discovery capability. It is the struct-embedding root of the
// "inheritance-like layering" spec.md §9 asks for.
type BasePlan[MMTK any] struct {
	Global     *global.GlobalState
	Spaces     *space.Registry
	Scan       binding.Scanning
	BufferSize int
}

// NewBasePlan builds a BasePlan with a fresh, empty Registry.
func NewBasePlan[MMTK any](g *global.GlobalState, scan binding.Scanning, bufferSize int) BasePlan[MMTK] {
	if bufferSize <= 0 {
		bufferSize = DefaultEdgeBufferSize
	}
	return BasePlan[MMTK]{Global: g, Spaces: space.NewRegistry(), Scan: scan, BufferSize: bufferSize}
}

// ReservedPages sums ReservedPages() across every space registered so far.
func (b *BasePlan[MMTK]) ReservedPages() uint64 {
	var total uint64
	for _, sp := range b.Spaces.All() {
		total += sp.ReservedPages()
	}
	return total
}

// CommonPlan adds the ImmortalSpace and LargeObjectSpace every mature plan
// variant carries alongside its own copying/marking spaces (spec.md §3:
// "the plan that owns a fixed set of spaces"). It is the "CommonPlan"
// layer spec.md §9 names as sitting between BasePlan and each concrete
// plan.
type CommonPlan[MMTK any] struct {
	BasePlan[MMTK]
	Immortal *space.ImmortalSpace
	Los      *space.LargeObjectSpace
}

// NewCommonPlan registers immortal and los into base's Registry and
// returns the composed CommonPlan.
func NewCommonPlan[MMTK any](base BasePlan[MMTK], immortal *space.ImmortalSpace, los *space.LargeObjectSpace) CommonPlan[MMTK] {
	base.Spaces.Register(immortal)
	base.Spaces.Register(los)
	return CommonPlan[MMTK]{BasePlan: base, Immortal: immortal, Los: los}
}

// Prepare resets every space registered in c.Spaces, common and plan-
// specific alike, per spec.md §4.3's Prepare stage.
func (c *CommonPlan[MMTK]) Prepare(fullHeap bool) { c.Spaces.PrepareAll(fullHeap) }

// Release reclaims every space registered in c.Spaces. A concrete plan
// whose spaces need extra end-of-cycle bookkeeping beyond Release (e.g.
// SemiSpace's to/from flip) overrides Release itself rather than relying
// on this one.
func (c *CommonPlan[MMTK]) Release(fullHeap bool) { c.Spaces.ReleaseAll(fullHeap) }

// rootsPacket turns the binding's two root-discovery calls into an edges
// closure flushed as the initial ProcessEdgesWork packets of the Closure
// stage, per spec.md §4.3's "roots scanned" step of ClosureSetup. Every
// concrete plan schedules exactly one of these per cycle; the trace
// policy that follows is entirely down to the EdgeProcessor the factory
// closes over.
type rootsPacket[MMTK any] struct {
	scan       binding.Scanning
	factory    queue.PacketFactory[MMTK]
	bufferSize int
}

func (p *rootsPacket[MMTK]) Name() string { return "ScanRoots" }

func (p *rootsPacket[MMTK]) DoWork(worker *work.Worker[MMTK], mmtk MMTK) {
	closure := queue.NewObjectsClosure[MMTK](worker, work.Closure, p.factory, p.bufferSize)
	p.scan.ScanRootsInAllMutatorThreads(closure)
	p.scan.ScanVMSpecificRoots(closure)
	closure.Flush()
}

// ScheduleRootScan adds a rootsPacket to the ClosureSetup bucket, the
// shared "turn roots into the first Closure-stage packets" step every
// concrete plan's ScheduleCollection performs identically.
func (c *CommonPlan[MMTK]) ScheduleRootScan(sched *work.Scheduler[MMTK], factory queue.PacketFactory[MMTK]) {
	sched.Bucket(work.ClosureSetup).AddDefault(&rootsPacket[MMTK]{
		scan:       c.Scan,
		factory:    factory,
		bufferSize: c.BufferSize,
	})
}

// traceCommon dispatches obj to the Immortal or LOS space's trace_object
// if obj falls in either, reporting ok=false if obj belongs to neither —
// the concrete plan's own EdgeProcessor tries this first, falling back to
// its copying/marking space only on a miss, since every mature plan
// shares these two spaces verbatim.
func (c *CommonPlan[MMTK]) traceCommon(obj address.ObjectReference) (address.ObjectReference, bool, bool) {
	addr := obj.ToAddress()
	if c.Immortal.InSpace(addr) {
		ref, first := c.Immortal.TraceObject(obj)
		return ref, first, true
	}
	if c.Los.InSpace(addr) {
		ref, first := c.Los.TraceObject(obj)
		return ref, first, true
	}
	return obj, false, false
}
