package queue

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/work"
)

// EdgeProcessor is the plan-specific edge-processing policy ProcessEdgesWork
// is parameterized over, per spec.md §4.5: "a packet kind parameterized by
// a plan-specific edge-processing policy." A plan supplies one
// implementation per copying/marking policy (e.g. semispace-forwarding vs.
// immix-fast-mark); the space package's trace_object implementations are
// the usual backing call.
type EdgeProcessor[MMTK any] interface {
	// ProcessEdge dispatches slot to the owning space's trace_object. The
	// plans in this module take the slot address itself as the object
	// reference: nothing is loaded from the slot, and no (possibly
	// forwarded) reference is stored back to it. It reports the traced
	// reference and
	// whether this is the object's first visit this cycle — the
	// single source of truth ProcessEdgesWork uses to decide whether to
	// scan the object's own outgoing edges, satisfying the "MUST NOT
	// double-process an edge" requirement without any bookkeeping of
	// its own.
	ProcessEdge(mmtk MMTK, slot Edge) (traced address.ObjectReference, firstVisit bool)

	// ScanObject invokes the binding's scan_object capability for obj,
	// reporting every outgoing edge to visitor.
	ScanObject(mmtk MMTK, obj address.ObjectReference, visitor *ObjectsClosure[MMTK])
}

// ProcessEdgesWork is the packet kind of spec.md §4.5: for every edge it
// carries, process it, and for any object visited for the first time this
// cycle, scan its outgoing edges into a fresh ObjectsClosure so the
// transitive closure continues.
type ProcessEdgesWork[MMTK any] struct {
	Edges      []Edge
	Proc       EdgeProcessor[MMTK]
	Stage      work.Stage
	Factory    PacketFactory[MMTK]
	BufferSize int
}

// NewProcessEdgesWork builds a packet processing edges with proc, flushing
// any newly discovered edges as further ProcessEdgesWork packets into
// stage via factory.
func NewProcessEdgesWork[MMTK any](edges []Edge, proc EdgeProcessor[MMTK], stage work.Stage, factory PacketFactory[MMTK], bufferSize int) *ProcessEdgesWork[MMTK] {
	return &ProcessEdgesWork[MMTK]{Edges: edges, Proc: proc, Stage: stage, Factory: factory, BufferSize: bufferSize}
}

func (p *ProcessEdgesWork[MMTK]) Name() string { return "ProcessEdges" }

func (p *ProcessEdgesWork[MMTK]) DoWork(worker *work.Worker[MMTK], mmtk MMTK) {
	closure := NewObjectsClosure[MMTK](worker, p.Stage, p.Factory, p.BufferSize)
	for _, slot := range p.Edges {
		traced, first := p.Proc.ProcessEdge(mmtk, slot)
		if first && !traced.IsZero() {
			p.Proc.ScanObject(mmtk, traced, closure)
		}
	}
	closure.Flush()
}
