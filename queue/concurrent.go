package queue

import (
	"sync/atomic"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/work"
)

// PauseKind distinguishes the two pauses a concurrent-marking plan variant
// uses, per spec.md §4.5's "initial-mark pause" vs. "final-mark".
type PauseKind int32

const (
	InitialMark PauseKind = iota
	FinalMark
)

// ObjectTracer is the marking policy ConcurrentTraceObjects is
// parameterized over: trace one object (mark it, and report whether this
// is its first visit this cycle), and scan its outgoing edges into a
// VectorQueue of newly discovered objects.
type ObjectTracer[MMTK any] interface {
	TraceObject(mmtk MMTK, obj address.ObjectReference) (traced address.ObjectReference, firstVisit bool)
	ScanObject(mmtk MMTK, obj address.ObjectReference, discovered *VectorQueue[address.ObjectReference])
}

// ConcurrentTraceObjects carries an initial batch of objects plus a
// VectorQueue of recursively discovered ones, for the SATB concurrent-mark
// variant of ImmixSpace (spec.md §4.5). It consults CurrentPause, a
// pointer shared across every packet of a cycle, to decide whether to keep
// following edges now (InitialMark) or leave the rest for the final-mark
// stage's ordinary closure to pick up via the mark bits already set
// (FinalMark) — marked-but-unscanned objects are exactly the ones the
// final pause's root set re-walks.
type ConcurrentTraceObjects[MMTK any] struct {
	Objects      []address.ObjectReference
	Discovered   VectorQueue[address.ObjectReference]
	CurrentPause *atomic.Int32
	Tracer       ObjectTracer[MMTK]
	Stage        work.Stage
	BufferSize   int
}

// NewConcurrentTraceObjects builds a packet tracing objects under the
// shared currentPause flag, flushing any overflow of newly discovered
// objects as further ConcurrentTraceObjects packets into stage.
func NewConcurrentTraceObjects[MMTK any](objects []address.ObjectReference, tracer ObjectTracer[MMTK], currentPause *atomic.Int32, stage work.Stage, bufferSize int) *ConcurrentTraceObjects[MMTK] {
	return &ConcurrentTraceObjects[MMTK]{
		Objects:      objects,
		Discovered:   *NewVectorQueue[address.ObjectReference](bufferSize),
		CurrentPause: currentPause,
		Tracer:       tracer,
		Stage:        stage,
		BufferSize:   bufferSize,
	}
}

func (p *ConcurrentTraceObjects[MMTK]) Name() string { return "ConcurrentTraceObjects" }

func (p *ConcurrentTraceObjects[MMTK]) DoWork(worker *work.Worker[MMTK], mmtk MMTK) {
	for _, obj := range p.Objects {
		traced, first := p.Tracer.TraceObject(mmtk, obj)
		if !first || traced.IsZero() {
			continue
		}
		if PauseKind(p.CurrentPause.Load()) != InitialMark {
			// Deferred to final-mark: the object is marked now, its
			// edges will be walked when the final pause's closure
			// revisits it via the remaining root set.
			continue
		}
		p.Tracer.ScanObject(mmtk, traced, &p.Discovered)
		if p.Discovered.IsFull() {
			p.flush(worker)
		}
	}
	p.flush(worker)
}

func (p *ConcurrentTraceObjects[MMTK]) flush(worker *work.Worker[MMTK]) {
	objs := p.Discovered.Take()
	if len(objs) == 0 {
		return
	}
	worker.AddWork(p.Stage, NewConcurrentTraceObjects[MMTK](objs, p.Tracer, p.CurrentPause, p.Stage, p.BufferSize))
}
