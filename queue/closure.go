package queue

import (
	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/work"
)

// Edge is a slot location, passed to EdgeProcessor.ProcessEdge. The edge
// processors in this module read the address itself as the object
// reference; no reference held at the slot is read or rewritten in place.
type Edge = address.Address

// PacketFactory builds the next packet from a drained batch of edges,
// letting callers choose which ProcessEdgesWork variant (and which stage)
// recursively discovered edges flow into.
type PacketFactory[MMTK any] func(edges []Edge) work.Packet[MMTK]

// ObjectsClosure accumulates edges discovered while scanning one object (or
// one packet's worth of objects) and, once full or explicitly flushed,
// packages them into a new work packet for a designated stage. It
// implements the binding's SlotVisitor capability (spec.md §4.5, §6): scan
// callbacks in the host VM call VisitSlot once per outgoing reference.
type ObjectsClosure[MMTK any] struct {
	worker  *work.Worker[MMTK]
	edges   VectorQueue[Edge]
	stage   work.Stage
	factory PacketFactory[MMTK]
}

// NewObjectsClosure creates a closure bound to worker, flushing drained
// edges as packets into stage via factory. bufferCapacity mirrors
// spec.md's "capacity equal to the edges-work-buffer size"; 0 disables
// auto-flush on fill (caller must call Flush explicitly).
func NewObjectsClosure[MMTK any](worker *work.Worker[MMTK], stage work.Stage, factory PacketFactory[MMTK], bufferCapacity int) *ObjectsClosure[MMTK] {
	return &ObjectsClosure[MMTK]{
		worker:  worker,
		edges:   *NewVectorQueue[Edge](bufferCapacity),
		stage:   stage,
		factory: factory,
	}
}

// VisitSlot records edge as discovered, auto-flushing if the buffer is now
// full. This is the SlotVisitor entry point the binding's scan_object calls
// once per outgoing pointer.
func (c *ObjectsClosure[MMTK]) VisitSlot(edge Edge) {
	c.edges.Push(edge)
	if c.edges.IsFull() {
		c.Flush()
	}
}

// Flush drains any buffered edges into a new packet added to the closure's
// stage. A no-op if nothing is buffered, so callers may call it
// unconditionally at the end of a scan.
func (c *ObjectsClosure[MMTK]) Flush() {
	edges := c.edges.Take()
	if len(edges) == 0 {
		return
	}
	c.worker.AddWork(c.stage, c.factory(edges))
}
