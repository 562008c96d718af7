package work

// Packet is a unit of GC work executed by exactly one Worker to completion,
// per spec.md §3: "a polymorphic value implementing do_work(worker, mmtk)
// ... they are not reentered after completion; they may create new
// packets." MMTK is left generic (type parameter) because the scheduler
// itself has no business knowing about Plan/space types; the root gcplan
// package instantiates Scheduler[*gcplan.Instance].
type Packet[MMTK any] interface {
	// DoWork executes the packet exactly once. It may call
	// worker.AddWork to schedule follow-on packets, including into later
	// stages.
	DoWork(worker *Worker[MMTK], mmtk MMTK)

	// Name identifies the packet's concrete type for the stat map spec.md
	// §3 requires ("their concrete types are recorded in a stat map").
	Name() string
}

// PacketFunc adapts a plain function to the Packet interface for simple,
// one-off packets (sentinels, sweeps, the kind of inline closures the
// teacher's own scheduler rarely needs because gcWork packets are always
// named types, but which pay for themselves here for synthetic/test plans).
type PacketFunc[MMTK any] struct {
	FuncName string
	Func     func(worker *Worker[MMTK], mmtk MMTK)
}

func (p PacketFunc[MMTK]) DoWork(worker *Worker[MMTK], mmtk MMTK) { p.Func(worker, mmtk) }
func (p PacketFunc[MMTK]) Name() string                            { return p.FuncName }

// entry pairs a packet with the priority it was enqueued at, for the
// bucket's priority heap.
type entry[MMTK any] struct {
	priority int
	seq      uint64 // insertion order, breaks ties FIFO (within equal priority, "unordered" per spec but FIFO is a valid unordered-compatible choice)
	packet   Packet[MMTK]
}
