// Package plan implements spec.md §9's Inheritance-like-layering strategy
// (struct embedding, "as the teacher's own composition-over-macros
// alternative suggests") over BasePlan/CommonPlan, and the mature plan
// variants built on top of it: SemiSpace, MarkCompact, Immix, MarkSweep,
// and the supplemented GenCopy (SPEC_FULL.md §4.12).
//
// Grounded on runtime2.go's schedt/p composition: the teacher has no
// trait-style plan hierarchy of its own (it IS a single fixed collector),
// but its layering of "one global scheduler struct, many per-P local
// structs" is the same shape a BasePlan/CommonPlan split asks for, and is
// the model followed here.
package plan

import (
	"github.com/gopherheap/gcplan/work"
)

// Plan is the capability every concrete plan variant exposes to the root
// gcplan package: build a schedule_collection program (spec.md §2) and
// answer the space-accounting queries HandleUserCollectionRequest and the
// trigger policy need.
type Plan[MMTK any] interface {
	// ScheduleCollection populates sched's buckets for one GC cycle,
	// exactly the "coordinator runs schedule_collection" step of
	// spec.md §2. Called once per cycle, on the coordinator goroutine,
	// before any bucket is activated.
	ScheduleCollection(sched *work.Scheduler[MMTK], mmtk MMTK)

	// Prepare resets every space this plan owns ahead of a new cycle's
	// trace. fullHeap distinguishes a nursery-only collection (GenCopy)
	// from a whole-heap one.
	Prepare(fullHeap bool)

	// Release reclaims dead space after the cycle's trace (and any
	// compaction) has finished.
	Release(fullHeap bool)

	// ReservedPages totals the reserved-page count across every space
	// this plan owns, the figure FixedHeapSize's trigger policy
	// compares against total capacity.
	ReservedPages() uint64
}
