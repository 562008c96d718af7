package gcplan

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/global"
	"github.com/gopherheap/gcplan/internal/options"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/internal/telemetry"
	"github.com/gopherheap/gcplan/plan"
	"github.com/gopherheap/gcplan/region"
	"github.com/gopherheap/gcplan/space"
)

// Bindings bundles every binding-provided capability spec.md §6 lists,
// plus the plan-specific extras a particular plan kind additionally
// needs (a CopyContext for any copying plan, a relocation mover for
// MarkCompact).
type Bindings struct {
	ObjectModel binding.ObjectModel
	Scanning    binding.Scanning
	Collection  binding.Collection
	ActivePlan  binding.ActivePlan

	// CopyContext is required for PlanSemiSpace, PlanImmix, and
	// PlanGenCopy; nil otherwise.
	CopyContext binding.CopyContext

	// Mover is required for PlanMarkCompact; nil otherwise.
	Mover func(old, new address.Address, size uint64)

	// Delegated is required when Options.DelegatedHeapGrowth is set;
	// nil otherwise (FixedHeapSize is used).
	Delegated binding.DelegatedHeapGrowth

	// LogWriter receives the instance's telemetry stream. Defaults to
	// os.Stderr if nil.
	LogWriter io.Writer

	// Registerer receives the instance's prometheus counters. Defaults
	// to a fresh, unshared prometheus.NewRegistry() if nil — Init never
	// registers against prometheus.DefaultRegisterer implicitly, so a
	// binding that wants the process-wide default must say so.
	Registerer prometheus.Registerer
}

func (b Bindings) validate(opts options.Options) error {
	if b.ObjectModel == nil || b.Scanning == nil || b.Collection == nil || b.ActivePlan == nil {
		return errors.New("gcplan: Init requires ObjectModel, Scanning, Collection, and ActivePlan")
	}
	switch opts.Plan {
	case options.PlanSemiSpace, options.PlanImmix, options.PlanGenCopy:
		if b.CopyContext == nil {
			return errors.Errorf("gcplan: plan %q requires a CopyContext", opts.Plan)
		}
	case options.PlanMarkCompact:
		if b.Mover == nil {
			return errors.New("gcplan: the markcompact plan requires a Mover")
		}
	}
	if opts.DelegatedHeapGrowth && b.Delegated == nil {
		return errors.New("gcplan: delegated_heap_growth requires a DelegatedHeapGrowth binding")
	}
	return nil
}

// regionCarver hands out non-overlapping, chunk-aligned page resources
// from a single simulated virtual address space — there is no real
// backing memory in this module (object identity is its address, per the
// convention established throughout queue/ and space/'s tests), so Init's
// job is only to pick disjoint address ranges, not to mmap anything.
type regionCarver struct {
	next address.Address
}

func newRegionCarver() *regionCarver {
	// Start one chunk in, keeping ZeroAddress reserved as the "no
	// address" sentinel address.go documents.
	return &regionCarver{next: address.Address(0).AlignUp(region.LogChunkBytes).Add(region.ChunkBytes)}
}

func (c *regionCarver) carve(bytes uint64) (*space.PageResource, address.Address) {
	base := c.next
	aligned := address.Address(bytes).AlignUp(region.LogChunkBytes)
	pr := space.NewPageResource(base, uint64(aligned))
	c.next = base.Add(int64(aligned))
	return pr, base
}

// fixedSpaceFraction sizes the fixed-fraction spaces (Immortal, LOS) every
// plan sets aside alongside its main collected space(s): each gets
// HeapSizeBytes/fixedSpaceFraction bytes.
const fixedSpaceFraction = 8

// Init builds an Instance per opts, wiring the spaces and concrete plan
// opts.Plan names, implementing spec.md §6's mmtk_init.
func Init(opts options.Options, vm Bindings) (*Instance, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := vm.validate(opts); err != nil {
		return nil, err
	}

	logWriter := vm.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	log, err := telemetry.NewFromLevelName(logWriter, opts.LogLevel)
	if err != nil {
		return nil, err
	}

	g := global.New()
	var trigger global.GCTriggerPolicy
	if opts.DelegatedHeapGrowth {
		trigger = global.NewDelegated(vm.Delegated)
	} else {
		totalPages := (opts.HeapSizeBytes + sys.PageSize - 1) / sys.PageSize
		trigger = global.NewFixedHeapSize(totalPages)
	}

	chunkMap := region.NewChunkMap()
	carver := newRegionCarver()

	immortalBytes := opts.HeapSizeBytes / fixedSpaceFraction
	losBytes := opts.HeapSizeBytes / fixedSpaceFraction

	immortalPR, _ := carver.carve(immortalBytes)
	immortal := space.NewImmortalSpace("immortal", 1, immortalPR, chunkMap, immortalBytes)

	losPR, _ := carver.carve(losBytes)
	los := space.NewLargeObjectSpace("los", 2, losPR, chunkMap)

	base := plan.NewBasePlan[*Instance](g, vm.Scanning, 0)

	reg := vm.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	in := &Instance{
		opts:       opts,
		global:     g,
		trigger:    trigger,
		metrics:    global.NewMetrics(reg),
		log:        log,
		col:        vm.Collection,
		ap:         vm.ActivePlan,
		allocators: make(map[binding.AllocationSemantics]allocFunc),
		mutators:   make(map[binding.TLS]*Mutator),
	}

	var (
		concretePlan  plan.Plan[*Instance]
		allocDefault  allocFunc
		vobitRangeLen uint64
	)

	switch opts.Plan {
	case options.PlanSemiSpace:
		mainBytes := opts.HeapSizeBytes / 2
		pr0, _ := carver.carve(mainBytes)
		pr1, _ := carver.carve(mainBytes)
		copy0 := space.NewCopySpace("copy0", 3, pr0, chunkMap, false, binding.CopySemantics(0), mainBytes)
		copy1 := space.NewCopySpace("copy1", 4, pr1, chunkMap, true, binding.CopySemantics(0), mainBytes)
		ss := plan.NewSemiSpace[*Instance](base, immortal, los, copy0, copy1, vm.ObjectModel, vm.CopyContext)
		concretePlan, allocDefault = ss, ss.Alloc

	case options.PlanMarkSweep:
		msPR, _ := carver.carve(opts.HeapSizeBytes)
		ms := space.NewMarkSweepSpace("ms", 3, msPR, chunkMap, opts.HeapSizeBytes, 32)
		msp := plan.NewMarkSweep[*Instance](base, immortal, los, ms)
		concretePlan, allocDefault = msp, msp.Alloc

	case options.PlanMarkCompact:
		mcPR, _ := carver.carve(opts.HeapSizeBytes)
		mc := space.NewMarkCompactSpace("mc", 3, mcPR, chunkMap, opts.HeapSizeBytes)
		mcp := plan.NewMarkCompact[*Instance](base, immortal, los, mc, vm.Mover)
		concretePlan, allocDefault = mcp, mcp.Alloc

	case options.PlanImmix:
		ixPR, _ := carver.carve(opts.HeapSizeBytes)
		ix := space.NewImmixSpace("immix", 3, ixPR, chunkMap, opts.HeapSizeBytes)
		availableLines := opts.HeapSizeBytes / region.LineBytes
		ixp := plan.NewImmix[*Instance](base, immortal, los, ix, vm.ObjectModel, vm.CopyContext, availableLines)
		concretePlan, allocDefault = ixp, ixp.Alloc

	case options.PlanGenCopy:
		if opts.NurserySizeBytes == 0 {
			return nil, errors.New("gcplan: gencopy requires a nonzero NurserySizeBytes")
		}
		nurseryPR, _ := carver.carve(opts.NurserySizeBytes)
		nursery := space.NewCopySpace("nursery", 3, nurseryPR, chunkMap, false, binding.CopySemantics(0), opts.NurserySizeBytes)
		matureBytes := opts.HeapSizeBytes / 2
		m0PR, _ := carver.carve(matureBytes)
		m1PR, _ := carver.carve(matureBytes)
		mature0 := space.NewCopySpace("mature0", 4, m0PR, chunkMap, false, binding.CopySemantics(1), matureBytes)
		mature1 := space.NewCopySpace("mature1", 5, m1PR, chunkMap, true, binding.CopySemantics(1), matureBytes)
		matureTotalPages := matureBytes / sys.PageSize
		gc := plan.NewGenCopy[*Instance](base, immortal, los, nursery, mature0, mature1, vm.ObjectModel, vm.CopyContext, matureTotalPages, opts.MatureFullHeapRatio)
		concretePlan, allocDefault = gc, gc.Alloc

	default:
		return nil, errors.Errorf("gcplan: unrecognized plan %q", opts.Plan)
	}

	in.plan = concretePlan
	in.allocators[binding.Default] = allocDefault
	in.allocators[binding.Immortal] = immortal.Alloc
	in.allocators[binding.Los] = los.Alloc
	in.allocators[binding.Code] = allocDefault
	in.allocators[binding.ReadOnly] = immortal.Alloc
	in.allocators[binding.NonMoving] = immortal.Alloc

	vobitRangeLen = uint64(carver.next.Sub(address.Address(0)))
	in.vobits = space.NewVOBitTable(address.Address(0), vobitRangeLen)
	in.vobits.Commit(address.Address(0), vobitRangeLen)

	return in, nil
}
