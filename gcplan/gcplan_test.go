package gcplan_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/gcplan"
	"github.com/gopherheap/gcplan/internal/options"
)

type fakeObjectModel struct{}

func (fakeObjectModel) ObjectStartRef(obj address.ObjectReference) address.Address {
	return obj.ToAddress()
}
func (fakeObjectModel) GetCurrentSize(address.ObjectReference) uintptr    { return 32 }
func (fakeObjectModel) GetSizeWhenCopied(address.ObjectReference) uintptr { return 32 }
func (fakeObjectModel) GetAlignWhenCopied(address.ObjectReference) uintptr {
	return 8
}
func (fakeObjectModel) Copy(from address.ObjectReference, semantics binding.CopySemantics, ctx binding.CopyContext) address.ObjectReference {
	return ctx.AllocCopy(32, 8, 0, semantics).ToObjectReference()
}
func (fakeObjectModel) RefToAddress(obj address.ObjectReference) address.Address { return obj.ToAddress() }
func (fakeObjectModel) AddressToRef(addr address.Address) address.ObjectReference {
	return addr.ToObjectReference()
}

var _ binding.ObjectModel = fakeObjectModel{}

// fakeCopyContext bump-allocates from its own address range, well clear of
// anything gcplan.Init carves, standing in for a binding's worker copy
// context without needing gcplan to expose its internal space pointers to
// the binding layer.
type fakeCopyContext struct {
	mu   sync.Mutex
	next address.Address
}

func newFakeCopyContext() *fakeCopyContext {
	return &fakeCopyContext{next: address.Address(1 << 40)}
}

func (c *fakeCopyContext) AllocCopy(size, align, offset uintptr, semantics binding.CopySemantics) address.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := c.next
	c.next = c.next.Add(int64(size))
	return addr
}

var _ binding.CopyContext = (*fakeCopyContext)(nil)

type fakeScanning struct {
	mu    sync.Mutex
	roots []address.Address
	graph map[address.Address][]address.Address
}

func (s *fakeScanning) ScanObject(tls binding.TLS, obj address.ObjectReference, visitor binding.SlotVisitor) {
	s.mu.Lock()
	edges := s.graph[obj.ToAddress()]
	s.mu.Unlock()
	for _, e := range edges {
		visitor.VisitSlot(e)
	}
}
func (s *fakeScanning) ScanRootsInAllMutatorThreads(visitor binding.SlotVisitor) {
	s.mu.Lock()
	roots := append([]address.Address(nil), s.roots...)
	s.mu.Unlock()
	for _, r := range roots {
		visitor.VisitSlot(r)
	}
}
func (s *fakeScanning) ScanVMSpecificRoots(binding.SlotVisitor) {}
func (s *fakeScanning) PrepareForRootsReScanning()              {}
func (s *fakeScanning) SupportsReturnBarrier() bool             { return false }

func (s *fakeScanning) setRoots(roots ...address.Address) {
	s.mu.Lock()
	s.roots = roots
	s.mu.Unlock()
}

var _ binding.Scanning = (*fakeScanning)(nil)

// fakeCollection runs SpawnGCThread requests as plain goroutines (there is
// no real thread model in this simulated world) and replays
// StopAllMutators' closure over whatever TLS handles the test has told it
// about via addMutator.
type fakeCollection struct {
	mu       sync.Mutex
	mutators []binding.TLS
	oomKinds []binding.OutOfMemoryKind
}

func (c *fakeCollection) addMutator(tls binding.TLS) {
	c.mu.Lock()
	c.mutators = append(c.mutators, tls)
	c.mu.Unlock()
}

func (c *fakeCollection) StopAllMutators(tls binding.TLS, closure func(mutatorTLS binding.TLS)) {
	c.mu.Lock()
	mutators := append([]binding.TLS(nil), c.mutators...)
	c.mu.Unlock()
	for _, m := range mutators {
		closure(m)
	}
}
func (c *fakeCollection) ResumeMutators(binding.TLS) {}
func (c *fakeCollection) BlockForGC(binding.TLS)     {}
func (c *fakeCollection) SpawnGCThread(tls binding.TLS, kind binding.GCThreadKind, run func()) {
	go run()
}
func (c *fakeCollection) OutOfMemory(tls binding.TLS, kind binding.OutOfMemoryKind) {
	c.mu.Lock()
	c.oomKinds = append(c.oomKinds, kind)
	c.mu.Unlock()
}

var _ binding.Collection = (*fakeCollection)(nil)

type fakeActivePlan struct{}

func (fakeActivePlan) Mutators() []binding.Mutator          { return nil }
func (fakeActivePlan) MutatorOf(binding.TLS) binding.Mutator { return nil }

var _ binding.ActivePlan = fakeActivePlan{}

func baseBindings(scan *fakeScanning, col *fakeCollection) gcplan.Bindings {
	return gcplan.Bindings{
		ObjectModel: fakeObjectModel{},
		Scanning:    scan,
		Collection:  col,
		ActivePlan:  fakeActivePlan{},
	}
}

func TestInitRejectsMissingCoreBindings(t *testing.T) {
	_, err := gcplan.Init(options.Default(), gcplan.Bindings{})
	require.Error(t, err)
}

func TestInitRejectsSemiSpaceWithoutCopyContext(t *testing.T) {
	scan := &fakeScanning{graph: map[address.Address][]address.Address{}}
	col := &fakeCollection{}
	opts := options.Default()
	opts.Plan = options.PlanSemiSpace
	_, err := gcplan.Init(opts, baseBindings(scan, col))
	require.Error(t, err)
}

func TestInitBuildsEveryPlanKind(t *testing.T) {
	for _, kind := range []options.PlanKind{
		options.PlanSemiSpace,
		options.PlanMarkSweep,
		options.PlanMarkCompact,
		options.PlanImmix,
		options.PlanGenCopy,
	} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			scan := &fakeScanning{graph: map[address.Address][]address.Address{}}
			col := &fakeCollection{}
			vm := baseBindings(scan, col)
			switch kind {
			case options.PlanSemiSpace, options.PlanImmix, options.PlanGenCopy:
				vm.CopyContext = newFakeCopyContext()
			case options.PlanMarkCompact:
				vm.Mover = func(old, new address.Address, size uint64) {}
			}
			opts := options.Default()
			opts.Plan = kind
			opts.HeapSizeBytes = 32 << 20
			if kind == options.PlanGenCopy {
				opts.NurserySizeBytes = 4 << 20
			}
			in, err := gcplan.Init(opts, vm)
			require.NoError(t, err)
			require.NotNil(t, in)
		})
	}
}

func TestBindAndDestroyMutator(t *testing.T) {
	scan := &fakeScanning{graph: map[address.Address][]address.Address{}}
	col := &fakeCollection{}
	opts := options.Default()
	opts.Plan = options.PlanMarkSweep
	in, err := gcplan.Init(opts, baseBindings(scan, col))
	require.NoError(t, err)

	m := in.BindMutator("thread-1")
	require.NotNil(t, m)

	require.NoError(t, in.DestroyMutator(m))
	require.Error(t, in.DestroyMutator(m), "destroying an already-unbound mutator must fail")
	require.Error(t, in.DestroyMutator(nil))
}

func TestMarkSweepAllocPostAllocAndUserCollectionCycle(t *testing.T) {
	scan := &fakeScanning{graph: map[address.Address][]address.Address{}}
	col := &fakeCollection{}
	opts := options.Default()
	opts.Plan = options.PlanMarkSweep
	opts.HeapSizeBytes = 16 << 20
	opts.NumWorkers = 2

	in, err := gcplan.Init(opts, baseBindings(scan, col))
	require.NoError(t, err)

	in.InitializeCollection("main")
	mutator := in.BindMutator("main")
	col.addMutator("main")

	live := in.Alloc(mutator, 32, 8, 0, binding.Default)
	require.False(t, live.IsZero())
	in.PostAlloc(mutator, live.ToObjectReference(), 32, binding.Default)

	garbage := in.Alloc(mutator, 32, 8, 0, binding.Default)
	require.False(t, garbage.IsZero())
	in.PostAlloc(mutator, garbage.ToObjectReference(), 32, binding.Default)

	scan.setRoots(live)

	done := make(chan struct{})
	go func() {
		in.HandleUserCollectionRequest("main")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("user-requested collection did not complete")
	}

	ref, ok := in.IsMMTkObject(live)
	require.True(t, ok, "the rooted survivor must still report as a live object")
	require.Equal(t, live.ToObjectReference(), ref)
}

func TestSemiSpaceCycleForwardsRootedSurvivor(t *testing.T) {
	scan := &fakeScanning{graph: map[address.Address][]address.Address{}}
	col := &fakeCollection{}
	vm := baseBindings(scan, col)
	vm.CopyContext = newFakeCopyContext()

	opts := options.Default()
	opts.Plan = options.PlanSemiSpace
	opts.HeapSizeBytes = 16 << 20
	opts.NumWorkers = 2

	in, err := gcplan.Init(opts, vm)
	require.NoError(t, err)

	in.InitializeCollection("main")
	mutator := in.BindMutator("main")
	col.addMutator("main")

	live := in.Alloc(mutator, 32, 8, 0, binding.Default)
	require.False(t, live.IsZero())
	scan.setRoots(live)

	done := make(chan struct{})
	go func() {
		in.HandleUserCollectionRequest("main")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("user-requested collection did not complete")
	}

	require.Empty(t, col.oomKinds)
}
