// Command gcplan-harness is a smoke-test binding: it drives a SemiSpace
// instance through scenario 1 of spec.md §8 end to end — allocate a live
// object and some garbage, request a collection, confirm the live object
// was copied to a new address — printing each step to stdout. What happens
// to the garbage object is not checked.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/binding"
	"github.com/gopherheap/gcplan/gcplan"
	"github.com/gopherheap/gcplan/internal/options"
)

// toyObject is the harness's only object shape: a size-32 cell with zero
// or more outgoing edges, enough to exercise a copying trace.
type toyObject struct {
	edges []address.Address
}

// toyVM is a single-struct binding standing in for a host VM: it tracks
// every live object's edges keyed by current address (rewritten in place
// whenever Copy relocates it) and a fixed root set, and bump-allocates
// copy destinations from a range well clear of anything gcplan.Init
// carves, matching the convention gcplan_test.go's fakeCopyContext
// establishes (there is no real backing memory in this module, so the
// copy destination only needs to be a fresh, never-reused address).
type toyVM struct {
	mu          sync.Mutex
	objects     map[address.Address]*toyObject
	roots       []address.Address
	nextCopy    address.Address
	mutatorTLSs []binding.TLS
}

func newToyVM() *toyVM {
	return &toyVM{
		objects:  make(map[address.Address]*toyObject),
		nextCopy: address.Address(1 << 40),
	}
}

// --- binding.ObjectModel ---

func (vm *toyVM) ObjectStartRef(obj address.ObjectReference) address.Address { return obj.ToAddress() }
func (vm *toyVM) GetCurrentSize(address.ObjectReference) uintptr            { return 32 }
func (vm *toyVM) GetSizeWhenCopied(address.ObjectReference) uintptr         { return 32 }
func (vm *toyVM) GetAlignWhenCopied(address.ObjectReference) uintptr        { return 8 }

func (vm *toyVM) Copy(from address.ObjectReference, semantics binding.CopySemantics, ctx binding.CopyContext) address.ObjectReference {
	newAddr := ctx.AllocCopy(32, 8, 0, semantics)
	vm.mu.Lock()
	obj := vm.objects[from.ToAddress()]
	delete(vm.objects, from.ToAddress())
	vm.objects[newAddr] = obj
	vm.mu.Unlock()
	return newAddr.ToObjectReference()
}

func (vm *toyVM) RefToAddress(obj address.ObjectReference) address.Address { return obj.ToAddress() }
func (vm *toyVM) AddressToRef(addr address.Address) address.ObjectReference {
	return addr.ToObjectReference()
}

var _ binding.ObjectModel = (*toyVM)(nil)

// --- binding.CopyContext ---

func (vm *toyVM) AllocCopy(size, align, offset uintptr, semantics binding.CopySemantics) address.Address {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	addr := vm.nextCopy
	vm.nextCopy = vm.nextCopy.Add(int64(size))
	return addr
}

var _ binding.CopyContext = (*toyVM)(nil)

// --- binding.Scanning ---

func (vm *toyVM) ScanObject(tls binding.TLS, obj address.ObjectReference, visitor binding.SlotVisitor) {
	vm.mu.Lock()
	o := vm.objects[obj.ToAddress()]
	vm.mu.Unlock()
	if o == nil {
		return
	}
	for _, e := range o.edges {
		visitor.VisitSlot(e)
	}
}

func (vm *toyVM) ScanRootsInAllMutatorThreads(visitor binding.SlotVisitor) {
	vm.mu.Lock()
	roots := append([]address.Address(nil), vm.roots...)
	vm.mu.Unlock()
	for _, r := range roots {
		visitor.VisitSlot(r)
	}
}
func (vm *toyVM) ScanVMSpecificRoots(binding.SlotVisitor) {}
func (vm *toyVM) PrepareForRootsReScanning()              {}
func (vm *toyVM) SupportsReturnBarrier() bool             { return false }

var _ binding.Scanning = (*toyVM)(nil)

// --- binding.Collection ---

func (vm *toyVM) addMutator(tls binding.TLS) {
	vm.mu.Lock()
	vm.mutatorTLSs = append(vm.mutatorTLSs, tls)
	vm.mu.Unlock()
}

func (vm *toyVM) StopAllMutators(tls binding.TLS, closure func(mutatorTLS binding.TLS)) {
	vm.mu.Lock()
	mutators := append([]binding.TLS(nil), vm.mutatorTLSs...)
	vm.mu.Unlock()
	for _, m := range mutators {
		closure(m)
	}
}
func (vm *toyVM) ResumeMutators(binding.TLS) {}
func (vm *toyVM) BlockForGC(binding.TLS)     {}
func (vm *toyVM) SpawnGCThread(tls binding.TLS, kind binding.GCThreadKind, run func()) {
	go run()
}
func (vm *toyVM) OutOfMemory(tls binding.TLS, kind binding.OutOfMemoryKind) {
	fmt.Fprintf(os.Stderr, "gcplan-harness: out of memory (kind=%d)\n", kind)
	os.Exit(1)
}

var _ binding.Collection = (*toyVM)(nil)

// --- binding.ActivePlan ---

func (vm *toyVM) Mutators() []binding.Mutator           { return nil }
func (vm *toyVM) MutatorOf(binding.TLS) binding.Mutator { return nil }

var _ binding.ActivePlan = (*toyVM)(nil)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (internal/options.Load); defaults to internal/options.Default with plan=semispace")
	flag.Parse()

	opts := options.Default()
	if *configPath != "" {
		var err error
		opts, err = options.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "gcplan-harness:", err)
			os.Exit(1)
		}
	}
	// Scenario 1 is specifically about SemiSpace; override whatever the
	// config file said so this binary always demonstrates it.
	opts.Plan = options.PlanSemiSpace

	vm := newToyVM()
	in, err := gcplan.Init(opts, gcplan.Bindings{
		ObjectModel: vm,
		Scanning:    vm,
		Collection:  vm,
		ActivePlan:  vm,
		CopyContext: vm,
		LogWriter:   os.Stdout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "gcplan-harness:", err)
		os.Exit(1)
	}

	tls := "harness-main"
	in.InitializeCollection(tls)
	mutator := in.BindMutator(tls)
	vm.addMutator(tls)
	defer in.DestroyMutator(mutator)

	alloc := func(edges ...address.Address) address.Address {
		addr := in.Alloc(mutator, 32, 8, 0, binding.Default)
		vm.mu.Lock()
		vm.objects[addr] = &toyObject{edges: edges}
		vm.mu.Unlock()
		in.PostAlloc(mutator, addr.ToObjectReference(), 32, binding.Default)
		return addr
	}

	live := alloc()
	garbage := alloc()
	fmt.Printf("allocated live object at %s, garbage object at %s\n", live, garbage)

	vm.mu.Lock()
	vm.roots = []address.Address{live}
	keysBefore := make(map[address.Address]bool, len(vm.objects))
	for k := range vm.objects {
		keysBefore[k] = true
	}
	vm.mu.Unlock()

	fmt.Println("requesting collection...")
	in.HandleUserCollectionRequest(tls)

	// The live object was reachable from roots, so its Copy call
	// bump-allocated it a new home from the copy destination range; find
	// that new key to confirm it moved rather than trying to look it up
	// under its old (now-stale) address.
	vm.mu.Lock()
	var forwarded address.Address
	found := false
	for k := range vm.objects {
		if !keysBefore[k] {
			forwarded, found = k, true
			break
		}
	}
	vm.mu.Unlock()

	if !found {
		fmt.Fprintln(os.Stderr, "gcplan-harness: rooted live object was not forwarded by the cycle")
		os.Exit(1)
	}
	fmt.Printf("live object forwarded to %s\n", forwarded)

	// is_mmtk_object still reports true for the object's original address:
	// this core never clears a VO bit on reclaim (space.VOBitTable's
	// ClearAndReconstruct/CopyFromMarkBitsStrategy exist but nothing calls
	// them per cycle), so the bit PostAlloc set at the original address
	// outlives the object's move. It is not a live-forwarding lookup.
	if _, ok := in.IsMMTkObject(live); ok {
		fmt.Println("is_mmtk_object(original live address)=true (the VO bit from the original allocation, not yet cleared)")
	}

	fmt.Println("scenario 1 (semispace minimal cycle) passed")
}
