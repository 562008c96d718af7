package gcplan

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gopherheap/gcplan/binding"
)

// BindMutator implements spec.md §6's bind_mutator(tls): the binding
// calls this once per host thread before that thread may allocate.
func (in *Instance) BindMutator(tls binding.TLS) *Mutator {
	m := &Mutator{ID: uuid.New(), TLS: tls, instance: in}
	in.mutatorMu.Lock()
	in.mutators[tls] = m
	in.mutatorMu.Unlock()
	return m
}

// DestroyMutator implements spec.md §6's destroy_mutator(handle),
// unregistering a mutator a thread is no longer using.
func (in *Instance) DestroyMutator(m *Mutator) error {
	if m == nil {
		return errors.New("gcplan: DestroyMutator called with a nil Mutator")
	}
	in.mutatorMu.Lock()
	defer in.mutatorMu.Unlock()
	if in.mutators[m.TLS] != m {
		return errors.Errorf("gcplan: mutator %s is not currently bound", m.ID)
	}
	delete(in.mutators, m.TLS)
	return nil
}

// mutatorCount reports how many mutators are presently bound, used by
// runCollectionCycle as the expected number of scanned stacks.
func (in *Instance) mutatorCount() int {
	in.mutatorMu.Lock()
	defer in.mutatorMu.Unlock()
	return len(in.mutators)
}

// Mutators implements spec.md §6's notion of ActivePlan iteration from
// the core's own side: it delegates straight to the binding's
// ActivePlan.Mutators, which is authoritative over per-thread state the
// core never owns.
func (in *Instance) Mutators() []binding.Mutator { return in.ap.Mutators() }
