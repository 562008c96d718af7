package gcplan

import "github.com/gopherheap/gcplan/address"

// IsMMTkObject implements spec.md §7's is_mmtk_object(addr): a
// conservative scanner's candidate pointer check, answerable without
// tracing and without panicking on an address outside the heap.
func (in *Instance) IsMMTkObject(addr address.Address) (address.ObjectReference, bool) {
	return in.vobits.IsMMTkObject(addr)
}
