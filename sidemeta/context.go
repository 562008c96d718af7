package sidemeta

import (
	"fmt"

	"github.com/gopherheap/gcplan/address"
)

// Context groups the side-metadata specs required by one consumer (a Space
// or the global heap) and lays them out without overlap, per spec.md
// §4.1: "Global specs occupy a reserved metadata range; local (per-space)
// specs occupy a second range."
type Context struct {
	coverageBytes uint64
	rangeStart    address.Address

	globalSpecs []Spec
	localSpecs  []Spec
	stores      map[string]*Store
}

// NewContext creates a Context whose specs will all be laid out to cover
// the data address range [rangeStart, rangeStart+coverageBytes).
func NewContext(rangeStart address.Address, coverageBytes uint64) *Context {
	return &Context{
		coverageBytes: coverageBytes,
		rangeStart:    rangeStart,
		stores:        make(map[string]*Store),
	}
}

// AddGlobal registers a global spec (one shared across all spaces, e.g. the
// VO-bit table) and returns its laid-out copy.
func (c *Context) AddGlobal(spec Spec) Spec { return c.add(&c.globalSpecs, spec) }

// AddLocal registers a per-space spec (e.g. a space's own mark bits) and
// returns its laid-out copy.
func (c *Context) AddLocal(spec Spec) Spec { return c.add(&c.localSpecs, spec) }

func (c *Context) add(specs *[]Spec, spec Spec) Spec {
	var prev Spec
	if n := len(*specs); n > 0 {
		prev = (*specs)[n-1]
	}
	spec = spec.LayoutAfter(prev, c.coverageBytes)
	*specs = append(*specs, spec)
	c.stores[spec.Name] = NewStore(spec, c.rangeStart, c.coverageBytes)
	return spec
}

// Validate checks the no-overlap invariant of spec.md §4.1 for both the
// global and local spec lists independently (global specs never need to be
// disjoint from local specs: they live in separate reserved ranges).
func (c *Context) Validate() error {
	for _, specs := range [][]Spec{c.globalSpecs, c.localSpecs} {
		for i := 0; i < len(specs); i++ {
			for j := i + 1; j < len(specs); j++ {
				if specs[i].Overlaps(specs[j], c.coverageBytes) {
					return fmt.Errorf("sidemeta: spec %q overlaps spec %q", specs[i].Name, specs[j].Name)
				}
			}
		}
	}
	return nil
}

// Store returns the backing Store for a previously-added spec by name.
func (c *Context) Store(name string) *Store {
	s, ok := c.stores[name]
	if !ok {
		panic(fmt.Sprintf("sidemeta: unknown spec %q", name))
	}
	return s
}

// Commit marks every registered spec's metadata pages covering
// [start, start+bytes) as mapped. No space in this module builds a
// Context; spaces create and commit their own Stores directly.
func (c *Context) Commit(start address.Address, bytes uint64) {
	for _, s := range c.stores {
		s.Commit(start, bytes)
	}
}

// GlobalSpecs returns the laid-out global specs in registration order.
func (c *Context) GlobalSpecs() []Spec { return append([]Spec(nil), c.globalSpecs...) }

// LocalSpecs returns the laid-out local specs in registration order.
func (c *Context) LocalSpecs() []Spec { return append([]Spec(nil), c.localSpecs...) }
