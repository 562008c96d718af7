// Package options implements the ambient configuration layer spec.md
// §4.8 leaves to the embedder: a TOML-backed Options struct loaded via
// BurntSushi/toml, with pkg/errors-wrapped validation, matching the rest
// of the pack's config-loading idiom.
package options

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// PlanKind selects which concrete plan.Plan a gcplan.Init call builds.
type PlanKind string

const (
	PlanSemiSpace   PlanKind = "semispace"
	PlanMarkSweep   PlanKind = "marksweep"
	PlanMarkCompact PlanKind = "markcompact"
	PlanImmix       PlanKind = "immix"
	PlanGenCopy     PlanKind = "gencopy"
)

// Options is the full set of tunables a binding supplies at Init time,
// per spec.md §6's "the core is configured once, at startup, by the
// binding."
type Options struct {
	// Plan selects the collection strategy.
	Plan PlanKind `toml:"plan"`

	// HeapSizeBytes is the total heap reservation. For PlanGenCopy this
	// sizes the mature space; the nursery is sized separately.
	HeapSizeBytes uint64 `toml:"heap_size_bytes"`

	// NurserySizeBytes sizes the nursery for PlanGenCopy; ignored by
	// every other plan kind.
	NurserySizeBytes uint64 `toml:"nursery_size_bytes"`

	// NumWorkers is the number of GC worker goroutines the scheduler
	// starts, per spec.md §4.4.
	NumWorkers int `toml:"num_workers"`

	// DelegatedHeapGrowth selects global.Delegated over
	// global.FixedHeapSize as the GCTriggerPolicy, per spec.md §9 Open
	// Question on heap-growth delegation.
	DelegatedHeapGrowth bool `toml:"delegated_heap_growth"`

	// MatureFullHeapRatio is PlanGenCopy's promotion-ratio trigger
	// (fraction of the mature space's capacity that forces a full-heap
	// cycle); ignored by every other plan kind. Zero defaults to 0.8.
	MatureFullHeapRatio float64 `toml:"mature_full_heap_ratio"`

	// StressFactorBytes is decoded from the config file and carried in
	// Options, but neither gcplan.Init nor the allocation path reads it:
	// setting it does not trigger any collection.
	StressFactorBytes uint64 `toml:"stress_factor_bytes"`

	// LogLevel names a telemetry.ParseLevel level.
	LogLevel string `toml:"log_level"`
}

// Default returns the configuration a harness uses absent an explicit
// config file: a single-worker SemiSpace plan over a 64 MiB heap, logging
// at info level.
func Default() Options {
	return Options{
		Plan:                PlanSemiSpace,
		HeapSizeBytes:       64 << 20,
		NumWorkers:          1,
		MatureFullHeapRatio: 0.8,
		LogLevel:            "info",
	}
}

// Load reads and validates a TOML config file at path, starting from
// Default and overriding whatever fields the file sets.
func Load(path string) (Options, error) {
	opts := Default()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, errors.Wrapf(err, "options: failed to load %s", path)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks the invariants a gcplan.Init call relies on, per
// spec.md §6's "the core MAY assume the binding validated configuration
// before Init."
func (o Options) Validate() error {
	switch o.Plan {
	case PlanSemiSpace, PlanMarkSweep, PlanMarkCompact, PlanImmix, PlanGenCopy:
	default:
		return errors.Errorf("options: unrecognized plan %q", o.Plan)
	}
	if o.HeapSizeBytes == 0 {
		return errors.New("options: heap_size_bytes must be nonzero")
	}
	if o.Plan == PlanGenCopy && o.NurserySizeBytes == 0 {
		return errors.New("options: nursery_size_bytes must be nonzero for the gencopy plan")
	}
	if o.NumWorkers <= 0 {
		return errors.New("options: num_workers must be positive")
	}
	if o.MatureFullHeapRatio < 0 || o.MatureFullHeapRatio > 1 {
		return errors.Errorf("options: mature_full_heap_ratio must be in [0,1], got %f", o.MatureFullHeapRatio)
	}
	return nil
}
