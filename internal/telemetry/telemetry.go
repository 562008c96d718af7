// Package telemetry wires the ambient logging stack spec.md §4.7 and §4.9
// leave to the embedder: a logiface.Logger backed by a stumpy (structured,
// allocation-light) encoder, the same pairing the rest of the pack's
// logiface-based services use.
package telemetry

import (
	"fmt"
	"io"

	"github.com/joeycumines/go-utilpkg/logiface"
	"github.com/joeycumines/go-utilpkg/logiface/stumpy"
	"github.com/pkg/errors"
)

// Logger is the concrete logger type every gcplan component logs through.
type Logger = *logiface.Logger[*stumpy.Event]

// ParseLevel maps a config-file level name (as internal/options.Options
// reads from TOML) onto logiface's syslog-derived Level scale.
func ParseLevel(name string) (logiface.Level, error) {
	switch name {
	case "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "critical":
		return logiface.LevelCritical, nil
	case "error":
		return logiface.LevelError, nil
	case "warning":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return 0, errors.Errorf("telemetry: unrecognized log level %q", name)
	}
}

// New builds a Logger writing stumpy-encoded records to w at the given
// level.
func New(w io.Writer, level logiface.Level) Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// NewFromLevelName is New, parsing level via ParseLevel, for callers (the
// options loader, the harness CLI) that only have the config string.
func NewFromLevelName(w io.Writer, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return New(w, lvl), nil
}

// GCCycleFields groups the fields every GC-cycle log line reports, per
// spec.md §4.9's "statistics: work counters, pause times, collection
// attempts" — logged, not only counted, so a single log stream gives an
// operator a readable collection history without needing a metrics
// scrape.
type GCCycleFields struct {
	Kind       string
	Attempt    uint64
	MaxAttempt uint64
	Emergency  bool
	FullHeap   bool
}

// LogGCCycle emits one structured line per completed GC cycle.
func LogGCCycle(log Logger, f GCCycleFields) {
	log.Info().
		Str("kind", f.Kind).
		Uint64("attempt", f.Attempt).
		Uint64("max_attempt", f.MaxAttempt).
		Bool("emergency", f.Emergency).
		Bool("full_heap", f.FullHeap).
		Log("gc cycle complete")
}

// LogAllocationFailure emits the line a plan logs right before escalating
// to global.GlobalState.OutOfMemory, giving an operator the collection
// history leading up to an OOM without needing to reconstruct it from a
// panic trace.
func LogAllocationFailure(log Logger, bytes uint64, attempts, maxAttempts uint64) {
	log.Warning().
		Uint64("bytes", bytes).
		Uint64("attempt", attempts).
		Uint64("max_attempt", maxAttempts).
		Log(fmt.Sprintf("allocation failed after %d attempt(s)", attempts))
}
