package telemetry_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/internal/telemetry"
)

func TestParseLevelAcceptsEveryConfiguredName(t *testing.T) {
	names := []string{"emergency", "alert", "critical", "error", "warning", "notice", "info", "", "debug", "trace"}
	for _, n := range names {
		_, err := telemetry.ParseLevel(n)
		require.NoError(t, err, "name %q", n)
	}
}

func TestParseLevelRejectsUnknownName(t *testing.T) {
	_, err := telemetry.ParseLevel("verbose")
	require.Error(t, err)
}

func TestLogGCCycleWritesAStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	log, err := telemetry.NewFromLevelName(&buf, "info")
	require.NoError(t, err)

	telemetry.LogGCCycle(log, telemetry.GCCycleFields{
		Kind:       "semispace",
		Attempt:    1,
		MaxAttempt: 1,
		Emergency:  false,
		FullHeap:   true,
	})

	out := buf.String()
	require.Contains(t, out, "gc cycle complete")
	require.True(t, strings.Contains(out, "semispace"))
}

func TestLogAllocationFailureWritesAWarning(t *testing.T) {
	var buf bytes.Buffer
	log, err := telemetry.NewFromLevelName(&buf, "debug")
	require.NoError(t, err)

	telemetry.LogAllocationFailure(log, 4096, 2, 4)

	out := buf.String()
	require.Contains(t, out, "allocation failed")
}
