// Package sys holds the small set of word-size and region-size constants
// that the rest of the collector derives its arithmetic from, mirroring
// the role of runtime/internal/sys in the host Go runtime.
package sys

import "unsafe"

const (
	// PtrSize is the size in bytes of a pointer-sized word on this platform.
	PtrSize = 8 << (^uintptr(0) >> 63)

	// PageShift/PageSize match the granularity the side-metadata plane and
	// the chunk/block/line region hierarchy build on top of.
	PageShift = 12
	PageSize  = 1 << PageShift

	// LogBitsInByte is log2(8), used throughout sidemeta's shift arithmetic.
	LogBitsInByte = 3
)

// WordSize reports unsafe.Sizeof(uintptr(0)) as an int, for call sites that
// want it without importing unsafe themselves.
func WordSize() int {
	return int(unsafe.Sizeof(uintptr(0)))
}
