// Package sidemeta implements the side-metadata plane: fast, branch-free
// lookup of N bits of out-of-band state (N in {1,2,4,8,16,32,64}) per region
// of 2^k bytes, for any number of named specs, per spec.md §4.1.
//
// The design mirrors the teacher's own metadata story: mheap.go keeps mark
// bits, span state, and allocation bitmaps all addressed by shifting a data
// address, and mfixalloc.go's chunked-allocation pattern is reused here for
// lazily growing the backing storage of each spec's metadata range.
package sidemeta

import (
	"fmt"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
)

// Spec identifies one named side-metadata array: N bits per 2^LogBytesInRegion
// bytes of the data address space it covers.
type Spec struct {
	Name             string
	IsGlobal         bool
	LogNumOfBits     uint // log2(bits per region): 0..6 for {1,2,4,8,16,32,64}
	LogBytesInRegion uint // log2(region size in bytes)

	// offset is assigned by LayoutAfter; it is the byte offset into the
	// global or local metadata address space reserved for this spec.
	offset uint64
}

// NumOfBits returns the number of metadata bits assigned per region.
func (s Spec) NumOfBits() uint64 { return 1 << s.LogNumOfBits }

// Offset returns the byte offset this spec was assigned within its
// (global or local) metadata range. Valid only after LayoutAfter.
func (s Spec) Offset() uint64 { return s.offset }

// shift is the right-shift applied to a data address to compute its
// metadata-table index, per spec.md §4.1's address-mapping formula:
// shift = log_bytes_in_region + log_bits_in_byte - log_num_of_bits.
func (s Spec) shift() uint {
	return s.LogBytesInRegion + sys.LogBitsInByte - s.LogNumOfBits
}

// RangeBytes returns the number of bytes of metadata storage this spec
// requires to cover a data-address range of the given byte length.
func (s Spec) RangeBytes(dataBytes uint64) uint64 {
	bits := (dataBytes >> s.LogBytesInRegion) << s.LogNumOfBits
	return (bits + 7) / 8
}

// LayoutAfter assigns prev's successor offset to s and returns the updated
// spec, implementing the build-time concatenation spec.md §4.1 requires:
// "Specs are laid out by the build-time concatenation layout_after(previous)."
// coverageBytes is the size of the data address range the specs as a whole
// must cover (used to size prev's contribution).
func (s Spec) LayoutAfter(prev Spec, coverageBytes uint64) Spec {
	if prev.Name == "" {
		s.offset = 0
		return s
	}
	s.offset = prev.offset + prev.RangeBytes(coverageBytes)
	return s
}

// Overlaps reports whether s and other, laid out over the given coverage,
// would share any metadata bytes. Both specs must be on the same side
// (global vs local) for this to be a meaningful invariant check; callers
// enforce that separately, matching spec.md §4.1's invariant statement.
func (s Spec) Overlaps(other Spec, coverageBytes uint64) bool {
	sLo, sHi := s.offset, s.offset+s.RangeBytes(coverageBytes)
	oLo, oHi := other.offset, other.offset+other.RangeBytes(coverageBytes)
	return sLo < oHi && oLo < sHi
}

func (s Spec) String() string {
	return fmt.Sprintf("%s{global=%v bits=%d region=%d off=%d}",
		s.Name, s.IsGlobal, s.NumOfBits(), uint64(1)<<s.LogBytesInRegion, s.offset)
}

// addressToMetaAddress is the single mapping function spec.md §4.1 asks
// for: meta_addr = base + (data_addr >> shift(spec)), valid for atomic word
// accesses at the granularity LogNumOfBits implies. It's unexported because
// callers should go through Store's higher-level Load/Store operations,
// which also perform bounds/mapping checks.
func addressToMetaAddress(base address.Address, data address.Address, s Spec) address.Address {
	return base.Add(int64(uintptr(data) >> s.shift()))
}
