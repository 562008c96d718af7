package sidemeta

import (
	"fmt"
	"sync/atomic"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
)

// Store is the backing table for a single Spec over a contiguous
// data-address range [rangeStart, rangeStart+rangeBytes). It implements the
// Load/Store/CompareAndSwap/FetchAdd/Bzero/Bcopy contract of spec.md §4.1.
//
// Storage is words of 64 bits; since NumOfBits is always a power of two in
// {1,...,64}, a region's slot never straddles a word boundary. The full
// word array for the declared range is allocated up front (Go gives us no
// way to lazily commit real pages the way mmap does), but access is gated
// page-by-page behind Commit: a Load/Store/etc. on a page that hasn't been
// Commit-ed panics, which is exactly spec.md §4.1's "an attempt to access
// unmapped metadata is a fatal error". Each space in this module calls
// Commit once, over its whole reservation, when its constructor builds
// the store.
type Store struct {
	spec       Spec
	rangeStart address.Address
	rangeBytes uint64

	words     []atomic.Uint64
	committed []atomic.Bool // one entry per sys.PageSize page of the metadata range
}

// NewStore creates a Store for spec covering the data address range
// [rangeStart, rangeStart+rangeBytes). No page is committed initially.
func NewStore(spec Spec, rangeStart address.Address, rangeBytes uint64) *Store {
	metaBytes := spec.RangeBytes(rangeBytes)
	numWords := (metaBytes + 7) / 8
	numPages := (metaBytes + sys.PageSize - 1) / sys.PageSize
	return &Store{
		spec:       spec,
		rangeStart: rangeStart,
		rangeBytes: rangeBytes,
		words:      make([]atomic.Uint64, numWords+1),
		committed:  make([]atomic.Bool, numPages+1),
	}
}

// Spec returns the spec this store backs.
func (s *Store) Spec() Spec { return s.spec }

// MetaAddress returns the byte address of the metadata word containing
// data's bits, per spec.md §4.1's address_to_meta_address formula. It's
// intended for diagnostics (e.g. dumping raw metadata state), not for the
// Load/Store path, which works in region/bit-index space directly.
func (s *Store) MetaAddress(base address.Address, data address.Address) address.Address {
	return addressToMetaAddress(base, data, s.spec)
}

// Commit marks the metadata pages backing [start, start+bytes) of the data
// address range as mapped, so subsequent Load/Store calls against those
// addresses succeed. Space constructors call this over the whole
// reservation up front; no allocation path commits further pages.
func (s *Store) Commit(start address.Address, bytes uint64) {
	metaStart := s.metaByteOffset(start)
	metaEnd := s.metaByteOffset(start.Add(int64(bytes)))
	for page := metaStart / sys.PageSize; page <= metaEnd/sys.PageSize && int(page) < len(s.committed); page++ {
		s.committed[page].Store(true)
	}
}

func (s *Store) metaByteOffset(data address.Address) uint64 {
	off := uint64(data.Sub(s.rangeStart))
	regionIdx := off >> s.spec.LogBytesInRegion
	return (regionIdx << s.spec.LogNumOfBits) / 8
}

func (s *Store) regionIndex(data address.Address) uint64 {
	if data.LT(s.rangeStart) {
		panic(fmt.Sprintf("sidemeta: %s: address %s below range start %s", s.spec.Name, data, s.rangeStart))
	}
	off := uint64(data.Sub(s.rangeStart))
	if off >= s.rangeBytes {
		panic(fmt.Sprintf("sidemeta: %s: address %s out of declared range (unmapped metadata access)", s.spec.Name, data))
	}
	metaByte := s.metaByteOffset(data)
	page := metaByte / sys.PageSize
	if int(page) >= len(s.committed) || !s.committed[page].Load() {
		panic(fmt.Sprintf("sidemeta: %s: address %s metadata page not committed (unmapped metadata access)", s.spec.Name, data))
	}
	return off >> s.spec.LogBytesInRegion
}

// bitSlot returns the word index and the bit offset within that word of
// region's slot.
func (s *Store) bitSlot(region uint64) (wordIdx int, shift uint, mask uint64) {
	numBits := s.spec.NumOfBits()
	bitIndex := region * numBits
	wordIdx = int(bitIndex / 64)
	shift = uint(bitIndex % 64)
	if numBits == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1)<<numBits - 1) << shift
	}
	return
}

// Load performs a read of the bits for data's region.
func (s *Store) Load(data address.Address) uint64 {
	region := s.regionIndex(data)
	wordIdx, shift, mask := s.bitSlot(region)
	return (s.words[wordIdx].Load() & mask) >> shift
}

// Store performs a read-modify-write of the bits for data's region via a
// CAS retry loop, so it is always race-free even though spec.md
// distinguishes it from the *Atomic variants (that distinction is about
// memory-ordering strength at the call site, not about word-level safety).
func (s *Store) Store(data address.Address, value uint64) {
	region := s.regionIndex(data)
	wordIdx, shift, mask := s.bitSlot(region)
	w := &s.words[wordIdx]
	for {
		old := w.Load()
		newWord := (old &^ mask) | ((value << shift) & mask)
		if w.CompareAndSwap(old, newWord) {
			return
		}
	}
}

// LoadAtomic is the atomic counterpart of Load.
func (s *Store) LoadAtomic(data address.Address) uint64 { return s.Load(data) }

// StoreAtomic is the atomic counterpart of Store.
func (s *Store) StoreAtomic(data address.Address, value uint64) { s.Store(data, value) }

// CompareAndSwap performs spec.md's compare_exchange_atomic: it attempts to
// transition data's bits from old to new and reports whether it won the
// race. This is the primitive the forwarding protocol (forward package) and
// mark-bit setting are built on.
func (s *Store) CompareAndSwap(data address.Address, old, new uint64) bool {
	region := s.regionIndex(data)
	wordIdx, shift, mask := s.bitSlot(region)
	w := &s.words[wordIdx]
	for {
		cur := w.Load()
		if (cur&mask)>>shift != old {
			return false
		}
		newWord := (cur &^ mask) | ((new << shift) & mask)
		if w.CompareAndSwap(cur, newWord) {
			return true
		}
	}
}

// FetchAdd atomically adds delta to data's bits and returns the prior
// value, wrapping modulo 2^NumOfBits as spec.md's fetch_add_atomic implies.
func (s *Store) FetchAdd(data address.Address, delta uint64) uint64 {
	region := s.regionIndex(data)
	wordIdx, shift, mask := s.bitSlot(region)
	numBits := s.spec.NumOfBits()
	w := &s.words[wordIdx]
	for {
		cur := w.Load()
		old := (cur & mask) >> shift
		var sum uint64
		if numBits >= 64 {
			sum = old + delta
		} else {
			sum = (old + delta) & (1<<numBits - 1)
		}
		newWord := (cur &^ mask) | ((sum << shift) & mask)
		if w.CompareAndSwap(cur, newWord) {
			return old
		}
	}
}

// FetchSub is FetchAdd(data, -delta) expressed over the spec's unsigned
// bit width.
func (s *Store) FetchSub(data address.Address, delta uint64) uint64 {
	numBits := s.spec.NumOfBits()
	if numBits >= 64 {
		return s.FetchAdd(data, -delta)
	}
	mod := uint64(1) << numBits
	return s.FetchAdd(data, (mod-(delta%mod))%mod)
}

// Bzero clears the metadata for every region covering [start, start+bytes).
func (s *Store) Bzero(start address.Address, bytes uint64) {
	regionBytes := uint64(1) << s.spec.LogBytesInRegion
	for off := uint64(0); off < bytes; off += regionBytes {
		s.Store(start.Add(int64(off)), 0)
	}
}

// Bcopy copies metadata from src's store to s for the byte range
// [start, start+bytes), requiring both stores to share the spec's bit
// width and region size ("identical geometry" per spec.md §4.1).
func (s *Store) Bcopy(src *Store, start address.Address, bytes uint64) {
	if s.spec.LogNumOfBits != src.spec.LogNumOfBits || s.spec.LogBytesInRegion != src.spec.LogBytesInRegion {
		panic("sidemeta: Bcopy requires identical geometry")
	}
	regionBytes := uint64(1) << s.spec.LogBytesInRegion
	for off := uint64(0); off < bytes; off += regionBytes {
		addr := start.Add(int64(off))
		s.Store(addr, src.Load(addr))
	}
}
