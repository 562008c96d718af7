package sidemeta_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/internal/sys"
	"github.com/gopherheap/gcplan/sidemeta"
)

const heapBytes = 16 << 20 // 16 MiB covered by metadata in these tests

func newStore(t *testing.T, logBits, logRegion uint) *sidemeta.Store {
	t.Helper()
	spec := sidemeta.Spec{Name: "test", LogNumOfBits: logBits, LogBytesInRegion: logRegion}
	s := sidemeta.NewStore(spec, address.Address(0), heapBytes)
	s.Commit(address.Address(0), heapBytes)
	return s
}

func TestLoadStoreRoundTrip(t *testing.T) {
	s := newStore(t, 0, sys.PageShift) // 1 bit per page
	addr := address.Address(3 * sys.PageSize)
	require.Equal(t, uint64(0), s.Load(addr))
	s.Store(addr, 1)
	require.Equal(t, uint64(1), s.Load(addr))
	// neighbouring regions unaffected
	require.Equal(t, uint64(0), s.Load(addr.Add(sys.PageSize)))
}

func TestLoadAtomicAfterStoreAtomic(t *testing.T) {
	s := newStore(t, 3, sys.PageShift) // 8 bits per page, byte-granular mark byte
	addr := address.Address(7 * sys.PageSize)
	s.StoreAtomic(addr, 0x5a)
	require.Equal(t, uint64(0x5a), s.LoadAtomic(addr))
}

func TestCompareAndSwap(t *testing.T) {
	s := newStore(t, 1, sys.PageShift) // 2-bit forwarding-state-sized spec
	addr := address.Address(0)
	require.True(t, s.CompareAndSwap(addr, 0, 2))
	require.Equal(t, uint64(2), s.Load(addr))
	require.False(t, s.CompareAndSwap(addr, 0, 3), "stale expected value must fail")
	require.True(t, s.CompareAndSwap(addr, 2, 3))
}

func TestFetchAddWraps(t *testing.T) {
	s := newStore(t, 2, sys.PageShift) // 4-bit counter, max value 15
	addr := address.Address(0)
	s.Store(addr, 15)
	old := s.FetchAdd(addr, 2)
	require.Equal(t, uint64(15), old)
	require.Equal(t, uint64(1), s.Load(addr), "4-bit counter must wrap modulo 16")
}

func TestBzeroAndBcopy(t *testing.T) {
	src := newStore(t, 3, sys.PageShift)
	dst := newStore(t, 3, sys.PageShift)
	for i := 0; i < 4; i++ {
		src.Store(address.Address(uintptr(i)*sys.PageSize), uint64(i+1))
	}
	dst.Bcopy(src, address.Address(0), 4*sys.PageSize)
	for i := 0; i < 4; i++ {
		require.Equal(t, uint64(i+1), dst.Load(address.Address(uintptr(i)*sys.PageSize)))
	}
	dst.Bzero(address.Address(0), 4*sys.PageSize)
	for i := 0; i < 4; i++ {
		require.Equal(t, uint64(0), dst.Load(address.Address(uintptr(i)*sys.PageSize)))
	}
}

func TestUnmappedAccessPanics(t *testing.T) {
	spec := sidemeta.Spec{Name: "uncommitted", LogNumOfBits: 0, LogBytesInRegion: sys.PageShift}
	s := sidemeta.NewStore(spec, address.Address(0), heapBytes)
	require.Panics(t, func() { s.Load(address.Address(0)) })
}

func TestOutOfRangeAccessPanics(t *testing.T) {
	s := newStore(t, 0, sys.PageShift)
	require.Panics(t, func() { s.Load(address.Address(heapBytes + sys.PageSize)) })
}

func TestConcurrentCompareAndSwapExactlyOneWinnerPerRegion(t *testing.T) {
	s := newStore(t, 2, sys.PageShift)
	addr := address.Address(0)

	const n = 64
	var wins atomic64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if s.CompareAndSwap(addr, 0, 1) {
				wins.add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.load())
}

// atomic64 avoids importing sync/atomic twice under a different alias in
// the test file; it's a minimal int64 counter.
type atomic64 struct {
	mu sync.Mutex
	v  int64
}

func (a *atomic64) add(d int64) {
	a.mu.Lock()
	a.v += d
	a.mu.Unlock()
}

func (a *atomic64) load() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

func TestContextLayoutNoOverlap(t *testing.T) {
	ctx := sidemeta.NewContext(address.Address(0), heapBytes)
	markBit := ctx.AddLocal(sidemeta.Spec{Name: "mark-bit", LogNumOfBits: 0, LogBytesInRegion: sys.PageShift})
	fwdBits := ctx.AddLocal(sidemeta.Spec{Name: "forwarding-bits", LogNumOfBits: 1, LogBytesInRegion: sys.PageShift})
	voBit := ctx.AddGlobal(sidemeta.Spec{Name: "vo-bit", LogNumOfBits: 0, LogBytesInRegion: sys.PageShift})

	require.NoError(t, ctx.Validate())
	require.NotEqual(t, markBit.Offset(), fwdBits.Offset())
	require.Equal(t, uint64(0), voBit.Offset(), "first global spec starts at offset 0")

	ctx.Commit(address.Address(0), heapBytes)
	store := ctx.Store("forwarding-bits")
	store.Store(address.Address(0), 2)
	require.Equal(t, uint64(2), store.Load(address.Address(0)))
}
