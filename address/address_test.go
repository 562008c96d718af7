package address_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
)

func TestAlignment(t *testing.T) {
	a := address.Address(0x1001)
	require.Equal(t, address.Address(0x1000), a.AlignDown(12))
	require.Equal(t, address.Address(0x2000), a.AlignUp(12))
	require.True(t, address.Address(0x1000).IsAligned(12))
	require.False(t, a.IsAligned(12))
}

func TestOrdering(t *testing.T) {
	a, b := address.Address(10), address.Address(20)
	require.True(t, a.LT(b))
	require.True(t, b.GT(a))
	require.True(t, a.LE(a))
	require.True(t, a.EQ(a))
	require.Equal(t, int64(-10), a.Sub(b))
}

func TestObjectReferenceRoundTrip(t *testing.T) {
	a := address.Address(0xdead0)
	ref := a.ToObjectReference()
	require.Equal(t, a, ref.ToAddress())
	require.False(t, ref.IsZero())
	require.True(t, address.ZeroObjectReference.IsZero())
}

func TestIsPowerOfTwo(t *testing.T) {
	require.True(t, address.IsPowerOfTwo(1))
	require.True(t, address.IsPowerOfTwo(4096))
	require.False(t, address.IsPowerOfTwo(0))
	require.False(t, address.IsPowerOfTwo(6))
}
