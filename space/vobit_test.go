package space_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/space"
)

func TestVOBitTableReportsExactObjectStartsOnly(t *testing.T) {
	base := address.Address(0x1000)
	tbl := space.NewVOBitTable(base, testHeapBytes)
	tbl.Commit(base, testHeapBytes)

	objA := base.Add(64)
	tbl.Set(objA)

	ref, ok := tbl.IsMMTkObject(objA)
	require.True(t, ok)
	require.Equal(t, objA.ToObjectReference(), ref)

	_, ok = tbl.IsMMTkObject(base.Add(512))
	require.False(t, ok)

	_, ok = tbl.IsMMTkObject(address.Address(0))
	require.False(t, ok, "an address outside the declared range must never report an object")
}

func TestVOBitTableClearRemovesTheRecord(t *testing.T) {
	base := address.Address(0x2000)
	tbl := space.NewVOBitTable(base, testHeapBytes)
	tbl.Commit(base, testHeapBytes)

	obj := base.Add(128)
	tbl.Set(obj)
	_, ok := tbl.IsMMTkObject(obj)
	require.True(t, ok)

	tbl.Clear(obj)
	_, ok = tbl.IsMMTkObject(obj)
	require.False(t, ok)
}

func TestVOBitTableClearAndReconstruct(t *testing.T) {
	base := address.Address(0x3000)
	tbl := space.NewVOBitTable(base, testHeapBytes)
	tbl.Commit(base, testHeapBytes)

	stale := base.Add(64)
	tbl.Set(stale)

	live1 := base.Add(128)
	live2 := base.Add(256)
	tbl.ClearAndReconstruct(base, testHeapBytes, []address.Address{live1, live2})

	_, ok := tbl.IsMMTkObject(stale)
	require.False(t, ok, "a stale bit not present in the new live set must be cleared")
	_, ok = tbl.IsMMTkObject(live1)
	require.True(t, ok)
	_, ok = tbl.IsMMTkObject(live2)
	require.True(t, ok)
}
