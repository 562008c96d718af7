package lfstack_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/lfstack"
)

func TestPushPopOrder(t *testing.T) {
	var s lfstack.Stack[int]
	require.True(t, s.Empty())

	s.Push(1)
	s.Push(2)
	s.Push(3)
	require.False(t, s.Empty())

	for _, want := range []int{3, 2, 1} {
		got, ok := s.Pop()
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := s.Pop()
	require.False(t, ok)
	require.True(t, s.Empty())
}

func TestConcurrentPushPop(t *testing.T) {
	var s lfstack.Stack[int]
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			s.Push(i)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for i := 0; i < n; i++ {
		v, ok := s.Pop()
		require.True(t, ok)
		require.False(t, seen[v], "value popped twice")
		seen[v] = true
	}
	_, ok := s.Pop()
	require.False(t, ok)
	require.Len(t, seen, n)
}
