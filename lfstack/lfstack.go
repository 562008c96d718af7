// Package lfstack implements a lock-free LIFO stack for handing values
// between threads without a mutex. No other package in this module
// imports it.
//
// It is a generics reimplementation of the host Go runtime's lfstack.go: the
// original packs a *node and a push counter into a single uint64 to dodge
// ABA and to avoid a GC-visible pointer field, a trick that depends on the
// runtime's own address-space layout and manual memory management. Ordinary
// Go code has no such license, so this version CASes a sync/atomic
// atomic.Pointer[node[T]] and allocates a fresh node per pushed value; the
// Go garbage collector never reuses a node's memory while a Pop still
// holds it, which is what keeps the CAS free of ABA. Each node also
// records a push generation number, which Push and Pop never compare.
package lfstack

import "sync/atomic"

type node[T any] struct {
	next *node[T]
	gen  uint64
	val  T
}

// Stack is the head of a lock-free LIFO stack of T values. The zero value
// is an empty stack and is ready to use.
type Stack[T any] struct {
	top atomic.Pointer[node[T]]
	gen atomic.Uint64
}

// Push places v on top of the stack.
func (s *Stack[T]) Push(v T) {
	n := &node[T]{val: v, gen: s.gen.Add(1)}
	for {
		old := s.top.Load()
		n.next = old
		if s.top.CompareAndSwap(old, n) {
			return
		}
	}
}

// Pop removes and returns the top of the stack. ok is false if the stack
// was empty.
func (s *Stack[T]) Pop() (v T, ok bool) {
	for {
		old := s.top.Load()
		if old == nil {
			return v, false
		}
		if s.top.CompareAndSwap(old, old.next) {
			return old.val, true
		}
	}
}

// Empty reports whether the stack currently has no elements. Like the
// teacher's lfstack.empty, this is a snapshot: a concurrent Push/Pop can
// invalidate it immediately after the call returns.
func (s *Stack[T]) Empty() bool {
	return s.top.Load() == nil
}
