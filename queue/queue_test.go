package queue_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/address"
	"github.com/gopherheap/gcplan/queue"
	"github.com/gopherheap/gcplan/work"
)

func TestVectorQueue(t *testing.T) {
	q := queue.NewVectorQueue[int](2)
	require.False(t, q.IsFull())
	q.Push(1)
	require.Equal(t, 1, q.Len())
	q.Push(2)
	require.True(t, q.IsFull())

	got := q.Take()
	require.Equal(t, []int{1, 2}, got)
	require.Equal(t, 0, q.Len())
	require.False(t, q.IsFull())

	require.Nil(t, q.Take())
}

type mmtk struct{}

// runOneShot drives a scheduler+coordinator cycle scheduling a single
// initial packet, then blocks until the cycle (and any packets it
// transitively schedules) fully drains.
func runOneShot(t *testing.T, initial func(s *work.Scheduler[*mmtk])) {
	t.Helper()
	sched := work.NewScheduler[*mmtk](2)
	coord := work.NewCoordinator[*mmtk](sched, func(s *work.Scheduler[*mmtk], m *mmtk) {
		initial(s)
	})
	sched.Start(&mmtk{})
	go coord.Run(&mmtk{})

	coord.RequestGC()

	done := make(chan struct{})
	go func() {
		coord.WaitDone()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GC cycle did not complete")
	}
	coord.Stop()
	sched.PrepareToFork()
}

// fakeProcessor marks every slot's referenced object exactly once and
// "discovers" a fixed, decreasing chain of successor edges so the
// transitive closure terminates.
type fakeProcessor struct {
	mu      sync.Mutex
	visited map[address.Address]bool
	chain   map[address.Address]address.Address // edge -> next edge to discover, if any
}

func (p *fakeProcessor) ProcessEdge(mmtk *mmtk, slot queue.Edge) (address.ObjectReference, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref := slot.ToObjectReference()
	first := !p.visited[slot]
	p.visited[slot] = true
	return ref, first
}

func (p *fakeProcessor) ScanObject(mmtk *mmtk, obj address.ObjectReference, visitor *queue.ObjectsClosure[*mmtk]) {
	p.mu.Lock()
	next, ok := p.chain[obj.ToAddress()]
	p.mu.Unlock()
	if ok {
		visitor.VisitSlot(next)
	}
}

func TestProcessEdgesWorkTransitiveClosure(t *testing.T) {
	a := address.Address(0x1000)
	b := address.Address(0x2000)
	c := address.Address(0x3000)

	proc := &fakeProcessor{
		visited: map[address.Address]bool{},
		chain:   map[address.Address]address.Address{a: b, b: c},
	}

	var factory queue.PacketFactory[*mmtk]
	factory = func(edges []queue.Edge) work.Packet[*mmtk] {
		return queue.NewProcessEdgesWork[*mmtk](edges, proc, work.Closure, factory, 16)
	}

	runOneShot(t, func(s *work.Scheduler[*mmtk]) {
		s.Bucket(work.Closure).AddDefault(queue.NewProcessEdgesWork[*mmtk](
			[]queue.Edge{a}, proc, work.Closure, factory, 16,
		))
	})

	require.True(t, proc.visited[a])
	require.True(t, proc.visited[b])
	require.True(t, proc.visited[c])
}

type fakeTracer struct {
	mu      sync.Mutex
	visited map[address.ObjectReference]bool
	chain   map[address.ObjectReference]address.ObjectReference
}

func (tr *fakeTracer) TraceObject(mmtk *mmtk, obj address.ObjectReference) (address.ObjectReference, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	first := !tr.visited[obj]
	tr.visited[obj] = true
	return obj, first
}

func (tr *fakeTracer) ScanObject(mmtk *mmtk, obj address.ObjectReference, discovered *queue.VectorQueue[address.ObjectReference]) {
	tr.mu.Lock()
	next, ok := tr.chain[obj]
	tr.mu.Unlock()
	if ok {
		discovered.Push(next)
	}
}

func TestConcurrentTraceObjectsDefersDuringFinalMark(t *testing.T) {
	o1 := address.Address(0x10).ToObjectReference()
	o2 := address.Address(0x20).ToObjectReference()

	tracer := &fakeTracer{
		visited: map[address.ObjectReference]bool{},
		chain:   map[address.ObjectReference]address.ObjectReference{o1: o2},
	}
	var pause atomic.Int32
	pause.Store(int32(queue.FinalMark))

	runOneShot(t, func(s *work.Scheduler[*mmtk]) {
		s.Bucket(work.Closure).AddDefault(queue.NewConcurrentTraceObjects[*mmtk](
			[]address.ObjectReference{o1}, tracer, &pause, work.Closure, 16,
		))
	})

	require.True(t, tracer.visited[o1])
	require.False(t, tracer.visited[o2], "final-mark pause must defer recursive scanning")
}

func TestConcurrentTraceObjectsFollowsDuringInitialMark(t *testing.T) {
	o1 := address.Address(0x10).ToObjectReference()
	o2 := address.Address(0x20).ToObjectReference()

	tracer := &fakeTracer{
		visited: map[address.ObjectReference]bool{},
		chain:   map[address.ObjectReference]address.ObjectReference{o1: o2},
	}
	var pause atomic.Int32
	pause.Store(int32(queue.InitialMark))

	runOneShot(t, func(s *work.Scheduler[*mmtk]) {
		s.Bucket(work.Closure).AddDefault(queue.NewConcurrentTraceObjects[*mmtk](
			[]address.ObjectReference{o1}, tracer, &pause, work.Closure, 16,
		))
	})

	require.True(t, tracer.visited[o1])
	require.True(t, tracer.visited[o2])
}
