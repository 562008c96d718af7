package work_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gopherheap/gcplan/work"
)

type mmtk struct{}

type recorder struct {
	mu    sync.Mutex
	order []work.Stage
}

func (r *recorder) record(s work.Stage) {
	r.mu.Lock()
	r.order = append(r.order, s)
	r.mu.Unlock()
}

type recordPacket struct {
	stage work.Stage
	rec   *recorder
}

func (p recordPacket) Name() string { return "record:" + p.stage.String() }
func (p recordPacket) DoWork(w *work.Worker[*mmtk], m *mmtk) {
	p.rec.record(p.stage)
}

func TestBucketPriorityAndSentinel(t *testing.T) {
	var mu sync.Mutex
	b := work.NewBucket[*mmtk](&mu, sync.NewCond(&mu))
	b.Activate()

	b.Add(0, recordPacket{stage: work.Closure})
	b.Add(5, recordPacket{stage: work.Prepare}) // higher priority, should pop first
	b.SetSentinel(recordPacket{stage: work.Final})

	p1, ok := b.Poll()
	require.True(t, ok)
	require.Equal(t, work.Prepare, p1.(recordPacket).stage)

	p2, ok := b.Poll()
	require.True(t, ok)
	require.Equal(t, work.Closure, p2.(recordPacket).stage)

	require.False(t, b.IsDrained(), "sentinel not yet handed out")
	p3, ok := b.Poll()
	require.True(t, ok)
	require.Equal(t, work.Final, p3.(recordPacket).stage)
	require.True(t, b.IsDrained())

	_, ok = b.Poll()
	require.False(t, ok)
}

func TestSchedulerStageOrder(t *testing.T) {
	sched := work.NewScheduler[*mmtk](4)
	rec := &recorder{}

	schedule := func(s *work.Scheduler[*mmtk], m *mmtk) {
		for st := work.Stage(0); int(st) < work.NumStages; st++ {
			s.Bucket(st).AddDefault(recordPacket{stage: st, rec: rec})
		}
	}
	coord := work.NewCoordinator[*mmtk](sched, schedule)

	sched.Start(&mmtk{})
	go coord.Run(&mmtk{})

	coord.RequestGC()
	coord.WaitDone()
	coord.Stop()
	sched.PrepareToFork()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.order, work.NumStages)
	for i, st := range rec.order {
		require.Equal(t, work.Stage(i), st, "stage %d ran out of order", i)
	}
}

func TestForkAndRejoin(t *testing.T) {
	sched := work.NewScheduler[*mmtk](4)
	sched.Start(&mmtk{})

	done := make(chan struct{})
	go func() {
		sched.PrepareToFork()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("PrepareToFork did not observe all workers exit")
	}

	sched.AfterFork(&mmtk{}, 4)
	require.Equal(t, 4, sched.NumWorkers())

	rec := &recorder{}
	schedule := func(s *work.Scheduler[*mmtk], m *mmtk) {
		s.Bucket(work.Unconstrained).AddDefault(recordPacket{stage: work.Unconstrained, rec: rec})
	}
	coord := work.NewCoordinator[*mmtk](sched, schedule)
	go coord.Run(&mmtk{})
	coord.RequestGC()
	coord.WaitDone()
	coord.Stop()
	sched.PrepareToFork()

	require.Len(t, rec.order, 1)
}
