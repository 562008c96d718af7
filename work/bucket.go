package work

import (
	"container/heap"
	"sync"
)

// DefaultPriority is the priority ordinary Add calls use.
const DefaultPriority = 0

// LatePriority is the elevated priority Worker.AddWork uses when it must
// push directly to a bucket that isn't active yet, per spec.md §4.4:
// "pushes directly to the bucket with a priority 1000 (higher than
// normal)".
const LatePriority = 1000

// Bucket is a prioritized queue of packets tagged with an activation state,
// plus an optional sentinel packet added exactly once when the bucket
// first becomes the active frontier and is about to drain, per spec.md
// §4.4.
//
// A bucket does not own its own mutex: it locks the Scheduler-wide monitor
// mutex it was built with, the same one parkAndWait holds while checking
// hasWorkLocked. Sharing one mutex across every bucket and the parking
// logic is what makes "re-check under the lock, then Cond.Wait" race-free;
// giving each bucket an independent mutex would reopen the lost-wakeup
// window it exists to close.
type Bucket[MMTK any] struct {
	mu       *sync.Mutex
	monitor  *sync.Cond
	active   bool
	heap     packetHeap[MMTK]
	seq      uint64
	sentinel Packet[MMTK]
	sentinelAdded bool
	sentinelSet   bool
}

// NewBucket creates an inactive, empty bucket sharing mu/monitor with
// every other bucket in the same Scheduler.
func NewBucket[MMTK any](mu *sync.Mutex, monitor *sync.Cond) *Bucket[MMTK] {
	return &Bucket[MMTK]{mu: mu, monitor: monitor}
}

// Add inserts packet at the given priority and notifies the monitor.
func (b *Bucket[MMTK]) Add(priority int, packet Packet[MMTK]) {
	b.mu.Lock()
	b.seq++
	heap.Push(&b.heap, entry[MMTK]{priority: priority, seq: b.seq, packet: packet})
	b.mu.Unlock()
	b.monitor.Broadcast()
}

// AddDefault is Add(DefaultPriority, packet).
func (b *Bucket[MMTK]) AddDefault(packet Packet[MMTK]) { b.Add(DefaultPriority, packet) }

// Poll pops the highest-priority packet if the bucket is active and
// non-empty. If popping drains the queue and a sentinel was set but not yet
// added, the sentinel is injected and returned instead, implementing "a
// sentinel packet added once on first drain".
func (b *Bucket[MMTK]) Poll() (Packet[MMTK], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil, false
	}
	if b.heap.Len() == 0 {
		if b.sentinelSet && !b.sentinelAdded {
			b.sentinelAdded = true
			return b.sentinel, true
		}
		return nil, false
	}
	e := heap.Pop(&b.heap).(entry[MMTK])
	return e.packet, true
}

// Activate flips the bucket active and notifies the monitor.
func (b *Bucket[MMTK]) Activate() {
	b.mu.Lock()
	b.active = true
	b.mu.Unlock()
	b.monitor.Broadcast()
}

// Deactivate flips the bucket inactive and notifies the monitor (workers
// parked on it need to re-check their exit condition).
func (b *Bucket[MMTK]) Deactivate() {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()
	b.monitor.Broadcast()
}

// IsActive reports the current activation flag.
func (b *Bucket[MMTK]) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetSentinel records packet to be added exactly once, the next time the
// bucket's queue drains while active.
func (b *Bucket[MMTK]) SetSentinel(packet Packet[MMTK]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sentinel = packet
	b.sentinelSet = true
	b.sentinelAdded = false
}

// IsDrained reports whether the bucket's queue is empty AND its sentinel
// (if any) has already been handed out, per spec.md §4.4's definition.
func (b *Bucket[MMTK]) IsDrained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heap.Len() == 0 && (!b.sentinelSet || b.sentinelAdded)
}

// reset clears activation, queue contents, and sentinel state, for re-use
// across GC cycles or after prepare_to_fork/after_fork.
func (b *Bucket[MMTK]) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	b.heap = nil
	b.sentinel = nil
	b.sentinelSet = false
	b.sentinelAdded = false
}

// packetHeap is a container/heap.Interface max-heap over entry.priority,
// with insertion order as the tiebreaker.
type packetHeap[MMTK any] []entry[MMTK]

func (h packetHeap[MMTK]) Len() int { return len(h) }
func (h packetHeap[MMTK]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority // max-heap: higher priority first
	}
	return h[i].seq < h[j].seq
}
func (h packetHeap[MMTK]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *packetHeap[MMTK]) Push(x any) { *h = append(*h, x.(entry[MMTK])) }

func (h *packetHeap[MMTK]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
