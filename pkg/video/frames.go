package video

import (
	"container/heap"

	"github.com/sirupsen/logrus"
)

// TimedFrame is a decoded frame tagged with the loop generation it was
// decoded in and its presentation timestamp in seconds.
type TimedFrame struct {
	Buffer     *FrameHandle
	Generation uint32
	Timestamp  float64
}

// FrameKey is the ordering key of a TimedFrame.
type FrameKey struct {
	Generation uint32
	Timestamp  float64
}

// Key returns the frame's ordering key.
func (f *TimedFrame) Key() FrameKey {
	return FrameKey{Generation: f.Generation, Timestamp: f.Timestamp}
}

// Less orders by generation first and timestamp second.
func (k FrameKey) Less(o FrameKey) bool {
	if k.Generation != o.Generation {
		return k.Generation < o.Generation
	}
	return k.Timestamp < o.Timestamp
}

// Release returns the frame's buffer to its pool.
func (f *TimedFrame) Release() {
	if f != nil && f.Buffer != nil {
		f.Buffer.Release()
	}
}

// frameHeap is a min-heap over FrameKey.
type frameHeap []*TimedFrame

func (h frameHeap) Len() int           { return len(h) }
func (h frameHeap) Less(i, j int) bool { return h[i].Key().Less(h[j].Key()) }
func (h frameHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *frameHeap) Push(x any) { *h = append(*h, x.(*TimedFrame)) }

func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	f := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return f
}

// OrderedFrameQueue keeps decoded frames ordered by (generation, timestamp)
// and suppresses duplicate keys. It is not safe for concurrent use; the
// pipeline guards it with its own mutex.
type OrderedFrameQueue struct {
	frames frameHeap
	keys   map[FrameKey]struct{}
}

// NewOrderedFrameQueue creates a queue with room for capacity frames before
// its backing storage grows.
func NewOrderedFrameQueue(capacity int) *OrderedFrameQueue {
	return &OrderedFrameQueue{
		frames: make(frameHeap, 0, capacity),
		keys:   make(map[FrameKey]struct{}, capacity),
	}
}

// Push inserts frame. It reports false and leaves the queue untouched when a
// frame with the same key is already queued; the rejected frame still owns
// its buffer and the caller must release it.
func (q *OrderedFrameQueue) Push(frame *TimedFrame) bool {
	key := frame.Key()
	if _, dup := q.keys[key]; dup {
		logrus.WithFields(logrus.Fields{
			"component":  "frame_queue",
			"generation": key.Generation,
			"timestamp":  key.Timestamp,
		}).Warn("Frame already queued, skipping push")
		return false
	}

	q.keys[key] = struct{}{}
	heap.Push(&q.frames, frame)
	return true
}

// Pop removes and returns the frame with the smallest key, or nil when the
// queue is empty.
func (q *OrderedFrameQueue) Pop() *TimedFrame {
	if len(q.frames) == 0 {
		return nil
	}
	f := heap.Pop(&q.frames).(*TimedFrame)
	delete(q.keys, f.Key())
	return f
}

// Peek returns the frame Pop would return without removing it.
func (q *OrderedFrameQueue) Peek() *TimedFrame {
	if len(q.frames) == 0 {
		return nil
	}
	return q.frames[0]
}

// Len returns the number of queued frames.
func (q *OrderedFrameQueue) Len() int {
	return len(q.frames)
}

// IsEmpty reports whether no frames are queued.
func (q *OrderedFrameQueue) IsEmpty() bool {
	return len(q.frames) == 0
}

// Clear drops every queued frame and releases its buffer back to the pool.
func (q *OrderedFrameQueue) Clear() {
	for _, f := range q.frames {
		f.Release()
	}
	q.frames = q.frames[:0]
	clear(q.keys)
}
