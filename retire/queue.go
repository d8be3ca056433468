// Package retire defers destruction of GPU resources until every frame that
// might still read them has retired.
//
// Each entry carries its own fence value. Values complete in submission
// order on one queue, but entries are not necessarily retired with
// increasing values (a resource can be replaced mid-frame with a later value
// than the one queued after it), so DrainReady checks every entry rather
// than stopping at the first one that is not ready.
package retire

import (
	"sync"
)

// Resource is anything that owns GPU memory or handles.
type Resource interface {
	Destroy()
}

// ResourceFunc adapts a plain function to Resource.
type ResourceFunc func()

// Destroy calls f.
func (f ResourceFunc) Destroy() { f() }

// Completer reports the highest completed fence value. fence.Counter
// implements it.
type Completer interface {
	Completed() uint64
}

type entry struct {
	res   Resource
	after uint64
}

// Queue is a deletion queue keyed by fence value. It is safe for concurrent
// use.
type Queue struct {
	src Completer

	mu      sync.Mutex
	entries []entry
	retired uint64
}

// NewQueue creates a queue that consults src for the completed value.
func NewQueue(src Completer) *Queue {
	return &Queue{src: src}
}

// Retire hands r to the queue. It is destroyed once the completed value
// reaches after. The caller must not use r again.
func (q *Queue) Retire(r Resource, after uint64) {
	if r == nil {
		return
	}
	q.mu.Lock()
	q.entries = append(q.entries, entry{res: r, after: after})
	q.mu.Unlock()
}

// DrainReady destroys every entry whose fence value has been reached and
// returns how many were destroyed. Entries still pending keep their
// insertion order.
func (q *Queue) DrainReady() int {
	completed := q.src.Completed()

	q.mu.Lock()
	var ready []Resource
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.after <= completed {
			ready = append(ready, e.res)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = entry{}
	}
	q.entries = kept
	q.retired += uint64(len(ready))
	q.mu.Unlock()

	// Destroy outside the lock; destructors may retire more resources.
	for _, r := range ready {
		r.Destroy()
	}
	return len(ready)
}

// Flush destroys every entry regardless of its fence value and returns how
// many were destroyed. Only call it once the device is idle.
func (q *Queue) Flush() int {
	q.mu.Lock()
	all := q.entries
	q.entries = nil
	q.retired += uint64(len(all))
	q.mu.Unlock()

	for _, e := range all {
		e.res.Destroy()
	}
	return len(all)
}

// Len returns the number of entries waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// MaxPending returns the highest fence value any waiting entry needs, or 0
// when the queue is empty.
func (q *Queue) MaxPending() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	var hi uint64
	for _, e := range q.entries {
		if e.after > hi {
			hi = e.after
		}
	}
	return hi
}

// Retired returns the total number of resources destroyed by the queue.
func (q *Queue) Retired() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retired
}
