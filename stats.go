package framepace

import (
	"sync"
	"time"
)

// Stats is a snapshot of engine counters.
type Stats struct {
	Frames          uint64        // frames submitted
	Presented       uint64        // successful presents
	PresentFailures uint64        // presents that returned ErrPresentFailed
	BlockingWaits   uint64        // fence waits that actually blocked
	WaitTime        time.Duration // total time spent blocked on fences
	MaxWait         time.Duration // longest single wait
	Retired         uint64        // resources destroyed by the retirement queue
	PendingRetire   int           // resources waiting in the retirement queue
	InFlight        int           // slots not yet retired
	MaxInFlight     int           // highest InFlight observed after a submit
	Submitted       uint64        // highest fence value signalled
	Completed       uint64        // highest fence value completed
}

// AverageWait returns the mean blocking wait, or 0.
func (s Stats) AverageWait() time.Duration {
	if s.BlockingWaits == 0 {
		return 0
	}
	return s.WaitTime / time.Duration(s.BlockingWaits)
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) recordWait(d time.Duration) {
	r.mu.Lock()
	r.s.BlockingWaits++
	r.s.WaitTime += d
	if d > r.s.MaxWait {
		r.s.MaxWait = d
	}
	r.mu.Unlock()
}

func (r *statsRecorder) setInFlight(n int) {
	r.mu.Lock()
	r.s.InFlight = n
	r.mu.Unlock()
}

func (r *statsRecorder) recordSubmit(inFlight int) {
	r.mu.Lock()
	r.s.Frames++
	r.s.InFlight = inFlight
	if inFlight > r.s.MaxInFlight {
		r.s.MaxInFlight = inFlight
	}
	r.mu.Unlock()
}

func (r *statsRecorder) recordPresent(ok bool) {
	r.mu.Lock()
	if ok {
		r.s.Presented++
	} else {
		r.s.PresentFailures++
	}
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
