// Package fence implements the host side of a GPU timeline fence: a
// monotonically increasing target value paired with a device primitive that
// the queue signals and the host waits on.
//
// A Counter hands out fence values in strictly increasing order, remembers
// the highest value it ever submitted, and refuses to wait on anything above
// it. Waiting on a value that was never submitted would block forever, so it
// fails fast with ErrNotSubmitted instead.
package fence

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framepace/device"
)

var (
	// ErrTimedOut is returned by WaitUntil when the timeout elapses first.
	ErrTimedOut = errors.New("fence: wait timed out")

	// ErrNotSubmitted is returned by WaitUntil for a value above the
	// highest value ever signalled.
	ErrNotSubmitted = errors.New("fence: value not submitted")
)

// Infinite is the timeout that never elapses.
const Infinite = device.Infinite

// Signaler enqueues a device-side signal of a fence. device.Device
// implements it.
type Signaler interface {
	Signal(f device.Fence, value uint64) error
}

// Counter is a monotonic fence counter.
//
// Signal must be called from a single goroutine (the render loop).
// Completed, Submitted and WaitUntil are safe for concurrent use.
type Counter struct {
	prim device.Fence

	mu        sync.Mutex // serializes Signal
	next      uint64
	submitted atomic.Uint64
	completed atomic.Uint64
	destroyed atomic.Bool
}

// New wraps a device fence whose completed value starts at zero. The first
// value handed out is 1.
func New(prim device.Fence) *Counter {
	return &Counter{prim: prim, next: 1}
}

// Fence returns the wrapped device fence.
func (c *Counter) Fence() device.Fence { return c.prim }

// Signal enqueues a signal of the next value on s and returns that value.
// On failure the value is not consumed.
func (c *Counter) Signal(s Signaler) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.next
	if err := s.Signal(c.prim, v); err != nil {
		if errors.Is(err, device.ErrDeviceLost) {
			return 0, fmt.Errorf("fence: signal %d: %w", v, err)
		}
		return 0, fmt.Errorf("fence: signal %d: %w: %w", v, device.ErrDeviceLost, err)
	}
	c.next++
	c.submitted.Store(v)
	return v, nil
}

// Next returns the value the next Signal will use.
func (c *Counter) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Submitted returns the highest value ever signalled.
func (c *Counter) Submitted() uint64 {
	return c.submitted.Load()
}

// Completed returns the highest value the device has confirmed. It never
// blocks and never decreases. Device errors leave the cached value in place,
// and so does a destroyed fence.
func (c *Counter) Completed() uint64 {
	if c.destroyed.Load() {
		return c.completed.Load()
	}
	v, err := c.prim.Completed()
	if err != nil {
		return c.completed.Load()
	}
	return c.observe(v)
}

// Reached reports whether value has been completed.
func (c *Counter) Reached(value uint64) bool {
	if c.completed.Load() >= value {
		return true
	}
	return c.Completed() >= value
}

// WaitUntil blocks until the completed value reaches value or timeout
// elapses. It returns immediately when value is already reached.
func (c *Counter) WaitUntil(value uint64, timeout time.Duration) error {
	if c.completed.Load() >= value {
		return nil
	}
	if value > c.submitted.Load() {
		return fmt.Errorf("%w: %d > %d", ErrNotSubmitted, value, c.submitted.Load())
	}

	ok, err := c.prim.Wait(value, timeout)
	if err != nil {
		if errors.Is(err, device.ErrDeviceLost) {
			return fmt.Errorf("fence: wait %d: %w", value, err)
		}
		return fmt.Errorf("fence: wait %d: %w: %w", value, device.ErrDeviceLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: value %d after %v", ErrTimedOut, value, timeout)
	}
	c.observe(value)
	return nil
}

// observe raises the cached completed value to v if it is higher and
// returns the cached value.
func (c *Counter) observe(v uint64) uint64 {
	for {
		cur := c.completed.Load()
		if v <= cur {
			return cur
		}
		if c.completed.CompareAndSwap(cur, v) {
			return v
		}
	}
}

// Destroy releases the device fence. Completed keeps reporting the last
// observed value.
func (c *Counter) Destroy() {
	if c.destroyed.Swap(true) {
		return
	}
	c.prim.Destroy()
}
