package fence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/framepace/device"
	"github.com/gogpu/framepace/device/sim"
)

func newSimCounter(t *testing.T, mode sim.Mode) (*Counter, *sim.Device) {
	t.Helper()
	dev := sim.New(sim.Config{Mode: mode})
	prim, err := dev.CreateFence()
	if err != nil {
		t.Fatalf("CreateFence() error = %v", err)
	}
	c := New(prim)
	t.Cleanup(func() {
		dev.CompleteAll()
		c.Destroy()
		dev.Destroy()
	})
	return c, dev
}

func TestSignalStrictlyIncreases(t *testing.T) {
	c, dev := newSimCounter(t, sim.Manual)

	var last uint64
	for i := 0; i < 10; i++ {
		v, err := c.Signal(dev)
		if err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
		if v <= last {
			t.Fatalf("Signal() = %d after %d, want strictly increasing", v, last)
		}
		last = v
	}
	if c.Submitted() != last {
		t.Errorf("Submitted() = %d, want %d", c.Submitted(), last)
	}
	if c.Next() != last+1 {
		t.Errorf("Next() = %d, want %d", c.Next(), last+1)
	}
}

func TestCompletedNonDecreasing(t *testing.T) {
	c, dev := newSimCounter(t, sim.Manual)

	for i := 0; i < 5; i++ {
		if _, err := c.Signal(dev); err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
	}

	var prev uint64
	for dev.CompleteNext() {
		got := c.Completed()
		if got < prev {
			t.Fatalf("Completed() = %d after %d", got, prev)
		}
		prev = got
	}
	if prev != 5 {
		t.Errorf("Completed() = %d, want 5", prev)
	}

	// A lost device keeps the cached value.
	dev.Lose()
	if got := c.Completed(); got != 5 {
		t.Errorf("Completed() after loss = %d, want 5", got)
	}
}

func TestWaitUntilBlocksUntilSignalled(t *testing.T) {
	c, dev := newSimCounter(t, sim.Manual)

	if _, err := c.Signal(dev); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.WaitUntil(1, Infinite) }()

	select {
	case err := <-done:
		t.Fatalf("WaitUntil() returned %v before completion", err)
	case <-time.After(30 * time.Millisecond):
	}

	dev.CompleteNext()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitUntil() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitUntil() did not return after completion")
	}
	if !c.Reached(1) {
		t.Error("Reached(1) = false after wait")
	}
}

func TestWaitUntilIdempotent(t *testing.T) {
	c, dev := newSimCounter(t, sim.Instant)

	if _, err := c.Signal(dev); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		start := time.Now()
		if err := c.WaitUntil(1, time.Second); err != nil {
			t.Fatalf("WaitUntil() call %d error = %v", i, err)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			t.Errorf("WaitUntil() call %d took %v on a reached value", i, d)
		}
	}
	// Zero is always reached.
	if err := c.WaitUntil(0, time.Millisecond); err != nil {
		t.Errorf("WaitUntil(0) error = %v", err)
	}
}

func TestWaitUntilTimesOut(t *testing.T) {
	c, dev := newSimCounter(t, sim.Manual)

	if _, err := c.Signal(dev); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	err := c.WaitUntil(1, 10*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Errorf("WaitUntil() error = %v, want ErrTimedOut", err)
	}
}

func TestWaitUntilNotSubmitted(t *testing.T) {
	c, dev := newSimCounter(t, sim.Instant)

	if _, err := c.Signal(dev); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	err := c.WaitUntil(2, Infinite)
	if !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("WaitUntil() error = %v, want ErrNotSubmitted", err)
	}
}

func TestWaitUntilDeviceLost(t *testing.T) {
	c, dev := newSimCounter(t, sim.Manual)

	if _, err := c.Signal(dev); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		dev.Lose()
	}()
	err := c.WaitUntil(1, Infinite)
	if !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("WaitUntil() error = %v, want ErrDeviceLost", err)
	}
}

type failingSignaler struct{ err error }

func (s failingSignaler) Signal(device.Fence, uint64) error { return s.err }

func TestSignalFailureDoesNotAdvance(t *testing.T) {
	c, _ := newSimCounter(t, sim.Instant)

	_, err := c.Signal(failingSignaler{err: errors.New("queue closed")})
	if !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("Signal() error = %v, want ErrDeviceLost", err)
	}
	if c.Next() != 1 || c.Submitted() != 0 {
		t.Errorf("Next/Submitted = %d/%d after failure, want 1/0", c.Next(), c.Submitted())
	}
}

func TestConcurrentReaders(t *testing.T) {
	c, dev := newSimCounter(t, sim.Latency)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := c.Completed()
				if got < prev {
					t.Errorf("Completed() went from %d to %d", prev, got)
					return
				}
				prev = got
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if _, err := c.Signal(dev); err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
	}
	if err := c.WaitUntil(50, 5*time.Second); err != nil {
		t.Fatalf("WaitUntil(50) error = %v", err)
	}
	close(stop)
	wg.Wait()
}
