package sim

import (
	"time"

	"github.com/gogpu/framepace/device"
)

// Fence is a simulated counter fence.
type Fence struct {
	dev       *Device
	completed uint64
	destroyed bool
}

// Completed returns the value the simulated queue has reached.
func (f *Fence) Completed() (uint64, error) {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()

	if f.dev.lost {
		return f.completed, device.ErrDeviceLost
	}
	return f.completed, nil
}

// Wait blocks on the device condition variable until the fence reaches
// value or timeout elapses.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if f.completed >= value {
		return true, nil
	}

	var deadline time.Time
	if timeout != device.Infinite {
		deadline = time.Now().Add(timeout)
		t := time.AfterFunc(timeout, func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		defer t.Stop()
	}

	for f.completed < value {
		if d.lost {
			return false, device.ErrDeviceLost
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, nil
		}
		d.cond.Wait()
	}
	return true, nil
}

// Destroy marks the fence destroyed.
func (f *Fence) Destroy() {
	f.dev.mu.Lock()
	f.destroyed = true
	f.dev.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (f *Fence) Destroyed() bool {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.destroyed
}
