//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framepace/device"
)

// Fence is a HAL counter fence.
type Fence struct {
	dev *Device
	raw hal.Fence

	mu        sync.Mutex
	submitted uint64
	completed uint64
}

func (f *Fence) signalled(v uint64) {
	f.mu.Lock()
	if v > f.submitted {
		f.submitted = v
	}
	f.mu.Unlock()
}

// Completed returns the highest value the queue has reached. The HAL only
// offers a wait, so the value is found by zero-timeout waits between the
// last known completed value and the last signalled one.
func (f *Fence) Completed() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	lo, hi := f.completed, f.submitted
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		ok, err := f.dev.device.Wait(f.raw, mid, 0)
		if err != nil {
			return f.completed, fmt.Errorf("wgpu: fence status: %w: %w", device.ErrDeviceLost, err)
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	f.completed = lo
	return lo, nil
}

// Wait blocks in hal.Device.Wait until the fence reaches value.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	if f.completed >= value {
		f.mu.Unlock()
		return true, nil
	}
	f.mu.Unlock()

	ok, err := f.dev.device.Wait(f.raw, value, timeout)
	if err != nil {
		f.dev.markLost(err)
		return false, fmt.Errorf("wgpu: fence wait: %w: %w", device.ErrDeviceLost, err)
	}
	if ok {
		f.mu.Lock()
		if value > f.completed {
			f.completed = value
		}
		f.mu.Unlock()
	}
	return ok, nil
}

// Destroy releases the HAL fence.
func (f *Fence) Destroy() {
	f.dev.device.DestroyFence(f.raw)
}
