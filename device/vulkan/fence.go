//go:build !nogpu

package vulkan

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

// Fence emulates a counter fence with a ring of binary VkFences. Each
// signalled value owns one fence until the host observes it; values complete
// in queue order, so seeing value v signalled retires every lower value too.
type Fence struct {
	dev *Device

	mu      sync.Mutex
	ring    valueRing
	handles []vk.Fence // parallel to ring entries
}

// signal submits an empty batch that signals a free ring fence for value.
func (f *Fence) signal(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, err := f.freeLocked()
	if err != nil {
		return err
	}
	h := f.handles[i]
	if err := check("reset fence", vk.ResetFences(f.dev.device, 1, []vk.Fence{h})); err != nil {
		return err
	}
	if err := check("signal", vk.QueueSubmit(f.dev.queue, 0, nil, h)); err != nil {
		return err
	}
	f.ring.assign(i, value)
	return nil
}

func (f *Fence) freeLocked() (int, error) {
	if i := f.ring.free(); i >= 0 {
		return i, nil
	}
	var h vk.Fence
	ret := vk.CreateFence(f.dev.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &h)
	if err := check("create fence", ret); err != nil {
		return -1, err
	}
	f.handles = append(f.handles, h)
	return f.ring.grow(), nil
}

// Completed polls the outstanding ring fences.
func (f *Fence) Completed() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, i := range f.ring.pending() {
		switch ret := vk.GetFenceStatus(f.dev.device, f.handles[i]); ret {
		case vk.Success:
			f.ring.retire(f.ring.values[i])
		case vk.NotReady:
		default:
			return f.ring.completed, check("fence status", ret)
		}
	}
	return f.ring.completed, nil
}

// Wait blocks in vkWaitForFences on the fence that carries value.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	if f.ring.completed >= value {
		f.mu.Unlock()
		return true, nil
	}
	t := f.ring.target(value)
	if t < 0 {
		f.mu.Unlock()
		return false, errors.AssertionFailedf("vulkan: wait on unsignalled value %d", value)
	}
	handle, tv := f.handles[t], f.ring.values[t]
	f.mu.Unlock()

	ret := vk.WaitForFences(f.dev.device, 1, []vk.Fence{handle}, vk.True, nanos(timeout))
	switch ret {
	case vk.Success:
		f.mu.Lock()
		f.ring.retire(tv)
		f.mu.Unlock()
		return true, nil
	case vk.Timeout:
		return false, nil
	default:
		return false, check("wait for fences", ret)
	}
}

// Destroy destroys the ring fences. The queue must be idle.
func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, h := range f.handles {
		vk.DestroyFence(f.dev.device, h, nil)
	}
	f.handles = nil
	f.ring = valueRing{completed: f.ring.completed}
}
