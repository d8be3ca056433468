//go:build !nogpu

package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/framepace/device"
)

// check converts a Vulkan result into an error. Results that belong to the
// device error taxonomy wrap the matching sentinel, so errors.Is works from
// the engine, with the native result kept as a secondary error.
func check(op string, ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	native := vk.Error(ret)
	if native == nil {
		native = errors.Newf("vk result %d", int32(ret))
	}

	var sentinel error
	switch ret {
	case vk.ErrorDeviceLost:
		sentinel = device.ErrDeviceLost
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		sentinel = device.ErrPresentFailed
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		sentinel = device.ErrResourceCreation
	default:
		return errors.Wrapf(native, "vulkan: %s", op)
	}
	return errors.WithSecondaryError(errors.Wrapf(sentinel, "vulkan: %s", op), native)
}

// nanos converts a timeout for the Vulkan wait calls.
func nanos(d time.Duration) uint64 {
	if d == device.Infinite || d < 0 {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

// acquireResult classifies a vkAcquireNextImageKHR result. Suboptimal still
// returns an image and is reported separately from the error.
func acquireResult(ret vk.Result, timeout time.Duration) (suboptimal bool, err error) {
	switch ret {
	case vk.Success:
		return false, nil
	case vk.Suboptimal:
		return true, nil
	case vk.Timeout, vk.NotReady:
		return false, errors.Wrapf(device.ErrPresentFailed, "vulkan: no image within %v", timeout)
	default:
		return false, check("acquire next image", ret)
	}
}

// presentResult classifies a vkQueuePresentKHR result. A suboptimal present
// was still queued.
func presentResult(ret vk.Result) (suboptimal bool, err error) {
	switch ret {
	case vk.Success:
		return false, nil
	case vk.Suboptimal:
		return true, nil
	default:
		return false, check("queue present", ret)
	}
}
