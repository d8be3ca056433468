package framepace

import (
	"errors"
	"fmt"

	"github.com/gogpu/framepace/device"
)

// Error taxonomy. Device-level errors are shared with the back ends so
// errors.Is works on anything a device returns.
var (
	// ErrDeviceLost is fatal: the device or queue handle is invalid.
	ErrDeviceLost = device.ErrDeviceLost

	// ErrPresentFailed is not fatal: recreate the surface and begin the
	// next frame.
	ErrPresentFailed = device.ErrPresentFailed

	// ErrResourceCreation is returned where an allocation failed. It is
	// never retried.
	ErrResourceCreation = device.ErrResourceCreation

	// ErrDeviceHang is fatal: a frame did not retire within the wait
	// timeout.
	ErrDeviceHang = errors.New("framepace: device hang")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("framepace: invalid config")

	// ErrFrameInProgress is returned when a frame is begun before the
	// previous one ended.
	ErrFrameInProgress = errors.New("framepace: frame already in progress")

	// ErrNoFrame is returned by EndFrameAndPresent without a frame.
	ErrNoFrame = errors.New("framepace: no frame in progress")

	// ErrSlotBusy is returned when a slot's recorder would be reset while
	// its previous submission is still in flight.
	ErrSlotBusy = errors.New("framepace: frame slot still in flight")

	// ErrRegionLocked is returned by a constant region write outside the
	// slot's Recording state.
	ErrRegionLocked = errors.New("framepace: constant region not writable")

	// ErrRegionBounds is returned by a constant region write that does not
	// fit the region.
	ErrRegionBounds = errors.New("framepace: write outside constant region")

	// ErrShutdown is returned by every call after Shutdown.
	ErrShutdown = errors.New("framepace: engine shut down")
)

// FrameError adds frame context to an error from the sequencer.
type FrameError struct {
	Op    string // "acquire", "begin", "submit", "signal", "present", ...
	Frame uint64
	Slot  int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("framepace: %s: frame %d slot %d: %v", e.Op, e.Frame, e.Slot, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends the render loop: the device is lost or
// hung. Present failures and configuration errors are not fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDeviceLost) || errors.Is(err, ErrDeviceHang)
}
