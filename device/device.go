package device

import (
	"image/color"
	"time"
)

// Device is the capability set of one GPU back end as seen by the frame
// pacer.
//
// Slot indices passed to Submit, Acquire and Present are the indices of the
// recorders returned by CreateFrameSlots. Image indices are whatever Acquire
// returned; the two are unrelated.
type Device interface {
	// Name returns the back end identifier (e.g., "vulkan", "wgpu", "sim").
	Name() string

	// CreateFrameSlots allocates n command recorders, one per frame slot,
	// each with its own allocator or pool.
	CreateFrameSlots(n int) ([]Recorder, error)

	// CreateFence creates a counter fence whose completed value starts at 0.
	CreateFence() (Fence, error)

	// Signal enqueues a device-side signal of f to value after all work
	// submitted so far. It does not block.
	Signal(f Fence, value uint64) error

	// Submit hands the closed recorder of slot to the queue. The commands
	// render into image.
	Submit(slot, image int) error

	// Acquire returns the index of the next presentable image. It returns
	// an error wrapping ErrPresentFailed when the surface is out of date.
	Acquire(slot int, timeout time.Duration) (int, error)

	// Present queues image for presentation after the slot's submission.
	Present(slot, image int) error

	// ReleaseImage hands back an image that Acquire returned for slot but
	// that no submission consumed. The next Acquire for slot may return the
	// same image.
	ReleaseImage(slot, image int)

	// UniformAlignment returns the alignment required of constant buffer
	// binding offsets.
	UniformAlignment() uint64

	// CreateConstantBuffer creates a host-writable constant (uniform)
	// buffer of size bytes.
	CreateConstantBuffer(size uint64) (ConstantBuffer, error)

	// ImageCount returns the number of presentable images.
	ImageCount() int

	// WaitIdle blocks until the queue has drained.
	WaitIdle() error

	// Destroy releases the device. It must not be called while work is in
	// flight.
	Destroy()
}

// Recorder is one frame slot's command recording buffer together with the
// allocator that backs it.
//
// The pacer calls Reset only after the slot's previous submission has
// retired. Between Begin and End the target image is in render-target state.
type Recorder interface {
	// Reset discards all previously recorded commands and rewinds the
	// allocator.
	Reset() error

	// Begin opens recording into image and transitions it from
	// presentable to render-target state.
	Begin(image int) error

	// End transitions the image back to presentable state and closes the
	// recording.
	End() error

	// Clear records a clear of the whole target image.
	Clear(c color.Color)

	// Native returns the back end's recording object (vk.CommandBuffer,
	// hal.CommandEncoder, ...) for content-layer draws.
	Native() any

	// Destroy frees the recorder and its allocator.
	Destroy()
}

// Fence is a device-side monotonic counter that the queue signals and the
// host waits on.
type Fence interface {
	// Completed returns the highest value the device has reached. It does
	// not block.
	Completed() (uint64, error)

	// Wait blocks until the completed value reaches value or timeout
	// elapses. It reports false on timeout.
	Wait(value uint64, timeout time.Duration) (bool, error)

	// Destroy releases the fence.
	Destroy()
}

// ConstantBuffer is a host-writable uniform buffer. The frame pacer splits
// one into per-slot regions.
type ConstantBuffer interface {
	// Size returns the buffer size in bytes.
	Size() uint64

	// Write copies data to offset. The caller guarantees that no work in
	// flight reads the range.
	Write(offset uint64, data []byte) error

	// Native returns the back end's buffer object (vk.Buffer, hal.Buffer,
	// ...) for binding.
	Native() any

	// Destroy releases the buffer.
	Destroy()
}

// AlignUp rounds size up to a multiple of align. An align of 0 leaves size
// unchanged.
func AlignUp(size, align uint64) uint64 {
	if align == 0 {
		return size
	}
	return (size + align - 1) / align * align
}

// Infinite is the timeout that never elapses.
const Infinite = time.Duration(1<<63 - 1)

// Options configures devices opened through the registry.
type Options struct {
	// Images is the number of presentable images. Zero selects the back
	// end default.
	Images int

	// Width and Height size the presentable images.
	Width, Height int
}
