//go:build !nogpu

// Package vulkan implements device.Device directly on Vulkan through
// github.com/goki/vulkan.
//
// The host owns the instance, logical device, queue and swapchain; the
// package only creates per-slot command pools, per-slot acquire and render
// semaphores, and the frame fence. The host must have called vk.Init before
// constructing a Device.
//
// Vulkan 1.0 fences are binary, so the frame fence is a ring of VkFences,
// one per outstanding value (see Fence). Acquire waits on nothing host-side:
// the slot's image-available semaphore orders the submission behind the
// presentation engine, and the render-finished semaphore orders the present
// behind the submission.
package vulkan

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/framepace/device"
)

// Config carries the host-owned handles.
type Config struct {
	PhysicalDevice vk.PhysicalDevice // for memory types and limits

	Device      vk.Device
	Queue       vk.Queue // must support graphics and present
	QueueFamily uint32
	Swapchain   vk.Swapchain
	Images      []vk.Image // from vkGetSwapchainImagesKHR
}

// swapImage tracks the layout of one swapchain image between frames.
type swapImage struct {
	handle      vk.Image
	initialized bool
}

// slot holds one frame slot's sync objects.
type slot struct {
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore

	// acquired is set while imageAvailable has a pending signal that no
	// submission has waited on yet.
	acquired bool

	// parked is an image acquired but released unsubmitted, or -1. The next
	// Acquire returns it without touching the swapchain.
	parked int
}

// Device drives one Vulkan queue and swapchain.
type Device struct {
	mu sync.Mutex

	device      vk.Device
	queue       vk.Queue
	queueFamily uint32
	swapchain   vk.Swapchain
	images      []*swapImage

	slots      []*slot
	recorders  []*Recorder
	lost       bool
	suboptimal bool

	memProps     vk.PhysicalDeviceMemoryProperties
	uniformAlign uint64

	logger *slog.Logger
}

var _ device.Device = (*Device)(nil)

// New creates a device on host-owned Vulkan handles.
func New(cfg Config) (*Device, error) {
	if cfg.PhysicalDevice == nil || cfg.Device == nil || cfg.Queue == nil {
		return nil, errors.New("vulkan: nil physical device, device or queue")
	}
	if len(cfg.Images) == 0 {
		return nil, errors.New("vulkan: swapchain has no images")
	}
	d := &Device{
		device:      cfg.Device,
		queue:       cfg.Queue,
		queueFamily: cfg.QueueFamily,
		logger:      device.NopLogger(),
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(cfg.PhysicalDevice, &props)
	props.Deref()
	props.Limits.Deref()
	d.uniformAlign = uint64(props.Limits.MinUniformBufferOffsetAlignment)

	vk.GetPhysicalDeviceMemoryProperties(cfg.PhysicalDevice, &d.memProps)
	d.memProps.Deref()

	d.setImages(cfg.Swapchain, cfg.Images)
	return d, nil
}

func (d *Device) setImages(sc vk.Swapchain, images []vk.Image) {
	d.swapchain = sc
	d.images = make([]*swapImage, len(images))
	for i, img := range images {
		d.images[i] = &swapImage{handle: img}
	}
}

// Name returns "vulkan".
func (d *Device) Name() string { return "vulkan" }

// SetLogger sets the device logger. Nil restores the silent default.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = device.NopLogger()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l.With("device", "vulkan")
}

// Suboptimal reports whether the swapchain no longer matches the surface
// exactly. Frames still present; the host should recreate the swapchain
// when convenient. SetSwapchain clears it.
func (d *Device) Suboptimal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suboptimal
}

// SetSwapchain installs a recreated swapchain. The caller must have drained
// the queue (Engine.WaitIdle) and destroyed the old swapchain itself.
func (d *Device) SetSwapchain(sc vk.Swapchain, images []vk.Image) error {
	if len(images) == 0 {
		return errors.New("vulkan: swapchain has no images")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	// A pending acquire signal belongs to the old swapchain; the queue is
	// idle, so the semaphore is replaced rather than waited on.
	for _, s := range d.slots {
		s.parked = -1
		if !s.acquired {
			continue
		}
		vk.DestroySemaphore(d.device, s.imageAvailable, nil)
		s.acquired = false
		info := &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
		if err := check("create semaphore", vk.CreateSemaphore(d.device, info, nil, &s.imageAvailable)); err != nil {
			return err
		}
	}
	d.setImages(sc, images)
	d.suboptimal = false
	return nil
}

// CreateFrameSlots creates n command pools with one primary command buffer
// each, plus the slot semaphores.
func (d *Device) CreateFrameSlots(n int) ([]device.Recorder, error) {
	if n <= 0 {
		return nil, errors.Wrapf(device.ErrResourceCreation, "vulkan: %d frame slots", n)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]device.Recorder, 0, n)
	for i := 0; i < n; i++ {
		s, err := d.createSlot()
		if err != nil {
			d.destroySlotsLocked()
			return nil, err
		}
		d.slots = append(d.slots, s)

		rec, err := newRecorder(d, i)
		if err != nil {
			d.destroySlotsLocked()
			return nil, err
		}
		d.recorders = append(d.recorders, rec)
		out = append(out, rec)
	}
	d.logger.Debug("vulkan: frame slots created", "slots", n, "images", len(d.images))
	return out, nil
}

func (d *Device) createSlot() (*slot, error) {
	info := &vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s := &slot{parked: -1}
	if err := check("create semaphore", vk.CreateSemaphore(d.device, info, nil, &s.imageAvailable)); err != nil {
		return nil, err
	}
	if err := check("create semaphore", vk.CreateSemaphore(d.device, info, nil, &s.renderFinished)); err != nil {
		vk.DestroySemaphore(d.device, s.imageAvailable, nil)
		return nil, err
	}
	return s, nil
}

func (d *Device) destroySlotsLocked() {
	for _, r := range d.recorders {
		r.destroy()
	}
	for _, s := range d.slots {
		vk.DestroySemaphore(d.device, s.imageAvailable, nil)
		vk.DestroySemaphore(d.device, s.renderFinished, nil)
	}
	d.recorders = nil
	d.slots = nil
}

// CreateFence creates an empty fence ring.
func (d *Device) CreateFence() (device.Fence, error) {
	return &Fence{dev: d}, nil
}

// Signal submits an empty batch that signals the ring fence for value.
func (d *Device) Signal(f device.Fence, value uint64) error {
	vf, ok := f.(*Fence)
	if !ok {
		return errors.Newf("vulkan: foreign fence %T", f)
	}
	if err := d.alive(); err != nil {
		return err
	}
	return d.fail(vf.signal(value))
}

// Submit submits the slot's command buffer. The batch waits for the image
// to be acquired and signals the slot's render-finished semaphore.
func (d *Device) Submit(slotIdx, image int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return device.ErrDeviceLost
	}
	s, rec, err := d.slotLocked(slotIdx)
	if err != nil {
		return err
	}
	if rec.recording {
		return errors.Wrapf(errNotClosed, "vulkan: submit slot %d", slotIdx)
	}
	if rec.image != image {
		return errors.AssertionFailedf("vulkan: slot %d recorded image %d, submitted %d", slotIdx, rec.image, image)
	}

	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{rec.cmd},
	}
	if s.acquired {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{s.imageAvailable}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageTransferBit),
		}
		s.acquired = false
	}
	info.SignalSemaphoreCount = 1
	info.PSignalSemaphores = []vk.Semaphore{s.renderFinished}

	ret := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{info}, vk.Fence(vk.NullHandle))
	return d.failLocked(check("queue submit", ret))
}

// Acquire acquires the next swapchain image, signalling the slot's
// image-available semaphore. An image released by ReleaseImage is returned
// again first. Out-of-date and lost surfaces map to ErrPresentFailed; a
// suboptimal swapchain is still usable and only sets Suboptimal.
func (d *Device) Acquire(slotIdx int, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, device.ErrDeviceLost
	}
	s, _, err := d.slotLocked(slotIdx)
	if err != nil {
		return 0, err
	}
	if s.parked >= 0 {
		img := s.parked
		s.parked = -1
		return img, nil
	}
	if s.acquired {
		return 0, errors.AssertionFailedf("vulkan: slot %d acquires with an unconsumed image", slotIdx)
	}

	var idx uint32
	ret := vk.AcquireNextImage(d.device, d.swapchain, nanos(timeout), s.imageAvailable, vk.Fence(vk.NullHandle), &idx)
	sub, err := acquireResult(ret, timeout)
	if err != nil {
		return 0, d.failLocked(err)
	}
	if sub && !d.suboptimal {
		d.suboptimal = true
		d.logger.Debug("vulkan: swapchain suboptimal", "op", "acquire", "image", idx)
	}
	if int(idx) >= len(d.images) {
		return 0, errors.AssertionFailedf("vulkan: acquired image %d of %d", idx, len(d.images))
	}
	s.acquired = true
	return int(idx), nil
}

// ReleaseImage parks an image that was acquired for slot but never
// submitted. Vulkan cannot hand an acquired image back without presenting
// it, so the next Acquire for slot returns it again and the next Submit
// consumes the pending acquire signal.
func (d *Device) ReleaseImage(slotIdx, image int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, _, err := d.slotLocked(slotIdx)
	if err != nil || !s.acquired || image < 0 || image >= len(d.images) {
		return
	}
	s.parked = image
}

// Present queues image for presentation once the slot's render-finished
// semaphore is signalled. A suboptimal present still presented the image.
func (d *Device) Present(slotIdx, image int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return device.ErrDeviceLost
	}
	s, _, err := d.slotLocked(slotIdx)
	if err != nil {
		return err
	}
	if image < 0 || image >= len(d.images) {
		return errors.AssertionFailedf("vulkan: present image %d of %d", image, len(d.images))
	}

	idx := uint32(image)
	ret := vk.QueuePresent(d.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain},
		PImageIndices:      []uint32{idx},
	})
	sub, err := presentResult(ret)
	if err != nil {
		return d.failLocked(err)
	}
	if sub && !d.suboptimal {
		d.suboptimal = true
		d.logger.Debug("vulkan: swapchain suboptimal", "op", "present", "image", image)
	}
	return nil
}

// ImageCount returns the number of swapchain images.
func (d *Device) ImageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images)
}

// WaitIdle waits for the queue to drain.
func (d *Device) WaitIdle() error {
	if err := d.alive(); err != nil {
		return err
	}
	return d.fail(check("queue wait idle", vk.QueueWaitIdle(d.queue)))
}

// Destroy destroys the per-slot objects. The host-owned handles are left
// alone.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroySlotsLocked()
}

func (d *Device) slotLocked(i int) (*slot, *Recorder, error) {
	if i < 0 || i >= len(d.slots) {
		return nil, nil, errors.AssertionFailedf("vulkan: slot %d of %d", i, len(d.slots))
	}
	return d.slots[i], d.recorders[i], nil
}

func (d *Device) image(i int) (*swapImage, error) {
	if i < 0 || i >= len(d.images) {
		return nil, errors.AssertionFailedf("vulkan: image %d of %d", i, len(d.images))
	}
	return d.images[i], nil
}

func (d *Device) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return device.ErrDeviceLost
	}
	return nil
}

func (d *Device) fail(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failLocked(err)
}

// failLocked latches device loss.
func (d *Device) failLocked(err error) error {
	if errors.Is(err, device.ErrDeviceLost) && !d.lost {
		d.lost = true
		d.logger.Error("vulkan: device lost", "err", err)
	}
	return err
}
