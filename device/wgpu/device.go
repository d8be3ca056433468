//go:build !nogpu

// Package wgpu implements device.Device on the gogpu/wgpu HAL.
//
// Frame fences are native counter fences: a signal is an empty queue
// submission carrying the fence and its value, and host waits go through
// hal.Device.Wait. Presentable images are offscreen textures cycled in FIFO
// order, so the back end runs headless; a PresentFunc receives each
// presented texture (for readback or for blitting to a window surface owned
// by the host).
package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/framepace/device"
)

// Defaults for the headless swap images.
const (
	DefaultImages = 3
	DefaultWidth  = 640
	DefaultHeight = 480
)

// idleTimeout bounds WaitIdle.
const idleTimeout = 5 * time.Second

// PresentFunc is called with each presented image.
type PresentFunc func(image int, tex hal.Texture)

// Config configures a Device.
type Config struct {
	// Images is the number of swap images. Default 3.
	Images int

	// Width and Height are the swap image size. Default 640x480.
	Width, Height uint32

	// Format is the swap image format. Default BGRA8Unorm.
	Format gputypes.TextureFormat

	// OnPresent, if set, receives every presented image.
	OnPresent PresentFunc
}

func (c *Config) defaults() {
	if c.Images <= 0 {
		c.Images = DefaultImages
	}
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.Format == gputypes.TextureFormatUndefined {
		c.Format = gputypes.TextureFormatBGRA8Unorm
	}
}

// swapImage is one presentable image.
type swapImage struct {
	tex    hal.Texture
	view   hal.TextureView
	target bool
}

// Device drives one hal.Device and hal.Queue.
type Device struct {
	mu sync.Mutex

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance // set when the device was opened here
	owned    bool

	cfg       Config
	images    []*swapImage
	next      int
	recorders []*Recorder
	presents  int
	lost      bool

	logger *slog.Logger
}

var _ device.Device = (*Device)(nil)

func init() {
	device.Register("wgpu", 100, func(opts device.Options) (device.Device, error) {
		return Open(Config{
			Images: opts.Images,
			Width:  uint32(max(opts.Width, 0)),
			Height: uint32(max(opts.Height, 0)),
		})
	}, func() bool {
		_, ok := hal.GetBackend(gputypes.BackendVulkan)
		return ok
	})
}

// New creates a device on an existing HAL device and queue. The caller keeps
// ownership of both.
func New(dev hal.Device, queue hal.Queue, cfg Config) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil device or queue")
	}
	cfg.defaults()
	d := &Device{
		device: dev,
		queue:  queue,
		cfg:    cfg,
		logger: device.NopLogger(),
	}
	if err := d.createImages(); err != nil {
		d.destroyImages()
		return nil, err
	}
	return d, nil
}

// NewFromProvider creates a device sharing the host's GPU device. The
// provider must also expose HalDevice() and HalQueue(). The provider's
// surface format is used for the swap images unless cfg sets one.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	hp, ok := provider.(interface {
		HalDevice() any
		HalQueue() any
	})
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL device and queue")
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = provider.SurfaceFormat()
	}
	return New(dev, queue, cfg)
}

// Open creates a standalone Vulkan device, preferring a discrete or
// integrated GPU. Destroy releases it.
func Open(cfg Config) (*Device, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, device.ResourceError("instance", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, device.ErrNoDeviceAvailable
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, device.ResourceError("device", err)
	}
	d, err := New(openDev.Device, openDev.Queue, cfg)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.owned = true
	d.logger.Info("wgpu: device opened", "adapter", selected.Info.Name)
	return d, nil
}

func (d *Device) createImages() error {
	for i := 0; i < d.cfg.Images; i++ {
		tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
			Label: fmt.Sprintf("swap_image_%d", i),
			Size: hal.Extent3D{
				Width:              d.cfg.Width,
				Height:             d.cfg.Height,
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        d.cfg.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			return device.ResourceError("swap image", err)
		}
		view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: fmt.Sprintf("swap_image_%d_view", i),
		})
		if err != nil {
			d.device.DestroyTexture(tex)
			return device.ResourceError("swap image view", err)
		}
		d.images = append(d.images, &swapImage{tex: tex, view: view})
	}
	return nil
}

func (d *Device) destroyImages() {
	for _, img := range d.images {
		if img.view != nil {
			d.device.DestroyTextureView(img.view)
		}
		if img.tex != nil {
			d.device.DestroyTexture(img.tex)
		}
	}
	d.images = nil
}

// Name returns "wgpu".
func (d *Device) Name() string { return "wgpu" }

// SetLogger sets the device logger. Nil restores the silent default.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = device.NopLogger()
	}
	d.mu.Lock()
	d.logger = l.With("device", "wgpu")
	d.mu.Unlock()
}

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// Texture returns swap image i.
func (d *Device) Texture(i int) hal.Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.images[i].tex
}

// CreateFrameSlots creates one recorder per slot.
func (d *Device) CreateFrameSlots(n int) ([]device.Recorder, error) {
	if n <= 0 {
		return nil, device.ResourceError("frame slots", fmt.Errorf("invalid slot count %d", n))
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]device.Recorder, n)
	base := len(d.recorders)
	for i := range out {
		r := &Recorder{dev: d, slot: base + i, image: -1}
		d.recorders = append(d.recorders, r)
		out[i] = r
	}
	return out, nil
}

// CreateFence creates a counter fence at value 0.
func (d *Device) CreateFence() (device.Fence, error) {
	raw, err := d.device.CreateFence()
	if err != nil {
		return nil, device.ResourceError("fence", err)
	}
	return &Fence{dev: d, raw: raw}, nil
}

// Signal enqueues a signal of f to value behind everything submitted.
func (d *Device) Signal(f device.Fence, value uint64) error {
	wf, ok := f.(*Fence)
	if !ok || wf.dev != d {
		return fmt.Errorf("wgpu: foreign fence %T", f)
	}
	if err := d.submit(nil, wf.raw, value); err != nil {
		return err
	}
	wf.signalled(value)
	return nil
}

// Submit queues slot's finished command buffer.
func (d *Device) Submit(slot, image int) error {
	d.mu.Lock()
	if slot < 0 || slot >= len(d.recorders) {
		d.mu.Unlock()
		return fmt.Errorf("wgpu: submit: slot %d out of range", slot)
	}
	r := d.recorders[slot]
	d.mu.Unlock()

	cmd := r.finished()
	if cmd == nil {
		return fmt.Errorf("wgpu: submit: slot %d has no finished command buffer", slot)
	}
	return d.submit([]hal.CommandBuffer{cmd}, nil, 0)
}

func (d *Device) submit(cmds []hal.CommandBuffer, fence hal.Fence, value uint64) error {
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost {
		return device.ErrDeviceLost
	}
	if err := d.queue.Submit(cmds, fence, value); err != nil {
		d.markLost(err)
		return fmt.Errorf("wgpu: submit: %w: %w", device.ErrDeviceLost, err)
	}
	return nil
}

func (d *Device) markLost(err error) {
	d.mu.Lock()
	d.lost = true
	log := d.logger
	d.mu.Unlock()
	log.Error("wgpu: device lost", "err", err)
}

// Acquire returns the next swap image in FIFO order.
func (d *Device) Acquire(slot int, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, device.ErrDeviceLost
	}
	if len(d.images) == 0 {
		return 0, fmt.Errorf("wgpu: acquire: %w: no swap images", device.ErrPresentFailed)
	}
	idx := d.next
	d.next = (d.next + 1) % len(d.images)
	return idx, nil
}

// ReleaseImage rewinds the FIFO so image is acquired again next.
func (d *Device) ReleaseImage(_ int, image int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if image < 0 || image >= len(d.images) {
		return
	}
	d.images[image].target = false
	d.next = image
}

// Present hands image to the PresentFunc.
func (d *Device) Present(slot, image int) error {
	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return device.ErrDeviceLost
	}
	if image < 0 || image >= len(d.images) {
		d.mu.Unlock()
		return fmt.Errorf("wgpu: present: %w: image %d out of range", device.ErrPresentFailed, image)
	}
	img := d.images[image]
	if img.target {
		d.mu.Unlock()
		return fmt.Errorf("wgpu: present: image %d still a render target", image)
	}
	d.presents++
	hook := d.cfg.OnPresent
	d.mu.Unlock()

	if hook != nil {
		hook(image, img.tex)
	}
	return nil
}

// Presents returns the number of successful presents.
func (d *Device) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

// ImageCount returns the number of swap images.
func (d *Device) ImageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images)
}

// Resize recreates the swap images. The caller must make sure the GPU is
// idle.
func (d *Device) Resize(width, height uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyImages()
	d.cfg.Width, d.cfg.Height = width, height
	d.next = 0
	return d.createImages()
}

// WaitIdle submits a signal on a temporary fence and waits for it.
func (d *Device) WaitIdle() error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return device.ResourceError("idle fence", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.submit(nil, fence, 1); err != nil {
		return err
	}
	ok, err := d.device.Wait(fence, 1, idleTimeout)
	if err != nil {
		d.markLost(err)
		return fmt.Errorf("wgpu: wait idle: %w: %w", device.ErrDeviceLost, err)
	}
	if !ok {
		return fmt.Errorf("wgpu: wait idle: timed out after %v", idleTimeout)
	}
	return nil
}

// Destroy releases the swap images and, when the device was opened by Open,
// the device and instance.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyImages()
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
		d.owned = false
	}
}

// errNotRecording is returned by recorder calls made outside Begin/End.
var errNotRecording = errors.New("wgpu: recorder not recording")
