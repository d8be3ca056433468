// Package sim provides a deterministic software GPU timeline implementing
// device.Device.
//
// Work submitted to the simulated queue completes in submission order, either
// immediately (Instant), when the test says so (Manual), or after a fixed
// latency on a timer goroutine (Latency). Host waits block on a sync.Cond,
// never spin. The device also records everything a test needs to check
// pacing invariants: submissions, presents, recorder resets attempted while
// the recorder's commands were still executing, and resource destruction
// relative to the completed fence value.
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/framepace/device"
)

// Mode selects how submitted work completes.
type Mode int

const (
	// Instant completes every signal as soon as it is enqueued.
	Instant Mode = iota

	// Manual completes signals only through CompleteNext/CompleteAll.
	Manual

	// Latency completes each signal a fixed duration after it is enqueued.
	Latency
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Instant:
		return "instant"
	case Manual:
		return "manual"
	case Latency:
		return "latency"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DefaultImages is the presentable image count when none is configured.
const DefaultImages = 3

// DefaultUniformAlignment is the constant buffer offset alignment when none
// is configured.
const DefaultUniformAlignment = 256

// Config configures a simulated device.
type Config struct {
	// Images is the number of presentable images. Default 3.
	Images int

	// Mode selects the completion model. Default Instant.
	Mode Mode

	// Latency is the per-signal completion delay in Latency mode.
	Latency time.Duration

	// UniformAlignment is the constant buffer offset alignment. Default
	// 256.
	UniformAlignment uint64
}

// Stats is a snapshot of device counters.
type Stats struct {
	Submits    int
	Signals    int
	Presents   int
	Resets     int
	Releases   int
	Violations int
	Pending    int
	Completed  uint64
}

// Submission records one queue submission.
type Submission struct {
	Slot     int
	Image    int
	Commands []Command
}

// Device is a simulated GPU device with one queue and a swapchain.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond
	cfg  Config

	logger *slog.Logger

	lost      bool
	destroyed bool

	fences    []*Fence
	recorders []*Recorder
	executing []*Recorder
	pending   []*signalOp
	timers    []*time.Timer

	images     []imageState
	nextImage  int
	held       map[int]int // slot -> acquired image not yet consumed
	failAcq    int
	failPres   int
	submitLog  []Submission
	presentLog []int
	destroyLog []*Resource
	buffers    []*ConstantBuffer

	stats Stats
}

type imageState struct {
	renderTarget bool
}

type signalOp struct {
	fence *Fence
	value uint64
	recs  []*Recorder
}

var _ device.Device = (*Device)(nil)

func init() {
	device.Register("sim", 10, func(opts device.Options) (device.Device, error) {
		return New(Config{Images: opts.Images}), nil
	}, nil)
}

// New creates a simulated device.
func New(cfg Config) *Device {
	if cfg.Images <= 0 {
		cfg.Images = DefaultImages
	}
	if cfg.UniformAlignment == 0 {
		cfg.UniformAlignment = DefaultUniformAlignment
	}
	d := &Device{
		cfg:    cfg,
		logger: device.NopLogger(),
		images: make([]imageState, cfg.Images),
		held:   make(map[int]int),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Name returns "sim".
func (d *Device) Name() string { return "sim" }

// SetLogger sets the device logger. Nil restores the silent default.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = device.NopLogger()
	}
	d.mu.Lock()
	d.logger = l.With("device", "sim")
	d.mu.Unlock()
}

// Mode returns the completion mode.
func (d *Device) Mode() Mode { return d.cfg.Mode }

// CreateFrameSlots allocates n recorders.
func (d *Device) CreateFrameSlots(n int) ([]device.Recorder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return nil, device.ErrDeviceLost
	}
	if n <= 0 {
		return nil, device.ResourceError("frame slots", fmt.Errorf("invalid slot count %d", n))
	}

	out := make([]device.Recorder, n)
	base := len(d.recorders)
	for i := 0; i < n; i++ {
		r := &Recorder{dev: d, slot: base + i, image: -1}
		d.recorders = append(d.recorders, r)
		out[i] = r
	}
	return out, nil
}

// CreateFence creates a fence at value 0.
func (d *Device) CreateFence() (device.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return nil, device.ErrDeviceLost
	}
	f := &Fence{dev: d}
	d.fences = append(d.fences, f)
	return f, nil
}

// Signal enqueues a signal of f to value behind all submitted work.
func (d *Device) Signal(f device.Fence, value uint64) error {
	sf, ok := f.(*Fence)
	if !ok || sf.dev != d {
		return fmt.Errorf("sim: foreign fence %T", f)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return device.ErrDeviceLost
	}
	op := &signalOp{fence: sf, value: value, recs: d.executing}
	d.executing = nil
	d.pending = append(d.pending, op)
	d.stats.Signals++

	switch d.cfg.Mode {
	case Instant:
		d.completeLocked(1)
	case Latency:
		t := time.AfterFunc(d.cfg.Latency, func() { d.CompleteNext() })
		d.timers = append(d.timers, t)
	}
	return nil
}

// Submit queues slot's closed recorder.
func (d *Device) Submit(slot, image int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return device.ErrDeviceLost
	}
	if slot < 0 || slot >= len(d.recorders) {
		return fmt.Errorf("sim: submit: slot %d out of range", slot)
	}
	r := d.recorders[slot]
	if r.recording {
		return fmt.Errorf("sim: submit: slot %d still recording", slot)
	}
	r.busy = true
	delete(d.held, slot)
	d.executing = append(d.executing, r)
	d.submitLog = append(d.submitLog, Submission{
		Slot:     slot,
		Image:    image,
		Commands: append([]Command(nil), r.cmds...),
	})
	d.stats.Submits++
	return nil
}

// Acquire returns the next presentable image in round-robin order. An
// acquire for a slot whose previous image was neither submitted nor released
// counts as a violation: a real swapchain would signal the slot's acquire
// semaphore twice.
func (d *Device) Acquire(slot int, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return 0, device.ErrDeviceLost
	}
	if d.failAcq > 0 {
		d.failAcq--
		return 0, fmt.Errorf("sim: acquire: %w: surface out of date", device.ErrPresentFailed)
	}
	if img, ok := d.held[slot]; ok {
		d.stats.Violations++
		d.logger.Debug("acquire with unconsumed image", "slot", slot, "image", img)
	}
	idx := d.nextImage
	d.nextImage = (d.nextImage + 1) % len(d.images)
	d.held[slot] = idx
	return idx, nil
}

// ReleaseImage returns an acquired but unsubmitted image. It is handed out
// again by the next Acquire.
func (d *Device) ReleaseImage(slot, image int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if img, ok := d.held[slot]; !ok || img != image {
		return
	}
	delete(d.held, slot)
	if image < len(d.images) {
		d.images[image].renderTarget = false
		d.nextImage = image
	}
	d.stats.Releases++
}

// Present records the presentation of image.
func (d *Device) Present(slot, image int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return device.ErrDeviceLost
	}
	if d.failPres > 0 {
		d.failPres--
		d.logger.Debug("present failed (injected)", "slot", slot, "image", image)
		return fmt.Errorf("sim: present: %w: surface out of date", device.ErrPresentFailed)
	}
	if image < 0 || image >= len(d.images) {
		return fmt.Errorf("sim: present: image %d out of range", image)
	}
	if d.images[image].renderTarget {
		return fmt.Errorf("sim: present: image %d still in render-target state", image)
	}
	delete(d.held, slot)
	d.presentLog = append(d.presentLog, image)
	d.stats.Presents++
	return nil
}

// ImageCount returns the number of presentable images.
func (d *Device) ImageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.images)
}

// WaitIdle blocks until every enqueued signal has completed. In Manual
// mode another goroutine must complete them.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.pending) > 0 && !d.lost {
		d.cond.Wait()
	}
	if d.lost {
		return device.ErrDeviceLost
	}
	return nil
}

// Destroy stops latency timers and marks the device destroyed.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	d.destroyed = true
	d.cond.Broadcast()
}

// CompleteNext completes the oldest pending signal. It reports false when
// nothing is pending.
func (d *Device) CompleteNext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completeLocked(1) == 1
}

// CompleteAll completes every pending signal and returns how many there
// were.
func (d *Device) CompleteAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completeLocked(len(d.pending))
}

// completeLocked retires up to n pending signals in queue order.
func (d *Device) completeLocked(n int) int {
	done := 0
	for done < n && len(d.pending) > 0 && !d.lost {
		op := d.pending[0]
		d.pending = d.pending[1:]
		for _, r := range op.recs {
			r.busy = false
		}
		if op.value > op.fence.completed {
			op.fence.completed = op.value
		}
		if op.value > d.stats.Completed {
			d.stats.Completed = op.value
		}
		done++
	}
	if done > 0 {
		d.cond.Broadcast()
	}
	return done
}

// Pending returns the number of signals not yet completed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Lose marks the device lost. Blocked waits return device.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.cond.Broadcast()
}

// FailNextAcquire makes the next n Acquire calls report an out-of-date
// surface.
func (d *Device) FailNextAcquire(n int) {
	d.mu.Lock()
	d.failAcq += n
	d.mu.Unlock()
}

// FailNextPresent makes the next n Present calls report an out-of-date
// surface.
func (d *Device) FailNextPresent(n int) {
	d.mu.Lock()
	d.failPres += n
	d.mu.Unlock()
}

// Resize recreates the swapchain with images presentable images.
func (d *Device) Resize(images int) {
	if images <= 0 {
		images = DefaultImages
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images = make([]imageState, images)
	d.nextImage = 0
	clear(d.held)
}

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.Pending = len(d.pending)
	return s
}

// Submissions returns the submission log.
func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submitLog...)
}

// Presented returns the image indices presented so far, in order.
func (d *Device) Presented() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.presentLog...)
}

// Destroyed returns resources in the order they were destroyed.
func (d *Device) Destroyed() []*Resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Resource(nil), d.destroyLog...)
}

// completedLocked returns the highest value reached by any fence.
func (d *Device) completedLocked() uint64 {
	return d.stats.Completed
}
