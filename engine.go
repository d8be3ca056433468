package framepace

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gogpu/framepace/device"
	"github.com/gogpu/framepace/fence"
	"github.com/gogpu/framepace/retire"
)

// Engine sequences frames on one device: it hands out frame slots, waits
// for the GPU when the CPU runs too far ahead, submits and presents, and
// retires resources once the GPU is done with them.
//
// BeginFrame, EndFrameAndPresent, WaitIdle, OnShutdown and Shutdown must be
// called from one goroutine (the render loop). Retire, RetireAfter, Stats,
// FrameNumber and ID are safe for concurrent use.
type Engine struct {
	id  uuid.UUID
	cfg Config
	dev device.Device
	log *slog.Logger

	counter *fence.Counter
	pool    *SlotPool
	bp      *Backpressure
	retire  *retire.Queue
	stats   statsRecorder

	// imageGuard holds, per presentable image, the fence value of the last
	// frame that rendered to it.
	imageGuard []uint64

	frame     atomic.Uint64
	current   *Frame
	last      *FrameSlot
	recording atomic.Bool

	mu       sync.Mutex // guards closed against concurrent Retire
	closed   bool
	deleters []func()
}

// Frame is the frame being recorded between BeginFrame and
// EndFrameAndPresent.
type Frame struct {
	slot   *FrameSlot
	number uint64
	image  int
	ended  bool
}

// Recorder returns the command recorder for this frame, or nil once the
// frame has ended.
func (f *Frame) Recorder() device.Recorder {
	if f.ended {
		return nil
	}
	return f.slot.recorder
}

// Number returns the logical frame number, starting at 0.
func (f *Frame) Number() uint64 { return f.number }

// Slot returns the frame slot index.
func (f *Frame) Slot() int { return f.slot.index }

// Image returns the presentable image index the frame renders to.
func (f *Frame) Image() int { return f.image }

// Constants returns the slot's frame-local constant region, or nil once the
// frame has ended.
func (f *Frame) Constants() *ConstantRegion {
	if f.ended {
		return nil
	}
	return f.slot.constants
}

// New creates an engine on dev. It allocates one recorder per frame slot,
// the constant buffer the slots share, and the engine's fence.
func New(dev device.Device, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidConfig)
	}

	id := uuid.New()
	log := Logger().With("engine", id.String())
	if ls, ok := dev.(device.LoggerSetter); ok {
		ls.SetLogger(Logger())
	}

	prim, err := dev.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("framepace: create fence: %w", err)
	}
	recs, err := dev.CreateFrameSlots(cfg.FramesInFlight)
	if err != nil {
		prim.Destroy()
		return nil, fmt.Errorf("framepace: create frame slots: %w", err)
	}
	buf, stride, err := newConstants(dev, len(recs), cfg.ConstantsSize)
	if err != nil {
		for _, r := range recs {
			r.Destroy()
		}
		prim.Destroy()
		return nil, fmt.Errorf("framepace: create constant buffer: %w", err)
	}

	e := &Engine{
		id:         id,
		cfg:        cfg,
		dev:        dev,
		log:        log,
		counter:    fence.New(prim),
		imageGuard: make([]uint64, dev.ImageCount()),
	}
	e.bp = newBackpressure(e.counter, cfg.WaitTimeout, &e.stats, log)
	e.pool = newSlotPool(recs, e.bp, buf, stride, cfg.ConstantsSize)
	e.retire = retire.NewQueue(e.counter)

	log.Info("framepace: engine created",
		"device", dev.Name(),
		"frames_in_flight", cfg.FramesInFlight,
		"images", len(e.imageGuard),
		"constants_stride", stride,
		"wait_timeout", cfg.WaitTimeout)
	return e, nil
}

// BeginFrame starts the next logical frame. It blocks while the frame's
// slot is still in flight, acquires a presentable image, and opens the
// slot's recorder on it.
//
// An error wrapping ErrPresentFailed means the surface is out of date: the
// frame number does not advance, and the caller should recreate the
// surface (after WaitIdle) and call BeginFrame again.
func (e *Engine) BeginFrame() (*Frame, error) {
	if e.isClosed() {
		return nil, ErrShutdown
	}
	if e.current != nil {
		return nil, ErrFrameInProgress
	}

	n := e.frame.Load()
	slot, err := e.pool.Acquire(n)
	if err != nil {
		return nil, err
	}
	e.stats.setInFlight(e.pool.InFlight())

	image, err := e.dev.Acquire(slot.index, e.cfg.AcquireTimeout)
	if err != nil {
		e.logFailure("acquire", n, slot.index, err)
		return nil, &FrameError{Op: "acquire", Frame: n, Slot: slot.index, Err: err}
	}
	if err := e.guardImage(image); err != nil {
		e.dev.ReleaseImage(slot.index, image)
		return nil, &FrameError{Op: "acquire", Frame: n, Slot: slot.index, Err: err}
	}

	if err := slot.reset(); err != nil {
		e.dev.ReleaseImage(slot.index, image)
		return nil, &FrameError{Op: "reset", Frame: n, Slot: slot.index, Err: err}
	}
	e.recording.Store(true)
	if err := slot.recorder.Begin(image); err != nil {
		e.recording.Store(false)
		e.dev.ReleaseImage(slot.index, image)
		return nil, &FrameError{Op: "begin", Frame: n, Slot: slot.index, Err: err}
	}

	slot.state = Recording
	slot.frame = n
	slot.image = image
	e.last = slot
	e.current = &Frame{slot: slot, number: n, image: image}
	return e.current, nil
}

// guardImage waits until the last frame that rendered to image has
// completed. Slots and images cycle independently, so a free slot does not
// imply a free image.
func (e *Engine) guardImage(image int) error {
	if image < 0 {
		return fmt.Errorf("framepace: device returned image %d", image)
	}
	if image >= len(e.imageGuard) {
		grown := make([]uint64, image+1)
		copy(grown, e.imageGuard)
		e.imageGuard = grown
	}
	v := e.imageGuard[image]
	if v == 0 {
		return nil
	}
	return e.bp.WaitValue(v, "image")
}

// EndFrameAndPresent closes the current frame's recorder, submits it,
// signals the next fence value and presents the image. Resources whose
// frames have retired are destroyed afterwards.
//
// A present failure does not undo the submission: the frame counts as
// submitted and its slot stays in flight. The returned error wraps
// ErrPresentFailed.
func (e *Engine) EndFrameAndPresent() error {
	if e.isClosed() {
		return ErrShutdown
	}
	f := e.current
	if f == nil {
		return ErrNoFrame
	}
	slot := f.slot
	e.current = nil
	f.ended = true

	if err := slot.recorder.End(); err != nil {
		e.abandon(slot, f.image)
		return &FrameError{Op: "end", Frame: f.number, Slot: slot.index, Err: err}
	}
	if err := e.dev.Submit(slot.index, f.image); err != nil {
		e.abandon(slot, f.image)
		e.logFailure("submit", f.number, slot.index, err)
		return &FrameError{Op: "submit", Frame: f.number, Slot: slot.index, Err: err}
	}
	v, err := e.counter.Signal(e.dev)
	if err != nil {
		e.abandon(slot, -1)
		e.logFailure("signal", f.number, slot.index, err)
		return &FrameError{Op: "signal", Frame: f.number, Slot: slot.index, Err: err}
	}

	slot.markSubmitted(v)
	e.recording.Store(false)
	e.imageGuard[f.image] = v
	e.frame.Add(1)
	e.stats.recordSubmit(e.pool.InFlight())

	perr := e.dev.Present(slot.index, f.image)
	slot.state = Presented
	e.stats.recordPresent(perr == nil)

	e.retire.DrainReady()

	if perr != nil {
		e.logFailure("present", f.number, slot.index, perr)
		return &FrameError{Op: "present", Frame: f.number, Slot: slot.index, Err: perr}
	}
	return nil
}

// abandon returns a slot whose frame never reached the queue to Idle. A
// non-negative image was acquired but never submitted and is released.
func (e *Engine) abandon(slot *FrameSlot, image int) {
	e.recording.Store(false)
	slot.state = Idle
	if image >= 0 {
		e.dev.ReleaseImage(slot.index, image)
	}
}

func (e *Engine) logFailure(op string, frame uint64, slot int, err error) {
	switch {
	case errors.Is(err, ErrPresentFailed):
		e.log.Warn("framepace: surface out of date", "op", op, "frame", frame, "slot", slot, "err", err)
	case errors.Is(err, ErrDeviceLost):
		e.log.Error("framepace: device lost", "op", op, "frame", frame, "slot", slot, "err", err)
	default:
		e.log.Error("framepace: frame failed", "op", op, "frame", frame, "slot", slot, "err", err)
	}
}

// Retire hands r to the retirement queue. It is destroyed once every frame
// that may reference it has completed: the frame being recorded, or the
// last submitted frame when none is.
//
// After Shutdown, r is destroyed immediately.
func (e *Engine) Retire(r retire.Resource) {
	var after uint64
	if e.recording.Load() {
		after = e.counter.Next()
	} else {
		after = e.counter.Submitted()
	}
	e.RetireAfter(r, after)
}

// RetireAfter hands r to the retirement queue, to be destroyed once fence
// value v has completed.
func (e *Engine) RetireAfter(r retire.Resource, v uint64) {
	if r == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		r.Destroy()
		return
	}
	e.retire.Retire(r, v)
	e.mu.Unlock()
}

// OnShutdown registers fn to run during Shutdown, after the GPU is idle and
// the retirement queue is empty. Functions run in reverse registration
// order.
func (e *Engine) OnShutdown(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.deleters = append(e.deleters, fn)
	e.mu.Unlock()
}

// WaitIdle blocks until every submitted frame has completed and the device
// is idle, then drains the retirement queue. Use it before recreating a
// surface.
func (e *Engine) WaitIdle() error {
	if e.isClosed() {
		return ErrShutdown
	}
	if e.current != nil {
		return ErrFrameInProgress
	}
	if err := e.waitAll("idle"); err != nil {
		return err
	}

	e.pool.settle(e.counter.Completed())
	e.stats.setInFlight(0)
	if n := e.dev.ImageCount(); n != len(e.imageGuard) {
		e.imageGuard = make([]uint64, n)
	} else {
		clear(e.imageGuard)
	}
	e.retire.DrainReady()
	return nil
}

// waitAll waits for the last submitted fence value, then for the device.
func (e *Engine) waitAll(what string) error {
	if v := e.counter.Submitted(); v > 0 {
		if err := e.bp.WaitValue(v, what); err != nil {
			return err
		}
	}
	if err := e.dev.WaitIdle(); err != nil {
		return fmt.Errorf("framepace: device wait idle: %w", err)
	}
	return nil
}

// Shutdown waits for every frame in flight, destroys all retired resources,
// runs the OnShutdown functions, and releases the frame slots and fence. The
// device is destroyed too when the engine owns it.
//
// A frame still being recorded is abandoned. If the GPU hangs, Shutdown
// returns an error wrapping ErrDeviceHang and releases nothing, since the GPU
// may still be using the resources. If the device is lost, resources are
// released anyway and the error is returned. Calling Shutdown again after it
// has completed returns nil.
func (e *Engine) Shutdown() error {
	if e.isClosed() {
		return nil
	}

	if f := e.current; f != nil {
		e.current = nil
		f.ended = true
		if err := f.slot.recorder.End(); err != nil {
			e.log.Debug("framepace: abandon frame", "frame", f.number, "err", err)
		}
		e.abandon(f.slot, f.image)
	}

	err := e.waitAll("shutdown")
	if errors.Is(err, ErrDeviceHang) {
		return err
	}

	e.mu.Lock()
	e.closed = true
	deleters := e.deleters
	e.deleters = nil
	e.mu.Unlock()

	drained := e.retire.DrainReady()
	drained += e.retire.Flush()
	for i := len(deleters) - 1; i >= 0; i-- {
		deleters[i]()
	}

	e.pool.settle(^uint64(0))
	e.pool.destroy()
	e.counter.Destroy()
	if e.cfg.OwnDevice {
		e.dev.Destroy()
	}

	e.log.Info("framepace: engine shut down",
		"frames", e.frame.Load(),
		"retired", drained,
		"deleters", len(deleters),
		"err", err)
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// State returns the state of the most recent frame: Recording between
// BeginFrame and EndFrameAndPresent, otherwise the state of the last slot
// used, or Idle before the first frame.
func (e *Engine) State() FrameState {
	if e.current != nil {
		return Recording
	}
	if e.last == nil {
		return Idle
	}
	return e.last.state
}

// FrameNumber returns the number of the next frame to begin, which is also
// the number of frames submitted so far.
func (e *Engine) FrameNumber() uint64 { return e.frame.Load() }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := e.stats.snapshot()
	s.Retired = e.retire.Retired()
	s.PendingRetire = e.retire.Len()
	s.Submitted = e.counter.Submitted()
	s.Completed = e.counter.Completed()
	return s
}

// ID returns the engine session id used in log records.
func (e *Engine) ID() uuid.UUID { return e.id }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Device returns the device the engine drives.
func (e *Engine) Device() device.Device { return e.dev }

// Counter returns the engine's fence counter.
func (e *Engine) Counter() *fence.Counter { return e.counter }

// Pool returns the frame slot pool.
func (e *Engine) Pool() *SlotPool { return e.pool }
