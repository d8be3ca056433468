package framepace

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loov/hrtime"

	"github.com/gogpu/framepace/fence"
)

// slowWait is the wait duration above which a wait is logged as a warning.
const slowWait = 100 * time.Millisecond

// Backpressure stops the CPU from getting more than N frames ahead of the
// GPU. It is the only place the render loop blocks in steady state.
type Backpressure struct {
	counter *fence.Counter
	timeout time.Duration
	stats   *statsRecorder
	log     *slog.Logger
}

func newBackpressure(c *fence.Counter, timeout time.Duration, st *statsRecorder, log *slog.Logger) *Backpressure {
	return &Backpressure{counter: c, timeout: timeout, stats: st, log: log}
}

// EnsureAvailable blocks until slot's previous submission has completed,
// then marks the slot Idle. It returns at once for a slot that is not in
// flight. A wait that outlasts the timeout returns ErrDeviceHang.
func (b *Backpressure) EnsureAvailable(slot *FrameSlot) error {
	if !slot.inFlight {
		return nil
	}
	prev := slot.state
	slot.state = Retiring
	if err := b.WaitValue(slot.retireValue, "slot"); err != nil {
		slot.state = prev
		return &FrameError{Op: "wait", Frame: slot.frame, Slot: slot.index, Err: err}
	}
	slot.inFlight = false
	slot.state = Idle
	return nil
}

// WaitValue blocks until the fence reaches v. what names the waiter in
// logs ("slot", "image", "idle").
func (b *Backpressure) WaitValue(v uint64, what string) error {
	if b.counter.Reached(v) {
		return nil
	}

	start := hrtime.Now()
	err := b.counter.WaitUntil(v, b.timeout)
	elapsed := hrtime.Since(start)
	b.stats.recordWait(elapsed)

	log := b.log
	switch {
	case err == nil:
		if elapsed > slowWait {
			log.Warn("framepace: slow fence wait", "for", what, "value", v, "elapsed", elapsed)
		} else {
			log.Debug("framepace: fence wait", "for", what, "value", v, "elapsed", elapsed)
		}
		return nil
	case errors.Is(err, fence.ErrTimedOut):
		log.Error("framepace: device hang", "for", what, "value", v,
			"completed", b.counter.Completed(), "timeout", b.timeout)
		return fmt.Errorf("%w: %w", ErrDeviceHang, err)
	default:
		log.Error("framepace: fence wait failed", "for", what, "value", v, "err", err)
		return err
	}
}
