package framepace

import (
	"fmt"

	"github.com/gogpu/framepace/device"
)

// FrameSlot is the per-frame resource bundle: one command recorder, a
// frame-local constant region, and the fence value that must complete
// before either is reused.
//
// Slots are owned by a SlotPool. Only the render goroutine touches them.
type FrameSlot struct {
	index     int
	recorder  device.Recorder
	constants *ConstantRegion

	retireValue uint64
	inFlight    bool
	state       FrameState
	frame       uint64
	image       int
}

// Index returns the slot's position in the pool.
func (s *FrameSlot) Index() int { return s.index }

// Recorder returns the slot's command recorder.
func (s *FrameSlot) Recorder() device.Recorder { return s.recorder }

// Constants returns the slot's constant region.
func (s *FrameSlot) Constants() *ConstantRegion { return s.constants }

// RetireValue returns the fence value of the slot's last submission, or 0
// if the slot was never submitted.
func (s *FrameSlot) RetireValue() uint64 { return s.retireValue }

// InFlight reports whether the slot's last submission may still be
// executing.
func (s *FrameSlot) InFlight() bool { return s.inFlight }

// State returns the slot state.
func (s *FrameSlot) State() FrameState { return s.state }

// Frame returns the logical frame the slot last held.
func (s *FrameSlot) Frame() uint64 { return s.frame }

// Image returns the presentable image the slot last rendered to, or -1.
func (s *FrameSlot) Image() int { return s.image }

// reset resets the recorder. A slot in flight is never reset; the
// backpressure controller must retire it first.
func (s *FrameSlot) reset() error {
	if s.inFlight {
		return fmt.Errorf("%w: slot %d waits on fence value %d", ErrSlotBusy, s.index, s.retireValue)
	}
	return s.recorder.Reset()
}

// markSubmitted records the fence value of the slot's submission.
func (s *FrameSlot) markSubmitted(value uint64) {
	s.retireValue = value
	s.inFlight = true
	s.state = Submitted
}
