package framepace

import (
	"fmt"

	"github.com/gogpu/framepace/device"
)

// SlotPool is a fixed ring of frame slots indexed by logical frame number.
type SlotPool struct {
	slots  []*FrameSlot
	bp     *Backpressure
	buf    device.ConstantBuffer
	stride uint64
}

// newSlotPool builds one slot per recorder. Slot i gets the constant region
// at i*stride in buf.
func newSlotPool(recs []device.Recorder, bp *Backpressure, buf device.ConstantBuffer, stride, size uint64) *SlotPool {
	p := &SlotPool{
		slots:  make([]*FrameSlot, len(recs)),
		bp:     bp,
		buf:    buf,
		stride: stride,
	}
	for i, r := range recs {
		s := &FrameSlot{index: i, recorder: r, image: -1}
		s.constants = &ConstantRegion{buf: buf, slot: s, offset: uint64(i) * stride, size: size}
		p.slots[i] = s
	}
	return p
}

// Stride returns the byte distance between consecutive constant regions.
func (p *SlotPool) Stride() uint64 { return p.stride }

// ConstantBuffer returns the buffer shared by the slots' constant regions.
func (p *SlotPool) ConstantBuffer() device.ConstantBuffer { return p.buf }

// Size returns the number of slots.
func (p *SlotPool) Size() int { return len(p.slots) }

// Slot returns slot i.
func (p *SlotPool) Slot(i int) *FrameSlot { return p.slots[i] }

// Acquire returns the slot for logical frame number frame, blocking until
// its previous submission has retired.
func (p *SlotPool) Acquire(frame uint64) (*FrameSlot, error) {
	if len(p.slots) == 0 {
		return nil, fmt.Errorf("framepace: empty slot pool")
	}
	s := p.slots[frame%uint64(len(p.slots))]
	if err := p.bp.EnsureAvailable(s); err != nil {
		return nil, err
	}
	return s, nil
}

// InFlight returns how many slots may still be executing.
func (p *SlotPool) InFlight() int {
	n := 0
	for _, s := range p.slots {
		if s.inFlight {
			n++
		}
	}
	return n
}

// settle marks every slot whose value has been reached as idle. Only call
// it when no frame is recording.
func (p *SlotPool) settle(completed uint64) {
	for _, s := range p.slots {
		if s.inFlight && s.retireValue <= completed {
			s.inFlight = false
			s.state = Idle
		}
	}
}

func (p *SlotPool) destroy() {
	for _, s := range p.slots {
		s.recorder.Destroy()
	}
	p.buf.Destroy()
}
