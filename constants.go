package framepace

import (
	"fmt"

	"github.com/gogpu/framepace/device"
)

// ConstantRegion is a frame slot's window into the engine's shared constant
// buffer. Slot i owns bytes [i*stride, i*stride+size).
//
// The region is writable only while its slot is Recording. Once the frame is
// submitted the device may read it until the slot retires, so writes are
// refused until the slot's next BeginFrame.
type ConstantRegion struct {
	buf    device.ConstantBuffer
	slot   *FrameSlot
	offset uint64
	size   uint64
}

// Offset returns the region's byte offset in Buffer, suitable as a dynamic
// uniform offset.
func (r *ConstantRegion) Offset() uint64 { return r.offset }

// Size returns the usable region size in bytes.
func (r *ConstantRegion) Size() uint64 { return r.size }

// Buffer returns the shared constant buffer.
func (r *ConstantRegion) Buffer() device.ConstantBuffer { return r.buf }

// Write copies data to off within the region.
func (r *ConstantRegion) Write(off uint64, data []byte) error {
	s := r.slot
	if s.inFlight {
		return fmt.Errorf("%w: slot %d waits on fence value %d", ErrSlotBusy, s.index, s.retireValue)
	}
	if s.state != Recording {
		return fmt.Errorf("%w: slot %d is %s", ErrRegionLocked, s.index, s.state)
	}
	end := off + uint64(len(data))
	if end < off || end > r.size {
		return fmt.Errorf("%w: [%d, %d) in %d bytes", ErrRegionBounds, off, end, r.size)
	}
	return r.buf.Write(r.offset+off, data)
}

// newConstants creates one buffer holding n regions of size bytes each,
// strided by the device's uniform alignment.
func newConstants(dev device.Device, n int, size uint64) (device.ConstantBuffer, uint64, error) {
	stride := device.AlignUp(size, dev.UniformAlignment())
	buf, err := dev.CreateConstantBuffer(stride * uint64(n))
	if err != nil {
		return nil, 0, err
	}
	return buf, stride, nil
}
