package sim

import (
	"fmt"

	"github.com/gogpu/framepace/device"
)

// ConstantWrite records one host write into a constant buffer.
type ConstantWrite struct {
	Offset uint64
	Len    uint64

	// Completed is the device's completed fence value at the time of the
	// write.
	Completed uint64
}

// ConstantBuffer is a simulated uniform buffer backed by host memory.
type ConstantBuffer struct {
	dev       *Device
	data      []byte
	writes    []ConstantWrite
	destroyed bool
}

var _ device.ConstantBuffer = (*ConstantBuffer)(nil)

// UniformAlignment returns the configured offset alignment.
func (d *Device) UniformAlignment() uint64 { return d.cfg.UniformAlignment }

// CreateConstantBuffer allocates a zeroed buffer of size bytes.
func (d *Device) CreateConstantBuffer(size uint64) (device.ConstantBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lost {
		return nil, device.ErrDeviceLost
	}
	if size == 0 {
		return nil, device.ResourceError("constant buffer", fmt.Errorf("zero size"))
	}
	b := &ConstantBuffer{dev: d, data: make([]byte, size)}
	d.buffers = append(d.buffers, b)
	return b, nil
}

// ConstantBuffers returns the buffers created so far.
func (d *Device) ConstantBuffers() []*ConstantBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*ConstantBuffer(nil), d.buffers...)
}

// Size returns the buffer size.
func (b *ConstantBuffer) Size() uint64 { return uint64(len(b.data)) }

// Write copies data to offset and logs the write with the completed value.
func (b *ConstantBuffer) Write(offset uint64, data []byte) error {
	d := b.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.destroyed {
		return fmt.Errorf("sim: write to destroyed constant buffer")
	}
	end := offset + uint64(len(data))
	if end < offset || end > uint64(len(b.data)) {
		return fmt.Errorf("sim: constant write [%d, %d) outside %d bytes", offset, end, len(b.data))
	}
	copy(b.data[offset:], data)
	b.writes = append(b.writes, ConstantWrite{
		Offset:    offset,
		Len:       uint64(len(data)),
		Completed: d.completedLocked(),
	})
	return nil
}

// Native returns the buffer itself.
func (b *ConstantBuffer) Native() any { return b }

// Destroy marks the buffer destroyed.
func (b *ConstantBuffer) Destroy() {
	b.dev.mu.Lock()
	b.destroyed = true
	b.dev.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (b *ConstantBuffer) Destroyed() bool {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.destroyed
}

// Bytes returns a copy of the buffer contents.
func (b *ConstantBuffer) Bytes() []byte {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Writes returns the write log.
func (b *ConstantBuffer) Writes() []ConstantWrite {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return append([]ConstantWrite(nil), b.writes...)
}
