//go:build !nogpu

package wgpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framepace/device"
)

// uniformAlignment is the WebGPU default minUniformBufferOffsetAlignment.
const uniformAlignment = 256

// ConstantBuffer is a uniform buffer written through the queue.
type ConstantBuffer struct {
	dev  *Device
	buf  hal.Buffer
	size uint64

	mu        sync.Mutex
	destroyed bool
}

var _ device.ConstantBuffer = (*ConstantBuffer)(nil)

// UniformAlignment returns the uniform buffer offset alignment.
func (d *Device) UniformAlignment() uint64 { return uniformAlignment }

// CreateConstantBuffer creates a Uniform|CopyDst buffer of size bytes.
func (d *Device) CreateConstantBuffer(size uint64) (device.ConstantBuffer, error) {
	if size == 0 {
		return nil, device.ResourceError("constant buffer", fmt.Errorf("zero size"))
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "framepace_constants",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, device.ResourceError("constant buffer", err)
	}
	return &ConstantBuffer{dev: d, buf: buf, size: size}, nil
}

// Size returns the buffer size.
func (b *ConstantBuffer) Size() uint64 { return b.size }

// Write queues a write of data at offset.
func (b *ConstantBuffer) Write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return fmt.Errorf("wgpu: write to destroyed constant buffer")
	}
	end := offset + uint64(len(data))
	if end < offset || end > b.size {
		return fmt.Errorf("wgpu: constant write [%d, %d) outside %d bytes", offset, end, b.size)
	}
	if len(data) > 0 {
		b.dev.queue.WriteBuffer(b.buf, offset, data)
	}
	return nil
}

// Native returns the hal.Buffer.
func (b *ConstantBuffer) Native() any { return b.buf }

// Destroy releases the buffer.
func (b *ConstantBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.destroyed = true
	b.dev.device.DestroyBuffer(b.buf)
}
