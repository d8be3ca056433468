//go:build !nogpu

package vulkan

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/gogpu/framepace/device"
)

// fallbackUniformAlignment is used when the driver reports no limit.
const fallbackUniformAlignment = 256

// ConstantBuffer is a host-visible, host-coherent uniform buffer that stays
// mapped for its lifetime. Writes land directly in device memory.
type ConstantBuffer struct {
	dev    *Device
	buf    vk.Buffer
	mem    vk.DeviceMemory
	ptr    unsafe.Pointer
	size   uint64
	mu     sync.Mutex
	closed bool
}

var _ device.ConstantBuffer = (*ConstantBuffer)(nil)

// UniformAlignment returns minUniformBufferOffsetAlignment.
func (d *Device) UniformAlignment() uint64 {
	if d.uniformAlign == 0 {
		return fallbackUniformAlignment
	}
	return d.uniformAlign
}

// CreateConstantBuffer allocates and maps a uniform buffer of size bytes.
func (d *Device) CreateConstantBuffer(size uint64) (device.ConstantBuffer, error) {
	if size == 0 {
		return nil, errors.Wrap(device.ErrResourceCreation, "vulkan: zero-size constant buffer")
	}
	if err := d.alive(); err != nil {
		return nil, err
	}

	var buf vk.Buffer
	ret := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buf)
	if err := check("create buffer", ret); err != nil {
		return nil, d.fail(err)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &reqs)
	reqs.Deref()

	typ, ok := memoryType(d.memProps, reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if !ok {
		vk.DestroyBuffer(d.device, buf, nil)
		return nil, errors.Wrap(device.ErrResourceCreation, "vulkan: no host-coherent memory type")
	}

	var mem vk.DeviceMemory
	ret = vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typ,
	}, nil, &mem)
	if err := check("allocate memory", ret); err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return nil, d.fail(err)
	}
	cleanup := func() {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
	}
	if err := check("bind buffer memory", vk.BindBufferMemory(d.device, buf, mem, 0)); err != nil {
		cleanup()
		return nil, d.fail(err)
	}

	var ptr unsafe.Pointer
	if err := check("map memory", vk.MapMemory(d.device, mem, 0, vk.DeviceSize(size), 0, &ptr)); err != nil {
		cleanup()
		return nil, d.fail(err)
	}
	d.logger.Debug("vulkan: constant buffer created", "size", size, "memory_type", typ)
	return &ConstantBuffer{dev: d, buf: buf, mem: mem, ptr: ptr, size: size}, nil
}

// memoryType picks the first memory type allowed by bits that has every
// flag in want.
func memoryType(props vk.PhysicalDeviceMemoryProperties, bits uint32, want vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < props.MemoryTypeCount && i < vk.MaxMemoryTypes; i++ {
		if bits&(1<<i) == 0 {
			continue
		}
		props.MemoryTypes[i].Deref()
		if props.MemoryTypes[i].PropertyFlags&want == want {
			return i, true
		}
	}
	return 0, false
}

// Size returns the buffer size.
func (b *ConstantBuffer) Size() uint64 { return b.size }

// Write copies data into the mapped memory at offset.
func (b *ConstantBuffer) Write(offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New("vulkan: write to destroyed constant buffer")
	}
	end := offset + uint64(len(data))
	if end < offset || end > b.size {
		return errors.AssertionFailedf("vulkan: constant write [%d, %d) outside %d bytes", offset, end, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	vk.Memcopy(unsafe.Add(b.ptr, int(offset)), data)
	return nil
}

// Native returns the vk.Buffer.
func (b *ConstantBuffer) Native() any { return b.buf }

// Destroy unmaps and frees the buffer. The queue must no longer read it.
func (b *ConstantBuffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	vk.UnmapMemory(b.dev.device, b.mem)
	vk.FreeMemory(b.dev.device, b.mem, nil)
	vk.DestroyBuffer(b.dev.device, b.buf, nil)
	b.ptr = nil
}
