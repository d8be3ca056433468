//go:build !nogpu

package vulkan

import (
	"image/color"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
)

var (
	errNotRecording = errors.New("vulkan: recorder is not recording")
	errNotClosed    = errors.New("vulkan: recorder is still recording")
)

var colorRange = vk.ImageSubresourceRange{
	AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// Recorder is one slot's transient command pool and its primary command
// buffer. Reset rewinds the whole pool.
type Recorder struct {
	dev  *Device
	slot int

	pool vk.CommandPool
	cmd  vk.CommandBuffer

	image     int
	target    vk.Image
	recording bool
}

func newRecorder(d *Device, slot int) (*Recorder, error) {
	r := &Recorder{dev: d, slot: slot, image: -1}

	ret := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}, nil, &r.pool)
	if err := check("create command pool", ret); err != nil {
		return nil, err
	}

	buffs := make([]vk.CommandBuffer, 1)
	ret = vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        r.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, buffs)
	if err := check("allocate command buffers", ret); err != nil {
		vk.DestroyCommandPool(d.device, r.pool, nil)
		return nil, err
	}
	r.cmd = buffs[0]
	return r, nil
}

// Reset resets the command pool, returning the buffer to the initial state.
func (r *Recorder) Reset() error {
	if r.recording {
		return errNotClosed
	}
	return check("reset command pool", vk.ResetCommandPool(r.dev.device, r.pool, 0))
}

// Begin begins the command buffer and moves the image into color
// attachment layout.
func (r *Recorder) Begin(image int) error {
	if r.recording {
		return errNotClosed
	}
	r.dev.mu.Lock()
	img, err := r.dev.image(image)
	r.dev.mu.Unlock()
	if err != nil {
		return err
	}

	ret := vk.BeginCommandBuffer(r.cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	if err := check("begin command buffer", ret); err != nil {
		return err
	}

	old := vk.ImageLayoutPresentSrc
	if !img.initialized {
		old = vk.ImageLayoutUndefined
		img.initialized = true
	}
	r.barrier(img.handle, old, vk.ImageLayoutColorAttachmentOptimal,
		0, vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		vk.PipelineStageBottomOfPipeBit, vk.PipelineStageColorAttachmentOutputBit)

	r.image = image
	r.target = img.handle
	r.recording = true
	return nil
}

// Clear records a clear of the target image.
func (r *Recorder) Clear(c color.Color) {
	if !r.recording {
		return
	}
	r.barrier(r.target, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutTransferDstOptimal,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.AccessFlags(vk.AccessTransferWriteBit),
		vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageTransferBit)

	cr, cg, cb, ca := c.RGBA()
	value := vk.ClearColorValue{}
	floats := (*[4]float32)(unsafe.Pointer(&value))
	floats[0] = float32(cr) / 0xffff
	floats[1] = float32(cg) / 0xffff
	floats[2] = float32(cb) / 0xffff
	floats[3] = float32(ca) / 0xffff
	vk.CmdClearColorImage(r.cmd, r.target, vk.ImageLayoutTransferDstOptimal,
		&value, 1, []vk.ImageSubresourceRange{colorRange})

	r.barrier(r.target, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutColorAttachmentOptimal,
		vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		vk.PipelineStageTransferBit, vk.PipelineStageColorAttachmentOutputBit)
}

// End moves the image to present layout and ends the command buffer.
func (r *Recorder) End() error {
	if !r.recording {
		return errNotRecording
	}
	r.barrier(r.target, vk.ImageLayoutColorAttachmentOptimal, vk.ImageLayoutPresentSrc,
		vk.AccessFlags(vk.AccessColorAttachmentWriteBit), 0,
		vk.PipelineStageColorAttachmentOutputBit, vk.PipelineStageBottomOfPipeBit)

	r.recording = false
	return check("end command buffer", vk.EndCommandBuffer(r.cmd))
}

// Native returns the vk.CommandBuffer. Content passes must leave the target
// in color attachment layout.
func (r *Recorder) Native() any { return r.cmd }

// Destroy destroys the command pool. The slot's semaphores stay with the
// Device.
func (r *Recorder) Destroy() { r.destroy() }

func (r *Recorder) destroy() {
	if r.pool == nil {
		return
	}
	vk.DestroyCommandPool(r.dev.device, r.pool, nil)
	r.pool = nil
	r.cmd = nil
}

func (r *Recorder) barrier(img vk.Image, from, to vk.ImageLayout, srcAccess, dstAccess vk.AccessFlags, srcStage, dstStage vk.PipelineStageFlagBits) {
	vk.CmdPipelineBarrier(
		r.cmd,
		vk.PipelineStageFlags(srcStage),
		vk.PipelineStageFlags(dstStage),
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			OldLayout:           from,
			NewLayout:           to,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange:    colorRange,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
		}},
	)
}
