//go:build !nogpu

package wgpu

import (
	"fmt"
	"image/color"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framepace/device"
)

// Recorder records one frame slot's commands into a fresh HAL command
// encoder per frame. The finished command buffer is kept until the next
// Reset, which only the frame pacer calls once the slot has retired.
type Recorder struct {
	dev  *Device
	slot int

	encoder   hal.CommandEncoder
	cmd       hal.CommandBuffer
	image     int
	recording bool
}

var _ device.Recorder = (*Recorder)(nil)

// Reset frees the command buffer of the previous frame.
func (r *Recorder) Reset() error {
	if r.recording {
		return fmt.Errorf("wgpu: reset: slot %d still recording", r.slot)
	}
	if r.cmd != nil {
		r.dev.device.FreeCommandBuffer(r.cmd)
		r.cmd = nil
	}
	return nil
}

// Begin opens a command encoder and moves image from presentable to
// render-target use.
func (r *Recorder) Begin(image int) error {
	if r.recording {
		return fmt.Errorf("wgpu: begin: slot %d already recording", r.slot)
	}
	img, err := r.dev.image(image)
	if err != nil {
		return err
	}

	label := fmt.Sprintf("frame_slot_%d", r.slot)
	enc, err := r.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return device.ResourceError("command encoder", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: img.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	r.dev.setTarget(image, true)
	r.encoder = enc
	r.image = image
	r.recording = true
	return nil
}

// Clear records a render pass that clears the target image to c.
func (r *Recorder) Clear(c color.Color) {
	if !r.recording {
		return
	}
	img, err := r.dev.image(r.image)
	if err != nil {
		return
	}
	rr, gg, bb, aa := c.RGBA()
	rp := r.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "frame_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    img.view,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(rr) / 0xffff,
				G: float64(gg) / 0xffff,
				B: float64(bb) / 0xffff,
				A: float64(aa) / 0xffff,
			},
		}},
	})
	rp.End()
}

// End moves the image back to presentable use and finishes the command
// buffer.
func (r *Recorder) End() error {
	if !r.recording {
		return errNotRecording
	}
	img, err := r.dev.image(r.image)
	if err != nil {
		r.encoder.DiscardEncoding()
		r.recording = false
		return err
	}
	r.encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: img.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	cmd, err := r.encoder.EndEncoding()
	r.recording = false
	r.encoder = nil
	r.dev.setTarget(r.image, false)
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	r.cmd = cmd
	return nil
}

// Native returns the hal.CommandEncoder while recording, nil otherwise.
func (r *Recorder) Native() any {
	if !r.recording {
		return nil
	}
	return r.encoder
}

// Destroy frees the last command buffer.
func (r *Recorder) Destroy() {
	if r.recording {
		r.encoder.DiscardEncoding()
		r.recording = false
	}
	if r.cmd != nil {
		r.dev.device.FreeCommandBuffer(r.cmd)
		r.cmd = nil
	}
}

func (r *Recorder) finished() hal.CommandBuffer {
	if r.recording {
		return nil
	}
	return r.cmd
}

func (d *Device) image(i int) (*swapImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.images) {
		return nil, fmt.Errorf("wgpu: image %d out of range", i)
	}
	return d.images[i], nil
}

func (d *Device) setTarget(i int, target bool) {
	d.mu.Lock()
	if i >= 0 && i < len(d.images) {
		d.images[i].target = target
	}
	d.mu.Unlock()
}
