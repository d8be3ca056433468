// Package framepace paces frames between the CPU and GPU of a real-time
// renderer built on an explicit GPU API.
//
// # Overview
//
// The CPU records frame N+1 while the GPU executes frame N. framepace keeps
// that overlap bounded and safe: a ring of frame slots, each with its own
// command recorder, lets up to N frames be in flight; a monotonic fence
// counter tells the host which frames the GPU has finished; and a retirement
// queue destroys resources only once no in-flight frame can read them.
//
// # Quick Start
//
//	dev := sim.New(sim.Config{Mode: sim.Latency, Latency: 4 * time.Millisecond})
//
//	e, err := framepace.New(dev, framepace.WithFramesInFlight(2))
//	if err != nil {
//		return err
//	}
//	defer e.Shutdown()
//
//	for running {
//		f, err := e.BeginFrame()
//		if err != nil {
//			return err
//		}
//		f.Recorder().Clear(colornames.Cornflowerblue)
//		if err := e.EndFrameAndPresent(); err != nil && framepace.IsFatal(err) {
//			return err
//		}
//	}
//
// # Frame Lifecycle
//
// Each slot cycles through Idle, Recording, Submitted, Presented and
// Retiring. BeginFrame picks slot (frame mod N) and blocks only if that
// slot's previous submission has not completed: this is the single
// steady-state blocking point. EndFrameAndPresent submits, signals the next
// fence value, presents, and drains the retirement queue.
//
// Slots and presentable images are separate rings. The slot is chosen from
// the logical frame number; the image comes from the device's acquire. A
// per-image fence value keeps an image from being rendered to while an
// earlier frame that targets it is still executing.
//
// # Errors
//
// ErrDeviceLost and ErrDeviceHang are fatal (see IsFatal). ErrPresentFailed
// means the surface is out of date: call WaitIdle, recreate the surface,
// then begin the next frame. ErrResourceCreation is never retried.
//
// # Back Ends
//
// Devices implement [device.Device]. See packages device/vulkan,
// device/wgpu and device/sim.
package framepace
