// Package device defines the capability set the frame pacer drives on a GPU
// back end.
//
// A back end exposes exactly what per-frame synchronization needs: frame
// slot recorders, a counter fence that the queue signals and the host waits
// on, command submission, and an acquire/present pair for presentable images.
// Everything else (pipelines, descriptors, meshes, textures) belongs to the
// content layer and reaches the recorder through [Recorder.Native].
//
// # Back Ends
//
//   - "vulkan": explicit Vulkan via goki/vulkan (package device/vulkan).
//     Built from handles owned by the host window layer, so it is not
//     registered.
//   - "wgpu": gogpu/wgpu HAL (package device/wgpu), headless swap images.
//   - "sim": deterministic software timeline (package device/sim), used by
//     tests and the demo.
//
// # Registration
//
// Back ends that can open themselves register in init():
//
//	import _ "github.com/gogpu/framepace/device/sim"
//
//	dev, err := device.Open(device.Options{Images: 3})
//	// or a specific back end:
//	dev, err := device.OpenByName("sim", device.Options{Images: 3})
package device
