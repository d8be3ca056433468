//go:build !nogpu

package main

// Register the GPU back end.
import _ "github.com/gogpu/framepace/device/wgpu"
