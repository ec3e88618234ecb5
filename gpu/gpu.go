// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu registers the wgpu convolution device.
//
// Import this package to run the convolution stage of every tile as a
// compute shader. Stage-in and stage-out copies stay on the host.
//
// If GPU initialization fails (no Vulkan available) or the shader does not
// match the CPU result, the device stays registered and every tile falls
// back to the CPU.
//
// Usage:
//
//	import _ "github.com/gogpu/tileconv/gpu" // enable GPU convolution
package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/tileconv"
	gpuimpl "github.com/gogpu/tileconv/internal/gpu"
)

func init() {
	if err := tileconv.RegisterDevice(&gpuimpl.ConvDevice{}); err != nil {
		tileconv.Logger().Warn("GPU convolution device not available", "err", err)
	}
}

// SetDeviceProvider configures the registered device to use a GPU device
// shared by the host application instead of opening its own.
//
// The provider must also expose HalDevice() any and HalQueue() any
// returning wgpu/hal types.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	return tileconv.SetDeviceProvider(provider)
}
