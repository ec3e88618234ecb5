// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu provides the wgpu convolution device.
//
// This is an internal package used by tileconv/gpu. ConvDevice runs the
// convolution stage of each tile as a WGSL compute shader through the
// gogpu/wgpu HAL (zero CGO). The shader is compiled to SPIR-V with
// gogpu/naga and the pipeline is built once per device.
//
// # Dispatch
//
// Each tile gets fresh buffers:
//
//	params (uniform) | window (storage) | taps (storage) -> dst (storage) -> staging (map read)
//
// One invocation computes one output element over an 8x8 workgroup. The
// host waits on a fence and reads the staging buffer back into the output
// tile. Stage-in and stage-out copies stay on the host.
//
// # Fallback
//
// Init never fails. Without a usable adapter, or when the shader result
// differs from the CPU device on a small self-check, Convolve returns
// tileconv.ErrFallbackToCPU and the scheduler runs the stage on the CPU.
package gpu
