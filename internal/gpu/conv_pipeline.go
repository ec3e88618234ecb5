// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// convWorkgroupSize matches @workgroup_size in conv2d.wgsl.
const convWorkgroupSize = 8

// convFenceTimeout bounds the wait for one tile dispatch.
const convFenceTimeout = 5 * time.Second

// convParams mirrors the Params uniform in conv2d.wgsl.
// The three trailing pad words are written as zero by bytes.
type convParams struct {
	InRows, InCols   uint32
	OutRows, OutCols uint32
	KRows, KCols     uint32
	OriginRow        uint32
	OriginCol        uint32
	Policy           uint32
}

// convParamsSize is the padded uniform size in bytes.
const convParamsSize = 12 * 4

// bytes serializes the params in WGSL uniform layout.
func (p convParams) bytes() []byte {
	b := make([]byte, convParamsSize)
	fields := [...]uint32{
		p.InRows, p.InCols, p.OutRows, p.OutCols,
		p.KRows, p.KCols, p.OriginRow, p.OriginCol, p.Policy,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

// convPipeline owns the compute pipeline of the convolution shader on one
// device. It is not safe for concurrent use; ConvDevice serializes access.
type convPipeline struct {
	device hal.Device
	queue  hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func newConvPipeline(device hal.Device, queue hal.Queue) *convPipeline {
	return &convPipeline{device: device, queue: queue}
}

// create compiles the shader and builds the pipeline.
func (p *convPipeline) create() error {
	shader, err := createShaderModule(p.device, "conv2d", conv2dShaderWGSL)
	if err != nil {
		return fmt.Errorf("conv2d shader: %w", err)
	}
	p.shader = shader

	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "conv2d_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "conv2d_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "conv2d_pipeline", Layout: p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = pipeline
	return nil
}

// destroy releases the pipeline objects. The device itself is not touched.
func (p *convPipeline) destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}

// buffers holds the per-dispatch GPU buffers of one tile.
type buffers struct {
	params, src, taps, dst, staging hal.Buffer
}

func (p *convPipeline) destroyBuffers(b *buffers) {
	for _, buf := range []hal.Buffer{b.params, b.src, b.taps, b.dst, b.staging} {
		if buf != nil {
			p.device.DestroyBuffer(buf)
		}
	}
}

// run dispatches one tile: uploads the window and taps, runs the shader
// and reads the output back. Every buffer is created for this call and
// destroyed before it returns, mirroring the fresh staging buffers of the
// scheduler.
func (p *convPipeline) run(params convParams, src, taps []float32) ([]float32, error) {
	n := int(params.OutRows) * int(params.OutCols)
	dstSize := uint64(n) * 4 //nolint:gosec // n is a product of two uint32 values

	var b buffers
	defer p.destroyBuffers(&b)

	var err error
	if b.params, err = p.createBuffer("conv2d_params", convParamsSize,
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if b.src, err = p.createBuffer("conv2d_src", uint64(len(src)*4), //nolint:gosec // window sizes fit uint64
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if b.taps, err = p.createBuffer("conv2d_taps", uint64(len(taps)*4), //nolint:gosec // filter sizes fit uint64
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if b.dst, err = p.createBuffer("conv2d_dst", dstSize,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc); err != nil {
		return nil, err
	}
	if b.staging, err = p.createBuffer("conv2d_staging", dstSize,
		gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst); err != nil {
		return nil, err
	}

	p.queue.WriteBuffer(b.params, 0, params.bytes())
	p.queue.WriteBuffer(b.src, 0, float32Bytes(src))
	p.queue.WriteBuffer(b.taps, 0, float32Bytes(taps))

	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "conv2d_bind", Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.params.NativeHandle(), Offset: 0, Size: convParamsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: b.src.NativeHandle(), Offset: 0, Size: uint64(len(src) * 4)}},   //nolint:gosec // see above
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: b.taps.NativeHandle(), Offset: 0, Size: uint64(len(taps) * 4)}}, //nolint:gosec // see above
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: b.dst.NativeHandle(), Offset: 0, Size: dstSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer p.device.DestroyBindGroup(bg)

	if err := p.submit(bg, b.dst, b.staging, params, dstSize); err != nil {
		return nil, err
	}

	readback := make([]byte, dstSize)
	if err := p.queue.ReadBuffer(b.staging, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return bytesFloat32(readback), nil
}

// submit encodes the compute pass and the copy to the readback buffer,
// submits them and waits on a fence.
func (p *convPipeline) submit(bg hal.BindGroup, dst, staging hal.Buffer, params convParams, size uint64) error {
	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "conv2d_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("conv2d"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "conv2d_pass"})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(
		(params.OutCols+convWorkgroupSize-1)/convWorkgroupSize,
		(params.OutRows+convWorkgroupSize-1)/convWorkgroupSize,
		1)
	pass.End()

	encoder.CopyBufferToBuffer(dst, staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)
	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := p.device.Wait(fence, 1, convFenceTimeout)
	if err != nil || !ok {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
	}
	return nil
}

func (p *convPipeline) createBuffer(label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create %s buffer: %w", label, err)
	}
	return buf, nil
}

// float32Bytes packs float32 values little-endian for upload.
func float32Bytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// bytesFloat32 unpacks little-endian float32 values after readback.
func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
