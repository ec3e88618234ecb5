// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/tileconv"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// selfCheckTolerance is the largest per-element difference accepted
// between the GPU and the CPU device during the Init self-check.
const selfCheckTolerance = 1e-4

// maxStorageBindingSize is the WebGPU default maxStorageBufferBindingSize.
// A tile whose window, filter or output needs a larger binding is left to
// the CPU.
const maxStorageBindingSize = 128 << 20

// ConvDevice runs the convolution stage of each tile as a compute shader.
// Stage-in and stage-out copies stay on the host.
//
// If no GPU is available, or the GPU fails the Init self-check, Convolve
// returns tileconv.ErrFallbackToCPU and the scheduler uses the CPU.
type ConvDevice struct {
	mu             sync.Mutex
	instance       hal.Instance
	device         hal.Device
	queue          hal.Queue
	pipeline       *convPipeline
	gpuReady       bool
	externalDevice bool
	adapterName    string
}

var _ tileconv.Device = (*ConvDevice)(nil)

// Name returns "wgpu".
func (d *ConvDevice) Name() string { return "wgpu" }

// Init opens a GPU device and verifies the shader against the CPU.
// GPU failures are not errors: the device stays registered and falls
// back to the CPU.
func (d *ConvDevice) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpuReady {
		return nil
	}
	if err := d.initGPU(); err != nil {
		slogger().Warn("tileconv/gpu: GPU init failed, using CPU fallback", "err", err)
		d.releaseLocked()
		return nil
	}
	if err := d.selfCheckLocked(); err != nil {
		slogger().Warn("tileconv/gpu: self-check failed, using CPU fallback", "err", err)
		d.releaseLocked()
		return nil
	}
	slogger().Info("tileconv/gpu: device initialized", "adapter", d.adapterName)
	return nil
}

// Close releases GPU resources. A shared device is not destroyed.
func (d *ConvDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()
}

// Ready reports whether Convolve runs on the GPU.
func (d *ConvDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gpuReady
}

// SetLogger installs the logger used by this package.
// tileconv.SetLogger calls it on the registered device.
func (d *ConvDevice) SetLogger(l *slog.Logger) { setLogger(l) }

// SetDeviceProvider switches the device to a shared GPU device from an
// external provider. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue.
func (d *ConvDevice) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return errors.New("tileconv/gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return errors.New("tileconv/gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return errors.New("tileconv/gpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseLocked()

	d.device = device
	d.queue = queue
	d.externalDevice = true
	d.adapterName = "shared"
	if err := d.createPipelineLocked(); err != nil {
		d.releaseLocked()
		return fmt.Errorf("tileconv/gpu: create pipeline with shared device: %w", err)
	}
	if err := d.selfCheckLocked(); err != nil {
		d.releaseLocked()
		return fmt.Errorf("tileconv/gpu: shared device: %w", err)
	}
	slogger().Info("tileconv/gpu: switched to shared GPU device")
	return nil
}

// CopyFrom stages the input window on the host.
func (d *ConvDevice) CopyFrom(src, dst *tileconv.Matrix, extent tileconv.Extent, at tileconv.Offset) error {
	return tileconv.CopyRegion(src, dst, extent, at, tileconv.Offset{})
}

// CopyTo writes the finished tile back on the host.
func (d *ConvDevice) CopyTo(src, dst *tileconv.Matrix, extent tileconv.Extent, at tileconv.Offset) error {
	return tileconv.CopyRegion(src, dst, extent, tileconv.Offset{}, at)
}

// Convolve dispatches one tile to the GPU. Dispatches are serialized on
// the device queue.
func (d *ConvDevice) Convolve(in, f *tileconv.Matrix, clamp tileconv.Clamp, out *tileconv.Matrix) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.gpuReady {
		return tileconv.ErrFallbackToCPU
	}
	return d.convolveLocked(in, f, clamp, out)
}

func (d *ConvDevice) convolveLocked(in, f *tileconv.Matrix, clamp tileconv.Clamp, out *tileconv.Matrix) error {
	if err := tileconv.CheckConvolve(in, f, clamp, out); err != nil {
		return err
	}
	params, err := paramsFor(in, f, clamp, out)
	if err != nil {
		return err
	}
	result, err := d.pipeline.run(params, in.Data, f.Data)
	if err != nil {
		return fmt.Errorf("tileconv/gpu: dispatch: %w", err)
	}
	copy(out.Data, result)
	return nil
}

// paramsFor builds the shader uniform for one dispatch.
func paramsFor(in, f *tileconv.Matrix, clamp tileconv.Clamp, out *tileconv.Matrix) (convParams, error) {
	o := clamp.Origin(f.Extent())
	dims := [...]int{in.Rows, in.Cols, out.Rows, out.Cols, f.Rows, f.Cols, o.Row, o.Col}
	var u [len(dims)]uint32
	for i, v := range dims {
		if v < 0 || uint64(v) > math.MaxUint32 {
			return convParams{}, fmt.Errorf("%w: dimension %d does not fit the shader", tileconv.ErrShapeMismatch, v)
		}
		u[i] = uint32(v) //nolint:gosec // checked above
	}
	for _, m := range [...]*tileconv.Matrix{in, f, out} {
		if size := uint64(m.Rows) * uint64(m.Cols) * 4; size > maxStorageBindingSize { //nolint:gosec // dims checked above
			return convParams{}, fmt.Errorf("%w: %s buffer of %d bytes exceeds the storage binding limit",
				tileconv.ErrFallbackToCPU, m.Extent(), size)
		}
	}
	var policy uint32
	if clamp.Policy == tileconv.BoundaryZero {
		policy = 1
	}
	return convParams{
		InRows: u[0], InCols: u[1],
		OutRows: u[2], OutCols: u[3],
		KRows: u[4], KCols: u[5],
		OriginRow: u[6], OriginCol: u[7],
		Policy: policy,
	}, nil
}

// selfCheckLocked runs a small tile with a clamped corner through the GPU
// and the CPU device and compares them. On success gpuReady is set.
func (d *ConvDevice) selfCheckLocked() error {
	const n = 12
	in := tileconv.NewMatrix(tileconv.Ext(n, n))
	for i := range in.Data {
		in.Data[i] = float32(i%7) * 0.25
	}
	f := tileconv.GaussianFilter(tileconv.Ext(3, 3), 0)
	clamps := []tileconv.Clamp{
		{LeadingRow: true, LeadingCol: true, Policy: tileconv.BoundaryClamp},
		{TrailingRow: true, TrailingCol: true, Policy: tileconv.BoundaryZero},
	}
	for _, clamp := range clamps {
		tile := tileconv.Ext(n-1, n-1)
		got := tileconv.NewMatrix(tile)
		want := tileconv.NewMatrix(tile)
		if err := d.convolveLocked(in, f, clamp, got); err != nil {
			return err
		}
		if err := tileconv.CPUDevice().Convolve(in, f, clamp, want); err != nil {
			return err
		}
		if v := tileconv.Compare(got, want, tile, selfCheckTolerance); !v.Pass {
			return fmt.Errorf("GPU result differs from CPU: %s", v)
		}
	}
	d.gpuReady = true
	return nil
}

func (d *ConvDevice) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return errors.New("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	d.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return errors.New("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapterName = selected.Info.Name
	return d.createPipelineLocked()
}

func (d *ConvDevice) createPipelineLocked() error {
	p := newConvPipeline(d.device, d.queue)
	if err := p.create(); err != nil {
		p.destroy()
		return err
	}
	d.pipeline = p
	return nil
}

// releaseLocked destroys the pipeline and, unless shared, the device.
func (d *ConvDevice) releaseLocked() {
	if d.pipeline != nil {
		d.pipeline.destroy()
		d.pipeline = nil
	}
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.gpuReady = false
	d.externalDevice = false
	d.adapterName = ""
}
