// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/tileconv"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

type fakeProvider struct {
	device, queue any
}

func (p fakeProvider) HalDevice() any { return p.device }
func (p fakeProvider) HalQueue() any  { return p.queue }

func TestConvShaderCompilation(t *testing.T) {
	words, err := compileSPIRV(conv2dShaderWGSL)
	if err != nil {
		t.Skipf("Skipping: naga cannot compile conv2d yet: %v", err)
	}
	if len(words) < 5 {
		t.Fatalf("SPIR-V too short: %d words", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("SPIR-V magic = %#x, want 0x07230203", words[0])
	}
}

func TestConvPipelineCreateDestroy(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	p := newConvPipeline(device, queue)
	if err := p.create(); err != nil {
		p.destroy()
		t.Skipf("Skipping: pipeline creation failed: %v", err)
	}
	if p.shader == nil || p.bindLayout == nil || p.pipeLayout == nil || p.pipeline == nil {
		t.Fatal("expected all pipeline objects after create")
	}
	p.destroy()
	if p.shader != nil || p.bindLayout != nil || p.pipeLayout != nil || p.pipeline != nil {
		t.Error("expected nil pipeline objects after destroy")
	}
	p.destroy() // idempotent
}

func TestConvParamsBytes(t *testing.T) {
	p := convParams{
		InRows: 1, InCols: 2, OutRows: 3, OutCols: 4,
		KRows: 5, KCols: 6, OriginRow: 7, OriginCol: 8, Policy: 1,
	}
	b := p.bytes()
	if len(b) != convParamsSize {
		t.Fatalf("len = %d, want %d", len(b), convParamsSize)
	}
	want := []uint32{1, 2, 3, 4, 5, 6, 7, 8, 1, 0, 0, 0}
	for i, w := range want {
		got := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		if got != w {
			t.Errorf("word %d = %d, want %d", i, got, w)
		}
	}
}

func TestFloat32Packing(t *testing.T) {
	in := []float32{0, 1, -2.5, 0.3, float32(math.Inf(1)), math.SmallestNonzeroFloat32}
	b := float32Bytes(in)
	if len(b) != len(in)*4 {
		t.Fatalf("len = %d, want %d", len(b), len(in)*4)
	}
	out := bytesFloat32(b)
	for i := range in {
		if math.Float32bits(out[i]) != math.Float32bits(in[i]) {
			t.Errorf("[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestParamsFor(t *testing.T) {
	in := tileconv.NewMatrix(tileconv.Ext(6, 5))
	f := tileconv.UniformFilter(tileconv.Ext(3, 3), 0.3)
	out := tileconv.NewMatrix(tileconv.Ext(5, 4))

	tests := []struct {
		name  string
		clamp tileconv.Clamp
		want  convParams
	}{
		{
			name:  "leading clamp",
			clamp: tileconv.Clamp{LeadingRow: true, LeadingCol: true},
			want:  convParams{InRows: 6, InCols: 5, OutRows: 5, OutCols: 4, KRows: 3, KCols: 3},
		},
		{
			name:  "trailing zero",
			clamp: tileconv.Clamp{TrailingRow: true, TrailingCol: true, Policy: tileconv.BoundaryZero},
			want: convParams{
				InRows: 6, InCols: 5, OutRows: 5, OutCols: 4, KRows: 3, KCols: 3,
				OriginRow: 1, OriginCol: 1, Policy: 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := paramsFor(in, f, tt.clamp, out)
			if err != nil {
				t.Fatalf("paramsFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("paramsFor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParamsFor_StorageLimit(t *testing.T) {
	f := tileconv.UniformFilter(tileconv.Ext(3, 3), 1)
	// 8192x8192 float32 is 256 MiB, twice the default binding limit. The
	// shapes only need their extents here.
	big := &tileconv.Matrix{Rows: 8192, Cols: 8192}
	small := tileconv.NewMatrix(tileconv.Ext(4, 4))

	tests := []struct {
		name    string
		in, out *tileconv.Matrix
	}{
		{"window", big, small},
		{"output", big, &tileconv.Matrix{Rows: 8190, Cols: 8190}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := paramsFor(tt.in, f, tileconv.Clamp{}, tt.out)
			if !errors.Is(err, tileconv.ErrFallbackToCPU) {
				t.Errorf("paramsFor err = %v, want ErrFallbackToCPU", err)
			}
		})
	}

	// A window exactly at the limit still dispatches.
	in := &tileconv.Matrix{Rows: 4096, Cols: 8192}
	if _, err := paramsFor(in, f, tileconv.Clamp{}, small); err != nil {
		t.Errorf("paramsFor(128 MiB window) = %v, want nil", err)
	}
}

func TestConvDevice_NotReadyFallsBack(t *testing.T) {
	d := &ConvDevice{}
	if d.Ready() {
		t.Fatal("zero ConvDevice should not be ready")
	}
	in := tileconv.Fill(tileconv.Ext(4, 4), 1)
	f := tileconv.UniformFilter(tileconv.Ext(3, 3), 1)
	out := tileconv.NewMatrix(tileconv.Ext(3, 3))
	err := d.Convolve(in, f, tileconv.Clamp{LeadingRow: true, LeadingCol: true}, out)
	if !errors.Is(err, tileconv.ErrFallbackToCPU) {
		t.Errorf("Convolve err = %v, want ErrFallbackToCPU", err)
	}
	d.Close()
}

func TestConvDevice_HostCopies(t *testing.T) {
	d := &ConvDevice{}
	src := tileconv.NewMatrix(tileconv.Ext(4, 4))
	for i := range src.Data {
		src.Data[i] = float32(i)
	}
	win := tileconv.NewMatrix(tileconv.Ext(2, 3))
	if err := d.CopyFrom(src, win, win.Extent(), tileconv.At(1, 1)); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	want := []float32{5, 6, 7, 9, 10, 11}
	for i, w := range want {
		if win.Data[i] != w {
			t.Errorf("window[%d] = %v, want %v", i, win.Data[i], w)
		}
	}

	dst := tileconv.NewMatrix(tileconv.Ext(4, 4))
	if err := d.CopyTo(win, dst, win.Extent(), tileconv.At(2, 0)); err != nil {
		t.Fatalf("CopyTo: %v", err)
	}
	if dst.At(2, 0) != 5 || dst.At(3, 2) != 11 {
		t.Errorf("CopyTo wrote %v", dst.Data)
	}
	if err := d.CopyTo(win, dst, win.Extent(), tileconv.At(3, 3)); !errors.Is(err, tileconv.ErrRegionOutOfBounds) {
		t.Errorf("out of bounds CopyTo err = %v", err)
	}
}

func TestConvDevice_SetDeviceProviderRejects(t *testing.T) {
	d := &ConvDevice{}
	tests := []struct {
		name     string
		provider any
	}{
		{"not a provider", struct{}{}},
		{"wrong device type", fakeProvider{device: 1, queue: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.SetDeviceProvider(tt.provider); err == nil {
				t.Error("expected error")
			}
			if d.Ready() {
				t.Error("device should not be ready")
			}
		})
	}
}

// TestConvDevice_MatchesCPU runs on a real GPU when one is available.
func TestConvDevice_MatchesCPU(t *testing.T) {
	d := &ConvDevice{}
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()
	if !d.Ready() {
		t.Skip("Skipping: no GPU available")
	}

	cfg := tileconv.Config{
		Total: tileconv.Ext(64, 48), Tile: tileconv.Ext(16, 16), Filter: tileconv.Ext(5, 3),
		InputValue: 0.6, FilterValue: 0.3,
	}
	s, err := tileconv.NewScheduler(cfg, tileconv.WithDevice(d))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	defer s.Close()

	in := tileconv.NewMatrix(cfg.Total)
	for i := range in.Data {
		in.Data[i] = float32(i%13) * 0.1
	}
	f := tileconv.GaussianFilter(cfg.Filter, 0)
	res, err := s.Run(t.Context(), in, f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := tileconv.ReferenceConvolve(in, f, tileconv.BoundaryClamp)
	if v := tileconv.Compare(res.Output, want, res.Covered, selfCheckTolerance); !v.Pass {
		t.Errorf("GPU output differs: %s", v)
	}
}
