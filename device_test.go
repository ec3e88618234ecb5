package tileconv

import (
	"bytes"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
)

var errInjected = errors.New("injected device failure")

// mockDevice runs every stage on the CPU. fail, when set, is consulted
// before each stage and may return an error instead.
type mockDevice struct {
	name    string
	initErr error
	fail    func(stage Stage, at Offset, clamp Clamp) error

	logger    *slog.Logger
	closed    atomic.Int32
	convolves atomic.Int32
}

func (m *mockDevice) Name() string { return m.name }
func (m *mockDevice) Init() error  { return m.initErr }
func (m *mockDevice) Close()       { m.closed.Add(1) }

func (m *mockDevice) SetLogger(l *slog.Logger) { m.logger = l }

func (m *mockDevice) check(stage Stage, at Offset, clamp Clamp) error {
	if m.fail == nil {
		return nil
	}
	return m.fail(stage, at, clamp)
}

func (m *mockDevice) CopyFrom(src, dst *Matrix, extent Extent, at Offset) error {
	if err := m.check(StageCopyIn, at, Clamp{}); err != nil {
		return err
	}
	return CPUDevice().CopyFrom(src, dst, extent, at)
}

func (m *mockDevice) CopyTo(src, dst *Matrix, extent Extent, at Offset) error {
	if err := m.check(StageCopyOut, at, Clamp{}); err != nil {
		return err
	}
	return CPUDevice().CopyTo(src, dst, extent, at)
}

func (m *mockDevice) Convolve(in, f *Matrix, clamp Clamp, out *Matrix) error {
	m.convolves.Add(1)
	if err := m.check(StageConvolve, Offset{}, clamp); err != nil {
		return err
	}
	return CPUDevice().Convolve(in, f, clamp, out)
}

// resetDevice removes any registered device.
func resetDevice() {
	devMu.Lock()
	registered = nil
	devMu.Unlock()
}

func TestRegisterDevice(t *testing.T) {
	t.Cleanup(resetDevice)
	resetDevice()

	if RegisteredDevice() != nil {
		t.Fatal("expected no registered device")
	}

	first := &mockDevice{name: "first"}
	if err := RegisterDevice(first); err != nil {
		t.Fatalf("RegisterDevice() = %v", err)
	}
	if RegisteredDevice() != first {
		t.Error("RegisteredDevice() did not return the registered device")
	}

	second := &mockDevice{name: "second"}
	if err := RegisterDevice(second); err != nil {
		t.Fatalf("RegisterDevice() = %v", err)
	}
	if first.closed.Load() != 1 {
		t.Errorf("replaced device closed %d times, want 1", first.closed.Load())
	}
	if RegisteredDevice() != second {
		t.Error("second registration did not replace the first")
	}

	UnregisterDevice()
	if RegisteredDevice() != nil {
		t.Error("UnregisterDevice() left a device registered")
	}
	if second.closed.Load() != 1 {
		t.Errorf("unregistered device closed %d times, want 1", second.closed.Load())
	}
}

func TestRegisterDeviceErrors(t *testing.T) {
	t.Cleanup(resetDevice)
	resetDevice()

	if err := RegisterDevice(nil); err == nil {
		t.Error("RegisterDevice(nil) should fail")
	}

	failing := &mockDevice{name: "failing", initErr: errInjected}
	if err := RegisterDevice(failing); !errors.Is(err, errInjected) {
		t.Errorf("RegisterDevice() = %v, want init error", err)
	}
	if RegisteredDevice() != nil {
		t.Error("device with failing Init must not be registered")
	}
}

func TestRegisterDevicePropagatesLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() {
		SetLogger(orig)
		resetDevice()
	})
	resetDevice()

	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(custom)

	m := &mockDevice{name: "logged"}
	if err := RegisterDevice(m); err != nil {
		t.Fatalf("RegisterDevice() = %v", err)
	}
	if m.logger != custom {
		t.Error("RegisterDevice did not propagate current logger")
	}
}

type providerDevice struct {
	mockDevice
	provider any
}

func (p *providerDevice) SetDeviceProvider(provider any) error {
	p.provider = provider
	return nil
}

func TestSetDeviceProvider(t *testing.T) {
	t.Cleanup(resetDevice)
	resetDevice()

	if err := SetDeviceProvider("anything"); err != nil {
		t.Errorf("SetDeviceProvider without device = %v, want nil", err)
	}

	if err := RegisterDevice(&mockDevice{name: "plain"}); err != nil {
		t.Fatal(err)
	}
	if err := SetDeviceProvider("anything"); err != nil {
		t.Errorf("SetDeviceProvider on unaware device = %v, want nil", err)
	}

	aware := &providerDevice{mockDevice: mockDevice{name: "aware"}}
	if err := RegisterDevice(aware); err != nil {
		t.Fatal(err)
	}
	if err := SetDeviceProvider("shared"); err != nil {
		t.Fatalf("SetDeviceProvider() = %v", err)
	}
	if aware.provider != "shared" {
		t.Errorf("provider = %v, want shared", aware.provider)
	}
}

func TestCPUDevice(t *testing.T) {
	d := CPUDevice()
	if d.Name() != "cpu" {
		t.Errorf("Name() = %q, want cpu", d.Name())
	}
	if err := d.Init(); err != nil {
		t.Errorf("Init() = %v", err)
	}
	d.Close()
}

func TestCopyRegion(t *testing.T) {
	src := NewMatrix(Ext(4, 5))
	for i := range src.Data {
		src.Data[i] = float32(i)
	}

	tests := []struct {
		name   string
		dst    Extent
		extent Extent
		srcAt  Offset
		dstAt  Offset
		err    error
	}{
		{"whole", Ext(4, 5), Ext(4, 5), At(0, 0), At(0, 0), nil},
		{"window", Ext(2, 3), Ext(2, 3), At(1, 2), At(0, 0), nil},
		{"into offset", Ext(6, 6), Ext(2, 2), At(2, 3), At(4, 4), nil},
		{"empty extent", Ext(2, 2), Ext(0, 2), At(0, 0), At(0, 0), ErrInvalidExtent},
		{"source overflow", Ext(4, 4), Ext(2, 3), At(3, 0), At(0, 0), ErrRegionOutOfBounds},
		{"source negative", Ext(4, 4), Ext(1, 1), At(-1, 0), At(0, 0), ErrRegionOutOfBounds},
		{"destination overflow", Ext(2, 2), Ext(2, 3), At(0, 0), At(0, 0), ErrRegionOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := NewMatrix(tt.dst)
			err := CopyRegion(src, dst, tt.extent, tt.srcAt, tt.dstAt)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("CopyRegion() = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("CopyRegion() = %v", err)
			}
			for r := range tt.extent.Rows {
				for c := range tt.extent.Cols {
					got := dst.At(tt.dstAt.Row+r, tt.dstAt.Col+c)
					want := src.At(tt.srcAt.Row+r, tt.srcAt.Col+c)
					if got != want {
						t.Errorf("dst(%d,%d) = %v, want %v", tt.dstAt.Row+r, tt.dstAt.Col+c, got, want)
					}
				}
			}
		})
	}
}

func TestCheckConvolve(t *testing.T) {
	f := UniformFilter(Ext(3, 3), 1)
	tests := []struct {
		name  string
		in    *Matrix
		clamp Clamp
		out   *Matrix
		ok    bool
	}{
		{"interior window", NewMatrix(Ext(6, 6)), Clamp{}, NewMatrix(Ext(4, 4)), true},
		{"leading clamp", NewMatrix(Ext(5, 5)), Clamp{LeadingRow: true, LeadingCol: true}, NewMatrix(Ext(4, 4)), true},
		{"window too small", NewMatrix(Ext(5, 5)), Clamp{}, NewMatrix(Ext(4, 4)), false},
		{"trailing clamp", NewMatrix(Ext(5, 5)), Clamp{TrailingRow: true, TrailingCol: true}, NewMatrix(Ext(4, 4)), true},
		{"single tile", NewMatrix(Ext(4, 4)), Clamp{LeadingRow: true, LeadingCol: true, TrailingRow: true, TrailingCol: true}, NewMatrix(Ext(4, 4)), true},
		{"missing trailing row halo", NewMatrix(Ext(5, 6)), Clamp{}, NewMatrix(Ext(4, 4)), false},
		{"missing trailing col halo", NewMatrix(Ext(6, 5)), Clamp{}, NewMatrix(Ext(4, 4)), false},
		{"leading clamp missing trailing halo", NewMatrix(Ext(4, 4)), Clamp{LeadingRow: true, LeadingCol: true}, NewMatrix(Ext(4, 4)), false},
		{"row trailing clamp only", NewMatrix(Ext(5, 6)), Clamp{TrailingRow: true}, NewMatrix(Ext(4, 4)), true},
		{"nil output", NewMatrix(Ext(5, 5)), Clamp{}, nil, false},
		{"empty output", NewMatrix(Ext(5, 5)), Clamp{}, &Matrix{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConvolve(tt.in, f, tt.clamp, tt.out)
			if tt.ok && err != nil {
				t.Errorf("CheckConvolve() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("CheckConvolve() = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

// TestCPUDeviceRejectsTruncatedHalo stages a window that lacks the trailing
// halo of an unclamped tile. Substituting boundary samples there would
// corrupt the tile seam, so the stage must fail instead.
func TestCPUDeviceRejectsTruncatedHalo(t *testing.T) {
	src := NewMatrix(Ext(6, 6))
	for i := range src.Data {
		src.Data[i] = float32(i)
	}
	f := UniformFilter(Ext(3, 3), 1)

	full := NewMatrix(Ext(6, 6))
	if err := CopyRegion(src, full, Ext(6, 6), At(0, 0), At(0, 0)); err != nil {
		t.Fatal(err)
	}
	out := NewMatrix(Ext(4, 4))
	if err := CPUDevice().Convolve(full, f, Clamp{}, out); err != nil {
		t.Fatalf("Convolve(full window) = %v", err)
	}
	// Output (3,3) is centred on window (4,4): rows 3..5, cols 3..5 of a ramp.
	if got := out.At(3, 3); got != 252 {
		t.Errorf("out(3,3) = %v, want 252", got)
	}

	short := NewMatrix(Ext(5, 5))
	if err := CopyRegion(src, short, Ext(5, 5), At(0, 0), At(0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := CPUDevice().Convolve(short, f, Clamp{}, NewMatrix(Ext(4, 4))); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Convolve(window without trailing halo) = %v, want ErrShapeMismatch", err)
	}
	if err := CPUDevice().Convolve(short, f, Clamp{TrailingRow: true, TrailingCol: true}, NewMatrix(Ext(4, 4))); err != nil {
		t.Errorf("Convolve(trailing-clamped window) = %v, want nil", err)
	}
}
