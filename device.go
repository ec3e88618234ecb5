package tileconv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/tileconv/internal/filter"
)

// ErrFallbackToCPU indicates a device cannot run this convolution.
// The scheduler transparently runs the stage on the CPU device instead.
var ErrFallbackToCPU = errors.New("tileconv: falling back to CPU convolution")

// Device executes the per-tile stages.
//
// The scheduler calls the stages of one tile in order from a single
// worker goroutine, and the stages of different tiles concurrently.
// Implementations must therefore be safe for concurrent use.
//
// Implementations are provided by device packages (e.g., tileconv/gpu).
// Users opt in via blank import:
//
//	import _ "github.com/gogpu/tileconv/gpu"
type Device interface {
	// Name returns the device name (e.g., "cpu", "wgpu").
	Name() string

	// Init acquires device resources. Called once during registration.
	Init() error

	// Close releases device resources.
	Close()

	// CopyFrom copies the extent-sized region of src starting at at into
	// dst starting at (0,0). This is the stage-in copy.
	CopyFrom(src, dst *Matrix, extent Extent, at Offset) error

	// CopyTo copies the extent-sized region of src starting at (0,0) into
	// dst starting at at. This is the stage-out copy.
	CopyTo(src, dst *Matrix, extent Extent, at Offset) error

	// Convolve computes one output tile from a staged input window.
	// out receives out.Rows x out.Cols elements. The clamp flags locate
	// the tile inside the window (see Clamp.Origin); samples outside the
	// window are replaced by clamp.Policy and never read.
	// Returns ErrFallbackToCPU if the device cannot run it.
	Convolve(in, filter *Matrix, clamp Clamp, out *Matrix) error
}

var (
	devMu      sync.RWMutex
	registered Device
)

// RegisterDevice registers the device used by schedulers created without
// WithDevice.
//
// Only one device can be registered. Subsequent calls replace and close
// the previous one. Init is called during registration; if it fails the
// device is not registered and the error is returned.
func RegisterDevice(d Device) error {
	if d == nil {
		return errors.New("tileconv: device must not be nil")
	}
	if err := d.Init(); err != nil {
		return err
	}
	propagateLogger(d, Logger())

	devMu.Lock()
	old := registered
	registered = d
	devMu.Unlock()
	if old != nil && old != d {
		old.Close()
	}
	Logger().Info("tileconv: device registered", "device", d.Name())
	return nil
}

// RegisteredDevice returns the registered device, or nil if none.
func RegisteredDevice() Device {
	devMu.RLock()
	d := registered
	devMu.RUnlock()
	return d
}

// UnregisterDevice closes and removes the registered device.
func UnregisterDevice() {
	devMu.Lock()
	old := registered
	registered = nil
	devMu.Unlock()
	if old != nil {
		old.Close()
	}
}

// cpuDevice runs every stage on the calling goroutine.
type cpuDevice struct{}

// CPUDevice returns the CPU device. It needs no initialization and is
// the fallback for every other device.
func CPUDevice() Device { return cpuDevice{} }

func (cpuDevice) Name() string { return "cpu" }
func (cpuDevice) Init() error  { return nil }
func (cpuDevice) Close()       {}

func (cpuDevice) CopyFrom(src, dst *Matrix, extent Extent, at Offset) error {
	return CopyRegion(src, dst, extent, at, Offset{})
}

func (cpuDevice) CopyTo(src, dst *Matrix, extent Extent, at Offset) error {
	return CopyRegion(src, dst, extent, Offset{}, at)
}

func (cpuDevice) Convolve(in, f *Matrix, clamp Clamp, out *Matrix) error {
	if err := CheckConvolve(in, f, clamp, out); err != nil {
		return err
	}
	o := clamp.Origin(f.Extent())
	filter.Convolve(out.plane(), in.plane(), f.plane(), o.Row, o.Col, clamp.Policy)
	return nil
}

// CheckConvolve validates the shapes passed to Device.Convolve: every
// dimension must be positive and the window must hold the tile after its
// origin plus the trailing halo on every side that is not trailing-clamped.
// Only a clamped side may be filled by the boundary policy.
func CheckConvolve(in, f *Matrix, clamp Clamp, out *Matrix) error {
	if in == nil || f == nil || out == nil {
		return fmt.Errorf("%w: nil matrix", ErrShapeMismatch)
	}
	if !in.Extent().Valid() || !f.Extent().Valid() || !out.Extent().Valid() {
		return fmt.Errorf("%w: empty matrix", ErrShapeMismatch)
	}
	o := clamp.Origin(f.Extent())
	need := Extent{Rows: o.Row + out.Rows, Cols: o.Col + out.Cols}
	if !clamp.TrailingRow {
		need.Rows += f.Rows / 2
	}
	if !clamp.TrailingCol {
		need.Cols += f.Cols / 2
	}
	if need.Rows > in.Rows || need.Cols > in.Cols {
		return fmt.Errorf("%w: window %s cannot hold tile %s at origin %s with its halo (need %s)",
			ErrShapeMismatch, in.Extent(), out.Extent(), o, need)
	}
	return nil
}

// CopyRegion copies the extent-sized region of src at srcAt into dst at
// dstAt, row by row. Both regions must lie inside their matrices.
func CopyRegion(src, dst *Matrix, extent Extent, srcAt, dstAt Offset) error {
	if !extent.Valid() {
		return fmt.Errorf("%w: copy extent %s", ErrInvalidExtent, extent)
	}
	if !inside(src, extent, srcAt) {
		return fmt.Errorf("%w: source %s at %s in %s", ErrRegionOutOfBounds, extent, srcAt, src.Extent())
	}
	if !inside(dst, extent, dstAt) {
		return fmt.Errorf("%w: destination %s at %s in %s", ErrRegionOutOfBounds, extent, dstAt, dst.Extent())
	}
	for r := range extent.Rows {
		s := (srcAt.Row+r)*src.Cols + srcAt.Col
		d := (dstAt.Row+r)*dst.Cols + dstAt.Col
		copy(dst.Data[d:d+extent.Cols], src.Data[s:s+extent.Cols])
	}
	return nil
}

func inside(m *Matrix, e Extent, at Offset) bool {
	return m != nil && at.Row >= 0 && at.Col >= 0 &&
		at.Row+e.Rows <= m.Rows && at.Col+e.Cols <= m.Cols
}

// DeviceProviderAware is implemented by devices that can run on a GPU
// device shared by the host application.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// SetDeviceProvider passes a device provider to the registered device.
// If no device is registered or it doesn't support device sharing, this
// is a no-op.
func SetDeviceProvider(provider any) error {
	d := RegisteredDevice()
	if d == nil {
		return nil
	}
	if dpa, ok := d.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}
