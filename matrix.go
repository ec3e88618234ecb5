package tileconv

import (
	"fmt"
	"math"

	"github.com/gogpu/tileconv/internal/filter"
)

// Matrix is a row-major single precision matrix.
//
// The same type backs the full input and output buffers, the filter and
// every staging buffer.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix creates a zeroed matrix of the given extent.
// Returns nil for an invalid extent.
func NewMatrix(e Extent) *Matrix {
	if !e.Valid() {
		return nil
	}
	return &Matrix{Rows: e.Rows, Cols: e.Cols, Data: make([]float32, e.Size())}
}

// NewMatrixFrom wraps data as a matrix without copying.
func NewMatrixFrom(e Extent, data []float32) (*Matrix, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExtent, e)
	}
	if len(data) != e.Size() {
		return nil, fmt.Errorf("%w: %d elements for %s", ErrShapeMismatch, len(data), e)
	}
	return &Matrix{Rows: e.Rows, Cols: e.Cols, Data: data}, nil
}

// Fill creates a matrix with every element set to v.
func Fill(e Extent, v float32) *Matrix {
	m := NewMatrix(e)
	if m == nil {
		return nil
	}
	for i := range m.Data {
		m.Data[i] = v
	}
	return m
}

// Extent returns the matrix size.
func (m *Matrix) Extent() Extent {
	return Extent{Rows: m.Rows, Cols: m.Cols}
}

// At returns the element at (r, c).
func (m *Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

// Set sets the element at (r, c).
func (m *Matrix) Set(r, c int, v float32) {
	m.Data[r*m.Cols+c] = v
}

// Equal reports whether both matrices have the same extent and
// bit-identical elements.
func (m *Matrix) Equal(o *Matrix) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for i, v := range m.Data {
		if math.Float32bits(v) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: append([]float32(nil), m.Data...)}
}

func (m *Matrix) plane() filter.Plane {
	return filter.Plane{Rows: m.Rows, Cols: m.Cols, Data: m.Data}
}

// UniformFilter returns a filter with every tap set to v, the filter of
// the benchmark configuration.
func UniformFilter(e Extent, v float32) *Matrix {
	if !e.Valid() {
		return nil
	}
	return &Matrix{Rows: e.Rows, Cols: e.Cols, Data: filter.Uniform(e.Rows, e.Cols, v)}
}

// BoxFilter returns a normalized box filter.
func BoxFilter(e Extent) *Matrix {
	if !e.Valid() {
		return nil
	}
	m := &Matrix{Rows: e.Rows, Cols: e.Cols}
	m.Data = filter.Outer(filter.BoxKernel(e.Rows), filter.BoxKernel(e.Cols))
	return m
}

// GaussianFilter returns a normalized separable Gaussian filter.
// A non-positive sigma spans three standard deviations over each radius.
func GaussianFilter(e Extent, sigma float64) *Matrix {
	if !e.Valid() {
		return nil
	}
	m := &Matrix{Rows: e.Rows, Cols: e.Cols}
	m.Data = filter.Outer(
		filter.CachedGaussianKernel(e.Rows, sigma),
		filter.CachedGaussianKernel(e.Cols, sigma),
	)
	return m
}
