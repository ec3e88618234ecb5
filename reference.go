package tileconv

import "github.com/gogpu/tileconv/internal/filter"

// ReferenceConvolve convolves the whole input in one pass, without
// tiling, under boundary policy b. Tiled runs must match it bit for bit
// over the covered region: both evaluate the same taps in the same order.
func ReferenceConvolve(input, f *Matrix, b Boundary) *Matrix {
	out := NewMatrix(input.Extent())
	filter.Convolve(out.plane(), input.plane(), f.plane(), 0, 0, b)
	return out
}
