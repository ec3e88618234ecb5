package tileconv

import (
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// Gray16 maps the matrix linearly onto a 16-bit grayscale image: lo
// becomes black and hi white. When hi <= lo the matrix range is used.
func (m *Matrix) Gray16(lo, hi float32) *image.Gray16 {
	if hi <= lo {
		lo, hi = m.Range()
	}
	img := image.NewGray16(image.Rect(0, 0, m.Cols, m.Rows))
	scale := float64(0)
	if hi > lo {
		scale = float64(math.MaxUint16) / float64(hi-lo)
	}
	for r := range m.Rows {
		for c := range m.Cols {
			v := (float64(m.At(r, c)) - float64(lo)) * scale
			v = math.Max(0, math.Min(v, math.MaxUint16))
			img.SetGray16(c, r, color.Gray16{Y: uint16(math.Round(v))})
		}
	}
	return img
}

// Range returns the smallest and largest element.
func (m *Matrix) Range() (lo, hi float32) {
	if len(m.Data) == 0 {
		return 0, 0
	}
	lo, hi = m.Data[0], m.Data[0]
	for _, v := range m.Data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// WriteTIFF encodes the matrix as a deflate-compressed 16-bit grayscale
// TIFF spanning its own value range.
func WriteTIFF(w io.Writer, m *Matrix) error {
	return tiff.Encode(w, m.Gray16(0, 0), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
