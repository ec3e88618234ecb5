package filter

// Boundary selects the value substituted for samples outside the window.
type Boundary int

const (
	// BoundaryClamp replicates the nearest edge sample.
	BoundaryClamp Boundary = iota

	// BoundaryZero substitutes zero.
	BoundaryZero
)

// String returns the boundary policy name.
func (b Boundary) String() string {
	switch b {
	case BoundaryClamp:
		return "clamp"
	case BoundaryZero:
		return "zero"
	default:
		return "unknown"
	}
}

// Plane is a row-major single precision matrix view.
type Plane struct {
	Rows, Cols int
	Data       []float32
}

// at returns the element at (r, c) or the boundary substitute when the
// position lies outside the plane.
func (p Plane) at(r, c int, b Boundary) float32 {
	if r < 0 || r >= p.Rows || c < 0 || c >= p.Cols {
		if b == BoundaryZero {
			return 0
		}
		r = clampInt(r, 0, p.Rows-1)
		c = clampInt(c, 0, p.Cols-1)
	}
	return p.Data[r*p.Cols+c]
}

// Convolve evaluates kernel k over src and writes dst.Rows x dst.Cols
// outputs.
//
// Output element (r, c) is centred on window element (r+originRow,
// c+originCol). The origin is the halo radius on a side that carries a
// halo and 0 on a side clamped to the matrix edge. Taps are applied as a
// sum of products without flipping the kernel, in row-major tap order.
// Products are rounded before accumulation so every path, and every
// architecture, produces the same bits.
func Convolve(dst, src, k Plane, originRow, originCol int, b Boundary) {
	radR := KernelCenter(k.Rows)
	radC := KernelCenter(k.Cols)

	for r := range dst.Rows {
		top := r + originRow - radR
		rowInside := top >= 0 && top+k.Rows <= src.Rows
		for c := range dst.Cols {
			left := c + originCol - radC
			var acc float32
			if rowInside && left >= 0 && left+k.Cols <= src.Cols {
				acc = dotWindow(src, k, top, left)
			} else {
				for kr := range k.Rows {
					for kc := range k.Cols {
						acc += float32(src.at(top+kr, left+kc, b) * k.Data[kr*k.Cols+kc])
					}
				}
			}
			dst.Data[r*dst.Cols+c] = acc
		}
	}
}

// dotWindow is the bounds-check-free path for windows fully inside src.
func dotWindow(src, k Plane, top, left int) float32 {
	var acc float32
	for kr := range k.Rows {
		srow := src.Data[(top+kr)*src.Cols+left : (top+kr)*src.Cols+left+k.Cols]
		krow := k.Data[kr*k.Cols : kr*k.Cols+k.Cols]
		for kc, w := range krow {
			acc += float32(srow[kc] * w)
		}
	}
	return acc
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
