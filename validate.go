package tileconv

import (
	"fmt"
	"math"
)

// Validation is the outcome of comparing an output matrix against an
// expected value or a reference matrix. A mismatch is reported here,
// never as an error.
type Validation struct {
	// Pass is true when every checked element is within tolerance.
	Pass bool

	// Checked is the number of compared elements.
	Checked int

	// Mismatches is the number of elements outside tolerance.
	Mismatches int

	// First is the position of the first mismatch in row-major order.
	First Offset

	// Got and Want are the values at First.
	Got, Want float32

	// MaxError is the largest absolute difference seen.
	MaxError float32
}

func (v Validation) String() string {
	if v.Pass {
		return fmt.Sprintf("PASS: %d elements, max error %g", v.Checked, v.MaxError)
	}
	return fmt.Sprintf("FAIL: %d of %d elements differ, first at %s: got %g, want %g (max error %g)",
		v.Mismatches, v.Checked, v.First, v.Got, v.Want, v.MaxError)
}

// Validate checks that every element of out inside region equals
// expected within tol. Use the run's Covered extent as region when the
// remainder was truncated.
func Validate(out *Matrix, region Extent, expected, tol float32) Validation {
	return compare(out, region, tol, func(int, int) float32 { return expected })
}

// Compare checks got against want element by element inside region.
// A shape mismatch fails without comparing.
func Compare(got, want *Matrix, region Extent, tol float32) Validation {
	if got.Extent() != want.Extent() {
		return Validation{Mismatches: 1, First: Offset{Row: -1, Col: -1}}
	}
	return compare(got, region, tol, want.At)
}

func compare(out *Matrix, region Extent, tol float32, want func(r, c int) float32) Validation {
	rows := min(region.Rows, out.Rows)
	cols := min(region.Cols, out.Cols)
	v := Validation{Pass: true}
	for r := range rows {
		for c := range cols {
			g, w := out.At(r, c), want(r, c)
			d := float32(math.Abs(float64(g - w)))
			if math.IsNaN(float64(g)) {
				d = float32(math.Inf(1))
			}
			if d > v.MaxError {
				v.MaxError = d
			}
			if d > tol {
				if v.Mismatches == 0 {
					v.First = Offset{Row: r, Col: c}
					v.Got, v.Want = g, w
				}
				v.Mismatches++
				v.Pass = false
			}
			v.Checked++
		}
	}
	return v
}
