package tileconv

import (
	"errors"
	"math"
	"testing"
)

func TestNewMatrix(t *testing.T) {
	m := NewMatrix(Ext(3, 4))
	if m.Rows != 3 || m.Cols != 4 || len(m.Data) != 12 {
		t.Fatalf("NewMatrix = %dx%d with %d elements", m.Rows, m.Cols, len(m.Data))
	}
	if NewMatrix(Ext(0, 4)) != nil || NewMatrix(Ext(3, -1)) != nil {
		t.Error("NewMatrix with invalid extent should return nil")
	}
}

func TestNewMatrixFrom(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	m, err := NewMatrixFrom(Ext(2, 3), data)
	if err != nil {
		t.Fatalf("NewMatrixFrom() = %v", err)
	}
	if m.At(1, 0) != 4 {
		t.Errorf("At(1,0) = %v, want 4", m.At(1, 0))
	}
	m.Set(0, 0, 9)
	if data[0] != 9 {
		t.Error("NewMatrixFrom should not copy")
	}
	if _, err := NewMatrixFrom(Ext(2, 2), data); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("NewMatrixFrom(short) = %v, want ErrShapeMismatch", err)
	}
	if _, err := NewMatrixFrom(Ext(0, 2), nil); !errors.Is(err, ErrInvalidExtent) {
		t.Errorf("NewMatrixFrom(empty) = %v, want ErrInvalidExtent", err)
	}
}

func TestMatrixEqualClone(t *testing.T) {
	a := Fill(Ext(2, 2), 0.5)
	b := a.Clone()
	if !a.Equal(b) {
		t.Error("clone differs")
	}
	b.Set(0, 1, 0.25)
	if a.Equal(b) || a.At(0, 1) != 0.5 {
		t.Error("clone shares storage")
	}
	if a.Equal(Fill(Ext(1, 4), 0.5)) {
		t.Error("matrices of different shape compare equal")
	}

	// Equal is bitwise: signed zeros differ.
	z := Fill(Ext(1, 1), 0)
	nz := Fill(Ext(1, 1), float32(math.Copysign(0, -1)))
	if z.Equal(nz) {
		t.Error("+0 and -0 compare equal")
	}
}

func TestFilters(t *testing.T) {
	u := UniformFilter(Ext(3, 5), 0.3)
	for _, v := range u.Data {
		if v != 0.3 {
			t.Fatalf("UniformFilter element = %v", v)
		}
	}

	for _, f := range []*Matrix{BoxFilter(Ext(3, 5)), GaussianFilter(Ext(5, 3), 0), GaussianFilter(Ext(7, 7), 1.5)} {
		var sum float64
		for _, v := range f.Data {
			if v <= 0 {
				t.Errorf("%s filter has non-positive tap %v", f.Extent(), v)
			}
			sum += float64(v)
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Errorf("%s filter sums to %v, want 1", f.Extent(), sum)
		}
	}

	g := GaussianFilter(Ext(5, 5), 1)
	if g.At(2, 2) <= g.At(0, 0) || g.At(1, 2) != g.At(2, 1) {
		t.Error("Gaussian filter should peak at the center and be symmetric")
	}
}
