package tileconv

import "fmt"

// Extent is the size of a rectangular region in elements.
type Extent struct {
	Rows, Cols int
}

// Ext is shorthand for Extent{Rows: rows, Cols: cols}.
func Ext(rows, cols int) Extent {
	return Extent{Rows: rows, Cols: cols}
}

// Size returns the number of elements in the region.
func (e Extent) Size() int {
	return e.Rows * e.Cols
}

// Valid reports whether both dimensions are positive.
func (e Extent) Valid() bool {
	return e.Rows > 0 && e.Cols > 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Rows, e.Cols)
}

// Offset is the top-left coordinate of a region in full-matrix space.
type Offset struct {
	Row, Col int
}

// At is shorthand for Offset{Row: row, Col: col}.
func At(row, col int) Offset {
	return Offset{Row: row, Col: col}
}

func (o Offset) String() string {
	return fmt.Sprintf("(%d,%d)", o.Row, o.Col)
}
