// Package parallel provides the tile grid and asynchronous execution
// infrastructure for tiled convolution.
//
// The output matrix is divided into fixed-size tiles that are processed
// independently. Key pieces:
//
//   - Grid enumerates tiles in row-major order with their offsets
//   - WorkerPool runs per-tile work items on goroutines with work stealing
//   - BufferPool reuses staging buffers keyed by their extent via sync.Pool
//
// Thread safety: Grid is immutable after construction and safe for concurrent
// reads. WorkerPool and BufferPool are safe for concurrent use.
package parallel

// Tile is one cell of the output grid.
//
// Tiles are values; they carry no buffers. Staging memory for a tile is
// obtained separately, either freshly allocated or from a BufferPool.
type Tile struct {
	// Index is the flat row-major index (I*tilesX + J).
	Index int

	// I is the tile row index (0-based).
	I int

	// J is the tile column index (0-based).
	J int

	// Row is the top row of the tile in full-matrix space.
	Row int

	// Col is the left column of the tile in full-matrix space.
	Col int

	// Rows is the tile height. Smaller than the nominal tile height only
	// for a partial last tile.
	Rows int

	// Cols is the tile width. Smaller than the nominal tile width only
	// for a partial last tile.
	Cols int
}

// Bounds returns the tile rectangle in full-matrix space.
// Returns (row, col, rows, cols) where row,col is the top-left corner.
func (t Tile) Bounds() (row, col, rows, cols int) {
	return t.Row, t.Col, t.Rows, t.Cols
}

// Contains reports whether the full-matrix element (r, c) is inside the tile.
func (t Tile) Contains(r, c int) bool {
	return r >= t.Row && r < t.Row+t.Rows &&
		c >= t.Col && c < t.Col+t.Cols
}

// Size returns the number of elements in the tile.
func (t Tile) Size() int {
	return t.Rows * t.Cols
}
