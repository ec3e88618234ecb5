package parallel

import "iter"

// Remainder selects how a dimension that is not an exact multiple of the
// tile size is handled.
type Remainder int

const (
	// RemainderTruncate covers floor(total/tile) tiles per dimension.
	// Elements past the last whole tile are not computed.
	RemainderTruncate Remainder = iota

	// RemainderPartial adds one smaller last tile per dimension so the
	// whole matrix is covered.
	RemainderPartial
)

// String returns the remainder policy name.
func (r Remainder) String() string {
	switch r {
	case RemainderTruncate:
		return "truncate"
	case RemainderPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Grid enumerates the output tiles of a matrix in row-major order.
//
// Tiles are computed on demand from the index; the grid stores only
// dimensions, so a grid over a very large matrix costs nothing.
type Grid struct {
	rows, cols         int
	tileRows, tileCols int
	tilesY, tilesX     int
}

// NewGrid creates a grid over a rows x cols matrix with the given nominal
// tile size. Non-positive dimensions produce an empty grid.
func NewGrid(rows, cols, tileRows, tileCols int, rem Remainder) *Grid {
	g := &Grid{
		rows:     rows,
		cols:     cols,
		tileRows: tileRows,
		tileCols: tileCols,
	}
	if rows <= 0 || cols <= 0 || tileRows <= 0 || tileCols <= 0 {
		return g
	}
	g.tilesY = tilesAlong(rows, tileRows, rem)
	g.tilesX = tilesAlong(cols, tileCols, rem)
	return g
}

// tilesAlong returns the tile count for one dimension.
func tilesAlong(total, tile int, rem Remainder) int {
	n := total / tile
	if rem == RemainderPartial && total%tile != 0 {
		n++
	}
	return n
}

// Dims returns the number of tile rows and tile columns.
func (g *Grid) Dims() (tilesY, tilesX int) {
	return g.tilesY, g.tilesX
}

// Len returns the total number of tiles.
func (g *Grid) Len() int {
	return g.tilesY * g.tilesX
}

// TileSize returns the nominal tile size.
func (g *Grid) TileSize() (rows, cols int) {
	return g.tileRows, g.tileCols
}

// Tile returns the tile at grid position (i, j).
// Returns false if the position is outside the grid.
func (g *Grid) Tile(i, j int) (Tile, bool) {
	if i < 0 || i >= g.tilesY || j < 0 || j >= g.tilesX {
		return Tile{}, false
	}
	row := i * g.tileRows
	col := j * g.tileCols
	return Tile{
		Index: i*g.tilesX + j,
		I:     i,
		J:     j,
		Row:   row,
		Col:   col,
		Rows:  min(g.tileRows, g.rows-row),
		Cols:  min(g.tileCols, g.cols-col),
	}, true
}

// At returns the tile with the given flat index.
func (g *Grid) At(index int) (Tile, bool) {
	if index < 0 || index >= g.Len() {
		return Tile{}, false
	}
	return g.Tile(index/g.tilesX, index%g.tilesX)
}

// Tiles iterates all tiles in row-major order.
func (g *Grid) Tiles() iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		for i := range g.tilesY {
			for j := range g.tilesX {
				t, _ := g.Tile(i, j)
				if !yield(t) {
					return
				}
			}
		}
	}
}

// Covered returns the extent of the output region the tiles cover.
// Equal to the matrix size unless the truncate policy dropped a remainder.
func (g *Grid) Covered() (rows, cols int) {
	if g.Len() == 0 {
		return 0, 0
	}
	last, _ := g.Tile(g.tilesY-1, g.tilesX-1)
	return last.Row + last.Rows, last.Col + last.Cols
}
