package tileconv

import "fmt"

// HaloCase classifies a tile's position along one dimension.
type HaloCase int

const (
	// HaloFirst is the leading tile of a dimension split into several
	// tiles. It has a halo on its trailing side only.
	HaloFirst HaloCase = iota

	// HaloInterior has a full halo on both sides.
	HaloInterior

	// HaloLast is the trailing tile. It has a halo on its leading side
	// only; its trailing side is the matrix boundary.
	HaloLast

	// HaloSingle spans the whole dimension and has no halo.
	HaloSingle
)

// String returns the case name.
func (c HaloCase) String() string {
	switch c {
	case HaloFirst:
		return "first"
	case HaloInterior:
		return "interior"
	case HaloLast:
		return "last"
	case HaloSingle:
		return "single"
	default:
		return fmt.Sprintf("HaloCase(%d)", int(c))
	}
}

// Halo is the read window of one tile along one dimension.
//
// The window [Offset, Offset+Extent) always lies inside [0, total).
// LeadingClamp is set when the window starts at the tile itself because
// there is nothing before it; TrailingClamp when the window ends at the
// tile because there is nothing after it. On a clamped side the
// convolution stage substitutes a boundary value for the missing halo.
type Halo struct {
	Offset        int
	Extent        int
	LeadingClamp  bool
	TrailingClamp bool
	Case          HaloCase
}

// PlanHalo computes the read window for a tile of size tile at offset
// along a dimension of size total, for a filter of size filter.
//
// The halo radius is filter/2. Interior tiles read
// [offset-radius, offset+tile+radius), first tiles drop the leading
// radius, last tiles drop the trailing one and a single tile reads only
// itself.
//
// PlanHalo panics on malformed input: non-positive sizes, an even filter,
// an offset outside [0, total) or not aligned to the tile grid, or a
// window that would leave [0, total). These are programming errors in the
// caller; Config.Validate rejects configurations that could produce them.
func PlanHalo(total, tile, filter, offset int) Halo {
	checkPlan(total, tile, filter, offset)
	radius := filter / 2

	var h Halo
	switch {
	case offset == 0 && tile < total:
		h = Halo{Offset: 0, Extent: tile + radius, LeadingClamp: true, Case: HaloFirst}
	case offset != 0 && offset+tile < total:
		h = Halo{Offset: offset - radius, Extent: tile + filter - 1, Case: HaloInterior}
	case offset != 0:
		h = Halo{Offset: offset - radius, Extent: tile + radius, TrailingClamp: true, Case: HaloLast}
	default:
		h = Halo{Offset: 0, Extent: min(tile, total), LeadingClamp: true, TrailingClamp: true, Case: HaloSingle}
	}

	if h.Offset < 0 || h.Offset+h.Extent > total {
		panic(fmt.Sprintf("tileconv: PlanHalo(total=%d, tile=%d, filter=%d, offset=%d): %s window [%d,%d) leaves [0,%d)",
			total, tile, filter, offset, h.Case, h.Offset, h.Offset+h.Extent, total))
	}
	return h
}

func checkPlan(total, tile, filter, offset int) {
	switch {
	case total <= 0 || tile <= 0 || filter <= 0:
		panic(fmt.Sprintf("tileconv: PlanHalo: non-positive size (total=%d, tile=%d, filter=%d)", total, tile, filter))
	case filter%2 == 0:
		panic(fmt.Sprintf("tileconv: PlanHalo: filter size %d is even", filter))
	case offset < 0 || offset >= total:
		panic(fmt.Sprintf("tileconv: PlanHalo: offset %d outside [0,%d)", offset, total))
	case offset%tile != 0 && offset+tile != total:
		// A partial last tile is aligned to the end of the dimension
		// instead of the grid.
		panic(fmt.Sprintf("tileconv: PlanHalo: offset %d not aligned to tile %d", offset, tile))
	}
}

// Clamp carries the per-side boundary flags of one tile to the
// convolution stage, plus the boundary policy that applies on clamped
// sides.
type Clamp struct {
	LeadingRow  bool
	LeadingCol  bool
	TrailingRow bool
	TrailingCol bool
	Policy      Boundary
}

// Origin returns where the tile's first output sample sits inside the
// staged input window: 0 on a leading-clamped side, the halo radius
// otherwise.
func (c Clamp) Origin(filter Extent) Offset {
	o := Offset{Row: filter.Rows / 2, Col: filter.Cols / 2}
	if c.LeadingRow {
		o.Row = 0
	}
	if c.LeadingCol {
		o.Col = 0
	}
	return o
}

// TileHalo is the read window of one tile in both dimensions.
type TileHalo struct {
	Row Halo
	Col Halo
}

// PlanTile plans both dimensions of the tile of extent tile at offset at.
func PlanTile(total, tile, filter Extent, at Offset) TileHalo {
	return TileHalo{
		Row: PlanHalo(total.Rows, tile.Rows, filter.Rows, at.Row),
		Col: PlanHalo(total.Cols, tile.Cols, filter.Cols, at.Col),
	}
}

// ReadOffset returns the top-left corner of the read window.
func (h TileHalo) ReadOffset() Offset {
	return Offset{Row: h.Row.Offset, Col: h.Col.Offset}
}

// ReadExtent returns the size of the read window, which is also the size
// of the input staging buffer.
func (h TileHalo) ReadExtent() Extent {
	return Extent{Rows: h.Row.Extent, Cols: h.Col.Extent}
}

// Clamp returns the boundary flags for the convolution stage.
func (h TileHalo) Clamp(policy Boundary) Clamp {
	return Clamp{
		LeadingRow:  h.Row.LeadingClamp,
		LeadingCol:  h.Col.LeadingClamp,
		TrailingRow: h.Row.TrailingClamp,
		TrailingCol: h.Col.TrailingClamp,
		Policy:      policy,
	}
}
