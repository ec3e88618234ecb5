package tileconv

import (
	"fmt"

	"github.com/gogpu/tileconv/internal/filter"
	"github.com/gogpu/tileconv/internal/parallel"
)

// Boundary selects the value the convolution stage substitutes for halo
// samples missing on a clamped side.
type Boundary = filter.Boundary

const (
	// BoundaryClamp replicates the nearest edge sample. With a uniform
	// input every output element equals the interior value.
	BoundaryClamp = filter.BoundaryClamp

	// BoundaryZero substitutes zero.
	BoundaryZero = filter.BoundaryZero
)

// Remainder selects how a dimension that is not a multiple of the tile
// size is handled.
type Remainder = parallel.Remainder

const (
	// RemainderTruncate covers floor(total/tile) tiles per dimension and
	// leaves the rest of the output zero.
	RemainderTruncate = parallel.RemainderTruncate

	// RemainderPartial adds a smaller last tile so the whole output is
	// computed.
	RemainderPartial = parallel.RemainderPartial
)

// Config holds the fixed inputs of one run.
type Config struct {
	// Total is the full matrix size.
	Total Extent

	// Tile is the output tile size.
	Tile Extent

	// Filter is the filter size. Both dimensions must be odd.
	Filter Extent

	// InputValue fills the input matrix when Run builds it.
	InputValue float32

	// FilterValue fills the filter when Run builds it.
	FilterValue float32
}

// DefaultConfig returns the benchmark configuration: a 1024x1024 matrix
// of 0.6 split into 512x512 tiles, convolved with a 3x3 filter of 0.3.
func DefaultConfig() Config {
	return Config{
		Total:       Ext(1024, 1024),
		Tile:        Ext(512, 512),
		Filter:      Ext(3, 3),
		InputValue:  0.6,
		FilterValue: 0.3,
	}
}

// Expected returns the output value of a uniform run away from any
// zero-filled boundary: InputValue * FilterValue summed over every tap.
func (c Config) Expected() float32 {
	var acc float32
	for range c.Filter.Size() {
		acc += float32(c.InputValue * c.FilterValue)
	}
	return acc
}

// Validate checks the configuration for the default truncating remainder
// policy.
func (c Config) Validate() error {
	return c.validate(RemainderTruncate)
}

func (c Config) validate(rem Remainder) error {
	if err := checkDim("rows", c.Total.Rows, c.Tile.Rows, c.Filter.Rows, rem); err != nil {
		return err
	}
	return checkDim("cols", c.Total.Cols, c.Tile.Cols, c.Filter.Cols, rem)
}

// checkDim rejects one dimension whose tiles would read outside the
// matrix. Every tile with a neighbour after it reads radius samples
// into that neighbour, so the last tile (whole or partial) must be at
// least radius wide unless it is the only tile.
func checkDim(name string, total, tile, filterSize int, rem Remainder) error {
	if total <= 0 || tile <= 0 || filterSize <= 0 {
		return fmt.Errorf("%w: %s total=%d tile=%d filter=%d", ErrInvalidExtent, name, total, tile, filterSize)
	}
	if filterSize%2 == 0 {
		return fmt.Errorf("%w: %s filter=%d", ErrEvenFilter, name, filterSize)
	}

	whole := total / tile
	if whole == 0 && rem == RemainderTruncate {
		return fmt.Errorf("%w: %s total=%d tile=%d", ErrNoTiles, name, total, tile)
	}
	if total <= tile {
		return nil
	}

	radius := filterSize / 2
	if radius > tile {
		return fmt.Errorf("%w: %s radius=%d tile=%d", ErrFilterTooLarge, name, radius, tile)
	}
	if r := total % tile; r != 0 && r < radius {
		return fmt.Errorf("%w: %s radius=%d remainder=%d", ErrFilterTooLarge, name, radius, r)
	}
	return nil
}
