package tileconv

import (
	"errors"
	"fmt"
)

// Configuration errors returned by Config.Validate and NewScheduler.
var (
	// ErrInvalidExtent indicates a non-positive total, tile or filter size.
	ErrInvalidExtent = errors.New("tileconv: extent must be positive")

	// ErrEvenFilter indicates a filter dimension with no center tap.
	ErrEvenFilter = errors.New("tileconv: filter size must be odd")

	// ErrFilterTooLarge indicates a halo wider than a neighbouring tile,
	// which would make a read window leave the matrix.
	ErrFilterTooLarge = errors.New("tileconv: filter radius exceeds tile or remainder")

	// ErrNoTiles indicates a configuration that covers no output element.
	ErrNoTiles = errors.New("tileconv: no whole tile fits the matrix")
)

// Run errors.
var (
	// ErrShapeMismatch indicates an input or filter matrix whose extent does
	// not match the configuration.
	ErrShapeMismatch = errors.New("tileconv: matrix shape mismatch")

	// ErrRegionOutOfBounds indicates a copy region outside a buffer.
	ErrRegionOutOfBounds = errors.New("tileconv: region out of bounds")

	// ErrRunFailed wraps every error returned by a failed run.
	ErrRunFailed = errors.New("tileconv: run failed")

	// ErrSchedulerClosed indicates Run on a closed scheduler.
	ErrSchedulerClosed = errors.New("tileconv: scheduler closed")
)

// Stage identifies one of the three per-tile operations.
type Stage int

const (
	// StageCopyIn copies the read window from the input into staging.
	StageCopyIn Stage = iota

	// StageConvolve runs the convolution on the staged window.
	StageConvolve

	// StageCopyOut copies the staged output tile into the output.
	StageCopyOut
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageCopyIn:
		return "stage-in"
	case StageConvolve:
		return "convolve"
	case StageCopyOut:
		return "stage-out"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// TileError reports a failed stage of one tile.
type TileError struct {
	// Index is the row-major tile index.
	Index int

	// At is the tile offset in the output.
	At Offset

	// Extent is the tile extent.
	Extent Extent

	// Row and Col are the halo cases of the tile, which tell which
	// boundary condition the failing tile was handling.
	Row, Col HaloCase

	// Stage is the operation that failed.
	Stage Stage

	// Err is the device error.
	Err error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tileconv: tile %d at %s (%s, row %s, col %s): %s: %v",
		e.Index, e.At, e.Extent, e.Row, e.Col, e.Stage, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}
