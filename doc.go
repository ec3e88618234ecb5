// Package tileconv computes 2D convolutions over matrices too large to
// process as one device operation by splitting the output into fixed-size
// tiles.
//
// # Overview
//
// For each output tile only the input region the filter needs is staged:
// the tile plus a halo of filter/2 samples on every side that has a
// neighbour. PlanHalo derives that read window per dimension and flags the
// sides that touch the matrix edge, where the convolution stage substitutes
// a boundary value instead of reading.
//
// # Quick Start
//
//	import "github.com/gogpu/tileconv"
//
//	cfg := tileconv.DefaultConfig() // 1024x1024, 512x512 tiles, 3x3 filter
//	res, err := tileconv.Run(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v := tileconv.Validate(res.Output, cfg.Total, cfg.Expected(), 1e-5)
//	res.Timeline.Report(os.Stdout, false)
//
// # Pipeline
//
// The Scheduler walks the tile grid row-major. For every tile it plans the
// halo, allocates staging buffers and submits one work item that runs
// stage-in, convolve and stage-out in order. The control goroutine never
// waits between tiles; it waits once after the last tile is issued. Tiles
// write disjoint output regions, so they need no synchronization between
// each other.
//
// # Devices
//
// Stages run on a Device. The CPU device is always available. Importing
// the gpu package registers a wgpu compute device:
//
//	import _ "github.com/gogpu/tileconv/gpu"
//
// A device that cannot run a convolution returns ErrFallbackToCPU and the
// stage transparently runs on the CPU device instead.
//
// # Errors
//
// Any failing stage fails the whole run. The returned error wraps
// ErrRunFailed and one *TileError per failed tile naming the stage and the
// halo case of each dimension.
package tileconv
