package tileconv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/tileconv/internal/parallel"
)

// Result is the output of a successful run.
type Result struct {
	// Output is the full output matrix.
	Output *Matrix

	// Timeline holds the per-tile start timestamps and completion events.
	Timeline *Timeline

	// Covered is the output region computed by the tiles. It is smaller
	// than the matrix when RemainderTruncate dropped a remainder.
	Covered Extent
}

// Scheduler drives tiled convolution runs for one configuration.
//
// A Scheduler owns a worker pool; call Close when done. Run may be called
// repeatedly and concurrently, but not concurrently with Close.
type Scheduler struct {
	cfg     Config
	opts    options
	device  Device
	cpu     Device
	grid    *parallel.Grid
	pool    *parallel.WorkerPool
	staging *parallel.BufferPool

	fallbackOnce sync.Once
}

// NewScheduler validates cfg and creates a scheduler.
//
// Stages run on the device from WithDevice, else the registered device,
// else the CPU device.
func NewScheduler(cfg Config, opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.validate(o.remainder); err != nil {
		return nil, err
	}

	dev := o.device
	if dev == nil {
		dev = RegisteredDevice()
	}
	if dev == nil {
		dev = CPUDevice()
	}

	s := &Scheduler{
		cfg:    cfg,
		opts:   o,
		device: dev,
		cpu:    CPUDevice(),
		grid:   parallel.NewGrid(cfg.Total.Rows, cfg.Total.Cols, cfg.Tile.Rows, cfg.Tile.Cols, o.remainder),
		pool:   parallel.NewWorkerPool(o.workers),
	}
	if o.pooled {
		s.staging = parallel.NewBufferPool()
	}

	ty, tx := s.grid.Dims()
	Logger().Debug("tileconv: scheduler created",
		"total", cfg.Total.String(), "tile", cfg.Tile.String(), "filter", cfg.Filter.String(),
		"tiles", ty*tx, "device", dev.Name(), "workers", s.pool.Workers(),
		"boundary", o.boundary.String(), "remainder", o.remainder.String())
	return s, nil
}

// Close stops the worker pool. Close is safe to call multiple times.
func (s *Scheduler) Close() {
	s.pool.Close()
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Device returns the device the stages run on.
func (s *Scheduler) Device() Device {
	return s.device
}

// Tiles returns the number of tile rows and tile columns.
func (s *Scheduler) Tiles() (rows, cols int) {
	return s.grid.Dims()
}

// Run convolves input with f tile by tile.
//
// Tiles are issued row-major without waiting for earlier tiles. Run stops
// issuing when ctx is done or a tile has failed, waits for every issued
// tile, and returns. On failure the result is nil and the error wraps
// ErrRunFailed and a *TileError per failed tile; on cancellation it wraps
// ctx.Err().
func (s *Scheduler) Run(ctx context.Context, input, f *Matrix) (*Result, error) {
	if input == nil || input.Extent() != s.cfg.Total {
		return nil, fmt.Errorf("%w: input must be %s", ErrShapeMismatch, s.cfg.Total)
	}
	if f == nil || f.Extent() != s.cfg.Filter {
		return nil, fmt.Errorf("%w: filter must be %s", ErrShapeMismatch, s.cfg.Filter)
	}
	if !s.pool.IsRunning() {
		return nil, ErrSchedulerClosed
	}

	log := Logger()
	output := NewMatrix(s.cfg.Total)
	timeline := NewTimeline(s.grid.Len())

	var failed atomic.Bool
	var stopErr error
	for tile := range s.grid.Tiles() {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if failed.Load() {
			break
		}

		job := s.prepare(tile, input, f, output)
		start := time.Now()
		ev := newEvent(start)
		timeline.Record(tile.Index, start, ev)

		log.Debug("tileconv: tile issued",
			"tile", tile.Index, "at", job.at.String(),
			"row", job.halo.Row.Case.String(), "col", job.halo.Col.Case.String(),
			"read", job.in.Extent().String())

		submitted := s.pool.Submit(func() {
			err := s.runTile(job)
			if err != nil {
				failed.Store(true)
			}
			ev.complete(err)
		})
		if !submitted {
			s.release(job)
			ev.complete(s.tileError(job, StageCopyIn, ErrSchedulerClosed))
			failed.Store(true)
		}
	}

	// Issued tiles write into output, so they are drained even when ctx
	// is already done.
	tileErr := timeline.Wait(context.Background())

	stats := timeline.Profile()
	switch {
	case tileErr != nil:
		log.Warn("tileconv: run failed", "issued", timeline.Issued(), "failed", stats.Failed, "err", tileErr)
		return nil, fmt.Errorf("%w: %w", ErrRunFailed, tileErr)
	case stopErr != nil:
		log.Warn("tileconv: run canceled", "issued", timeline.Issued(), "tiles", timeline.Len())
		return nil, fmt.Errorf("%w: canceled after %d of %d tiles: %w", ErrRunFailed, timeline.Issued(), timeline.Len(), stopErr)
	}

	rows, cols := s.grid.Covered()
	log.Info("tileconv: run complete",
		"tiles", stats.Tiles, "device", s.device.Name(),
		"wall", stats.Wall, "mean_tile", stats.Mean)
	return &Result{
		Output:   output,
		Timeline: timeline,
		Covered:  Ext(rows, cols),
	}, nil
}

// tileJob is everything one work item needs. It is owned by the work item
// from submission until release.
type tileJob struct {
	tile   parallel.Tile
	at     Offset
	extent Extent
	halo   TileHalo
	clamp  Clamp

	input, filter, output *Matrix
	in, out               *Matrix
}

// prepare plans the halo of a tile and allocates its staging buffers.
// Runs on the control goroutine, so a planner precondition violation
// panics in the caller of Run.
func (s *Scheduler) prepare(tile parallel.Tile, input, f, output *Matrix) *tileJob {
	at := Offset{Row: tile.Row, Col: tile.Col}
	extent := Extent{Rows: tile.Rows, Cols: tile.Cols}
	halo := PlanTile(s.cfg.Total, extent, s.cfg.Filter, at)

	return &tileJob{
		tile:   tile,
		at:     at,
		extent: extent,
		halo:   halo,
		clamp:  halo.Clamp(s.opts.boundary),
		input:  input,
		filter: f,
		output: output,
		in:     s.alloc(halo.ReadExtent()),
		out:    s.alloc(extent),
	}
}

// runTile executes stage-in, convolve and stage-out of one tile.
func (s *Scheduler) runTile(j *tileJob) error {
	defer s.release(j)

	if err := s.device.CopyFrom(j.input, j.in, j.halo.ReadExtent(), j.halo.ReadOffset()); err != nil {
		return s.tileError(j, StageCopyIn, err)
	}

	err := s.device.Convolve(j.in, j.filter, j.clamp, j.out)
	if errors.Is(err, ErrFallbackToCPU) {
		s.fallbackOnce.Do(func() {
			Logger().Warn("tileconv: device fell back to CPU convolution", "device", s.device.Name())
		})
		err = s.cpu.Convolve(j.in, j.filter, j.clamp, j.out)
	}
	if err != nil {
		return s.tileError(j, StageConvolve, err)
	}

	if err := s.device.CopyTo(j.out, j.output, j.extent, j.at); err != nil {
		return s.tileError(j, StageCopyOut, err)
	}

	Logger().Debug("tileconv: tile complete", "tile", j.tile.Index)
	return nil
}

func (s *Scheduler) tileError(j *tileJob, stage Stage, err error) *TileError {
	return &TileError{
		Index:  j.tile.Index,
		At:     j.at,
		Extent: j.extent,
		Row:    j.halo.Row.Case,
		Col:    j.halo.Col.Case,
		Stage:  stage,
		Err:    err,
	}
}

// alloc returns a staging matrix, pooled when enabled.
func (s *Scheduler) alloc(e Extent) *Matrix {
	if s.staging == nil {
		return NewMatrix(e)
	}
	return &Matrix{Rows: e.Rows, Cols: e.Cols, Data: s.staging.Get(e.Rows, e.Cols)}
}

// release returns a job's staging buffers to the pool. The job must not
// be used afterwards.
func (s *Scheduler) release(j *tileJob) {
	if s.staging != nil {
		s.staging.Put(j.in.Rows, j.in.Cols, j.in.Data)
		s.staging.Put(j.out.Rows, j.out.Cols, j.out.Data)
	}
	j.in, j.out = nil, nil
}

// Run builds a uniform input of cfg.InputValue and a uniform filter of
// cfg.FilterValue, runs one tiled convolution and releases the scheduler.
func Run(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	s, err := NewScheduler(cfg, opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Run(ctx, Fill(cfg.Total, cfg.InputValue), UniformFilter(cfg.Filter, cfg.FilterValue))
}
