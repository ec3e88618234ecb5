// Command tileconv runs a tiled 2D convolution of a uniform matrix and
// checks every output element against the analytic result.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/tileconv"
)

func main() {
	def := tileconv.DefaultConfig()
	var (
		rows        = flag.Int("rows", def.Total.Rows, "matrix rows")
		cols        = flag.Int("cols", def.Total.Cols, "matrix columns")
		tileRows    = flag.Int("tile-rows", def.Tile.Rows, "tile rows")
		tileCols    = flag.Int("tile-cols", def.Tile.Cols, "tile columns")
		filterSize  = flag.Int("filter", def.Filter.Rows, "filter size (odd)")
		inputValue  = flag.Float64("input", float64(def.InputValue), "input element value")
		filterValue = flag.Float64("filter-value", float64(def.FilterValue), "filter tap value")
		boundary    = flag.String("boundary", "clamp", "boundary policy: clamp or zero")
		remainder   = flag.String("remainder", "truncate", "remainder policy: truncate or partial")
		workers     = flag.Int("workers", 0, "worker goroutines (0 = GOMAXPROCS)")
		pooled      = flag.Bool("pool", false, "reuse staging buffers")
		cpu         = flag.Bool("cpu", false, "run every stage on the CPU device")
		tolerance   = flag.Float64("tol", 1e-5, "validation tolerance")
		dump        = flag.String("dump", "", "write the output as a 16-bit TIFF")
		perTile     = flag.Bool("per-tile", false, "print per-tile timings")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		tileconv.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	cfg := tileconv.Config{
		Total:       tileconv.Ext(*rows, *cols),
		Tile:        tileconv.Ext(*tileRows, *tileCols),
		Filter:      tileconv.Ext(*filterSize, *filterSize),
		InputValue:  float32(*inputValue),
		FilterValue: float32(*filterValue),
	}

	b, err := parseBoundary(*boundary)
	if err != nil {
		log.Fatal(err)
	}
	r, err := parseRemainder(*remainder)
	if err != nil {
		log.Fatal(err)
	}
	opts := []tileconv.Option{
		tileconv.WithBoundary(b),
		tileconv.WithRemainder(r),
		tileconv.WithWorkers(*workers),
		tileconv.WithStagingPool(*pooled),
	}
	if *cpu {
		opts = append(opts, tileconv.WithDevice(tileconv.CPUDevice()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := tileconv.NewScheduler(cfg, opts...)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	defer s.Close()

	res, err := s.Run(ctx, tileconv.Fill(cfg.Total, cfg.InputValue), tileconv.UniformFilter(cfg.Filter, cfg.FilterValue))
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	ty, tx := s.Tiles()
	fmt.Printf("device %s, %d x %d tiles, covered %s of %s\n", s.Device().Name(), ty, tx, res.Covered, cfg.Total)
	if err := res.Timeline.Report(os.Stdout, *perTile); err != nil {
		log.Fatalf("Report: %v", err)
	}

	if b == tileconv.BoundaryClamp {
		v := tileconv.Validate(res.Output, res.Covered, cfg.Expected(), float32(*tolerance))
		fmt.Println(v)
		if !v.Pass {
			os.Exit(1)
		}
	} else {
		want := tileconv.ReferenceConvolve(tileconv.Fill(cfg.Total, cfg.InputValue),
			tileconv.UniformFilter(cfg.Filter, cfg.FilterValue), b)
		v := tileconv.Compare(res.Output, want, res.Covered, float32(*tolerance))
		fmt.Println(v)
		if !v.Pass {
			os.Exit(1)
		}
	}

	if *dump != "" {
		if err := writeTIFF(*dump, res.Output); err != nil {
			log.Fatalf("Failed to save: %v", err)
		}
		log.Printf("Output saved to %s\n", *dump)
	}
}

func writeTIFF(path string, m *tileconv.Matrix) error {
	f, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return err
	}
	if err := tileconv.WriteTIFF(f, m); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseBoundary(s string) (tileconv.Boundary, error) {
	for _, b := range []tileconv.Boundary{tileconv.BoundaryClamp, tileconv.BoundaryZero} {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown boundary policy %q", s)
}

func parseRemainder(s string) (tileconv.Remainder, error) {
	for _, r := range []tileconv.Remainder{tileconv.RemainderTruncate, tileconv.RemainderPartial} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown remainder policy %q", s)
}
