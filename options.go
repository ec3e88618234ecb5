package tileconv

// Option configures a Scheduler during creation.
//
// Example:
//
//	s, err := tileconv.NewScheduler(cfg,
//	    tileconv.WithWorkers(4),
//	    tileconv.WithBoundary(tileconv.BoundaryZero),
//	)
type Option func(*options)

// options holds optional Scheduler configuration.
type options struct {
	device    Device
	workers   int
	boundary  Boundary
	remainder Remainder
	pooled    bool
}

// defaultOptions returns the default scheduler options.
func defaultOptions() options {
	return options{
		device:    nil, // registered device, else CPU
		workers:   0,   // GOMAXPROCS
		boundary:  BoundaryClamp,
		remainder: RemainderTruncate,
	}
}

// WithDevice runs the stages on d instead of the registered device.
// The scheduler does not call d.Init or d.Close.
func WithDevice(d Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithWorkers sets the number of executor goroutines.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBoundary sets the policy for halo samples missing on clamped sides.
func WithBoundary(b Boundary) Option {
	return func(o *options) {
		o.boundary = b
	}
}

// WithRemainder sets how a size that is not a tile multiple is covered.
func WithRemainder(r Remainder) Option {
	return func(o *options) {
		o.remainder = r
	}
}

// WithStagingPool reuses staging buffers across tiles. A tile's buffers go
// back to the pool only after its stage-out completed.
func WithStagingPool(enabled bool) Option {
	return func(o *options) {
		o.pooled = enabled
	}
}
