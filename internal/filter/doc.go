// Package filter provides the CPU convolution stage and filter kernel
// builders.
//
// Convolve evaluates a 2D filter over a halo-augmented staging window. The
// window origin tells it where output element (0,0) sits inside the window,
// which is how leading-edge clamp flags reach the inner loop. Samples that
// fall outside the window are replaced according to a Boundary policy and
// are never read.
//
// Kernels:
//   - Uniform (every tap the same value, as in the benchmark configuration)
//   - Box (normalized uniform)
//   - Gaussian (normalized, separable, cached)
//
// All data is single precision, row-major.
package filter
