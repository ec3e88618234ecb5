package filter

import (
	"math"
	"sync"
)

// Uniform returns a rows x cols kernel with every tap set to value.
func Uniform(rows, cols int, value float32) []float32 {
	k := make([]float32, rows*cols)
	for i := range k {
		k[i] = value
	}
	return k
}

// BoxKernel generates a 1D box kernel of the given odd size.
// All values are equal: 1/size. For size <= 1 it returns [1.0] (identity).
func BoxKernel(size int) []float32 {
	if size <= 1 {
		return []float32{1.0}
	}
	return Uniform(1, size, float32(1.0)/float32(size))
}

// GaussianKernel generates a 1D Gaussian kernel with the given size and
// standard deviation. The kernel is normalized so all values sum to 1.0.
//
// A non-positive sigma is derived from the size so the kernel spans three
// standard deviations on each side: sigma = (size/2) / 3.
// For size <= 1 it returns [1.0] (identity).
func GaussianKernel(size int, sigma float64) []float32 {
	if size <= 1 {
		return []float32{1.0}
	}
	half := size / 2
	if sigma <= 0 {
		sigma = math.Max(float64(half)/3, 0.5)
	}

	kernel := make([]float32, size)
	twoSigmaSq := 2 * sigma * sigma
	sum := float64(0)
	for i := range size {
		x := float64(i - half)
		val := math.Exp(-(x * x) / twoSigmaSq)
		kernel[i] = float32(val)
		sum += val
	}

	if sum > 0 {
		invSum := float32(1.0 / sum)
		for i := range kernel {
			kernel[i] *= invSum
		}
	}
	return kernel
}

// Outer builds a rows x cols 2D kernel from two 1D kernels:
// k[r][c] = col[r] * row[c].
func Outer(col, row []float32) []float32 {
	k := make([]float32, len(col)*len(row))
	for r, cv := range col {
		for c, rv := range row {
			k[r*len(row)+c] = cv * rv
		}
	}
	return k
}

// kernelKey identifies a cached Gaussian kernel.
// Sigma is quantized to 0.01.
type kernelKey struct {
	size  int
	sigma int
}

// kernelCache caches computed Gaussian kernels to avoid recomputation.
type kernelCache struct {
	mu     sync.RWMutex
	cache  map[kernelKey][]float32
	maxLen int
}

var defaultKernelCache = newKernelCache(64)

func newKernelCache(maxLen int) *kernelCache {
	return &kernelCache{
		cache:  make(map[kernelKey][]float32),
		maxLen: maxLen,
	}
}

// get retrieves a kernel from cache or generates and caches it.
func (c *kernelCache) get(size int, sigma float64) []float32 {
	key := kernelKey{size: size, sigma: int(math.Round(sigma * 100))}

	c.mu.RLock()
	if kernel, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return kernel
	}
	c.mu.RUnlock()

	kernel := GaussianKernel(size, sigma)

	c.mu.Lock()
	if len(c.cache) >= c.maxLen {
		// Drop half the entries; filters repeat across runs, not within one.
		count := 0
		for k := range c.cache {
			delete(c.cache, k)
			count++
			if count >= c.maxLen/2 {
				break
			}
		}
	}
	c.cache[key] = kernel
	c.mu.Unlock()

	return kernel
}

// CachedGaussianKernel returns a cached Gaussian kernel.
// Callers must not modify the returned slice.
func CachedGaussianKernel(size int, sigma float64) []float32 {
	return defaultKernelCache.get(size, sigma)
}

// KernelCenter returns the center index of a kernel of the given size,
// which is also the halo radius.
func KernelCenter(kernelSize int) int {
	return kernelSize / 2
}
