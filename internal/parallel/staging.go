package parallel

import "sync"

// BufferPool provides reuse of float32 staging buffers via sync.Pool.
//
// Tiled convolution produces only a handful of distinct staging extents
// (first, interior, last and single tiles per dimension), so one sync.Pool
// per extent keeps the hot loop free of allocations.
//
// Thread safety: BufferPool is safe for concurrent use.
type BufferPool struct {
	// pools holds separate sync.Pool instances for each extent.
	// Key format: (rows << 32) | cols
	pools sync.Map
}

// NewBufferPool creates a new staging buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get retrieves a zeroed buffer of rows*cols elements.
// Returns nil for non-positive dimensions.
func (p *BufferPool) Get(rows, cols int) []float32 {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	pool := p.getOrCreatePool(rows, cols)
	buf := *pool.Get().(*[]float32)
	clear(buf)
	return buf
}

// Put returns a buffer obtained from Get with the same dimensions.
// Buffers of the wrong length and unknown extents are left to the GC.
func (p *BufferPool) Put(rows, cols int, buf []float32) {
	if buf == nil || len(buf) != rows*cols {
		return
	}
	if pool, ok := p.pools.Load(poolKey(rows, cols)); ok {
		pool.(*sync.Pool).Put(&buf)
	}
}

// poolKey creates a unique key for an extent.
func poolKey(rows, cols int) uint64 {
	return uint64(uint32(rows))<<32 | uint64(uint32(cols)) //nolint:gosec // extents are positive and bounded by memory
}

// getOrCreatePool gets or creates a sync.Pool for the given extent.
func (p *BufferPool) getOrCreatePool(rows, cols int) *sync.Pool {
	key := poolKey(rows, cols)
	if pool, ok := p.pools.Load(key); ok {
		return pool.(*sync.Pool)
	}

	n := rows * cols
	newPool := &sync.Pool{
		New: func() any {
			buf := make([]float32, n)
			return &buf
		},
	}

	// Another goroutine may have stored a pool first; use theirs.
	actual, _ := p.pools.LoadOrStore(key, newPool)
	return actual.(*sync.Pool)
}
