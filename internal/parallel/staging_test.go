package parallel

import (
	"sync"
	"testing"
)

func TestBufferPool_Get(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get(3, 5)
	if len(buf) != 15 {
		t.Fatalf("len(Get(3,5)) = %d, want 15", len(buf))
	}
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %v, want 0", i, v)
		}
	}
}

func TestBufferPool_GetInvalid(t *testing.T) {
	pool := NewBufferPool()

	tests := []struct {
		rows, cols int
	}{
		{0, 5},
		{5, 0},
		{-1, 3},
	}
	for _, tt := range tests {
		if buf := pool.Get(tt.rows, tt.cols); buf != nil {
			t.Errorf("Get(%d,%d) = len %d, want nil", tt.rows, tt.cols, len(buf))
		}
	}
}

func TestBufferPool_ReusedBufferIsZeroed(t *testing.T) {
	pool := NewBufferPool()

	buf := pool.Get(4, 4)
	for i := range buf {
		buf[i] = 1.5
	}
	pool.Put(4, 4, buf)

	// sync.Pool may or may not hand the same buffer back; either way it
	// must be zeroed.
	again := pool.Get(4, 4)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("again[%d] = %v, want 0", i, v)
		}
	}
}

func TestBufferPool_PutMismatch(t *testing.T) {
	pool := NewBufferPool()

	// Neither call may panic.
	pool.Put(2, 2, make([]float32, 3))
	pool.Put(7, 7, make([]float32, 49))
	pool.Put(1, 1, nil)
}

func TestBufferPool_Concurrent(t *testing.T) {
	pool := NewBufferPool()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows := 2 + g%3
			for range 200 {
				buf := pool.Get(rows, 9)
				if len(buf) != rows*9 {
					t.Errorf("len = %d, want %d", len(buf), rows*9)
					return
				}
				buf[0] = float32(g)
				pool.Put(rows, 9, buf)
			}
		}()
	}
	wg.Wait()
}

func TestPoolKey_Distinct(t *testing.T) {
	if poolKey(2, 3) == poolKey(3, 2) {
		t.Error("poolKey(2,3) == poolKey(3,2)")
	}
	if poolKey(1, 1<<20) == poolKey(1<<20, 1) {
		t.Error("poolKey collides for large extents")
	}
}

func BenchmarkBufferPool_GetPut(b *testing.B) {
	pool := NewBufferPool()
	for b.Loop() {
		buf := pool.Get(514, 514)
		pool.Put(514, 514, buf)
	}
}
