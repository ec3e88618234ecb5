package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines executing per-tile work items.
//
// Each worker owns a queue. Submit places work on the shortest queue and
// returns immediately, so the caller can keep issuing tiles while earlier
// tiles are still running. Idle workers steal from other queues, which
// balances load when edge tiles and interior tiles take different time.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// queues holds per-worker work queues.
	queues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// Workers start immediately.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// A few items per worker hides submission latency without letting the
	// control goroutine run far ahead of the workers.
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			run(work)
			continue
		default:
		}

		if stolen := p.steal(id); stolen != nil {
			run(stolen)
			continue
		}

		// Nothing anywhere; block on the own queue.
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			run(work)
		}
	}
}

func run(work func()) {
	if work != nil {
		work()
	}
}

// drain executes all remaining work in a queue.
func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			run(work)
		default:
			return
		}
	}
}

// steal takes one item from another worker's queue.
// Returns nil if every other queue is empty.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// Submit queues a single work item on the worker with the shortest queue.
// It blocks only while every queue is full. Returns false, without running
// fn, if fn is nil or the pool is closed.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}

	target := 0
	shortest := len(p.queues[0])
	for i := 1; i < p.workers; i++ {
		if n := len(p.queues[i]); n < shortest {
			shortest = n
			target = i
		}
	}

	select {
	case p.queues[target] <- fn:
		return true
	case <-p.done:
		return false
	}
}

// Close stops accepting work, runs everything already queued, and stops
// all workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the number of work items currently queued.
// This is an approximation as queues change while iterating.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}
