// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"runtime"
	"sync"
)

// workerPool executes dispatch workgroups on a fixed set of goroutines.
//
// The pool is long-lived: workers start when the device is created and
// exit when it is closed, so per-dispatch cost is one channel send per
// chunk rather than goroutine churn.
type workerPool struct {
	workers int
	work    chan func()
	done    chan struct{}
	wg      sync.WaitGroup
}

// newWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func newWorkerPool(workers int) *workerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &workerPool{
		workers: workers,
		work:    make(chan func(), workers*4),
		done:    make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case fn := <-p.work:
			if fn != nil {
				fn()
			}
		}
	}
}

// forEach runs fn(i) for i in [0, n) across the pool and waits for all
// iterations to finish. Iterations are grouped into contiguous chunks
// to keep scheduling overhead off the per-item path.
func (p *workerPool) forEach(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n == 1 || p.workers == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	chunk := (n + p.workers*4 - 1) / (p.workers * 4)
	if chunk < 1 {
		chunk = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		lo, hi := start, end
		p.work <- func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				fn(i)
			}
		}
	}
	wg.Wait()
}

// close stops all workers. Pending work is abandoned.
func (p *workerPool) close() {
	close(p.done)
	p.wg.Wait()
}
