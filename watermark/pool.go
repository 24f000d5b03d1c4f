package watermark

import (
	"context"
	"runtime"
	"sync"
)

// Pool runs indexed tasks across a bounded set of workers. Tasks write
// their results into caller-owned slots addressed by index, so output
// order never depends on scheduling.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Run executes task(0..n-1) with at most p.workers in flight. A
// cancelled context stops launching new tasks but lets in-flight tasks
// finish; Run returns the context error in that case.
func (p *Pool) Run(ctx context.Context, n int, task func(index int)) error {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	var err error
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case sem <- struct{}{}:
			wg.Add(1)
			go func(index int) {
				defer wg.Done()
				defer func() { <-sem }()
				task(index)
			}(i)
		}
		if err != nil {
			break
		}
	}

	wg.Wait()
	return err
}
