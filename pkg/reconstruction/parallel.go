package reconstruction

import (
	"context"
	"runtime"
	"sync"
)

// Parallel spreads pixels over a fixed pool of goroutines. Each pixel is an
// independent unit: it reads only the Job and writes only its own output
// element, so no synchronization is needed beyond waiting for the pool.
type Parallel struct {
	workers int
}

// NewParallel creates a parallel strategy. A non-positive worker count uses
// every available CPU.
func NewParallel(workers int) *Parallel {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Parallel{workers: workers}
}

func (p *Parallel) Name() string { return string(KindParallel) }

func (p *Parallel) Close() error { return nil }

// Workers returns the size of the goroutine pool.
func (p *Parallel) Workers() int { return p.workers }

func (p *Parallel) Reconstruct(ctx context.Context, job *Job) ([]uint32, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	w := job.Layout.Width
	total := job.Layout.Pixels()
	out := make([]uint32, total)

	workers := p.workers
	if workers > total {
		workers = total
	}
	perWorker := (total + workers - 1) / workers

	var wg sync.WaitGroup
	for c := 0; c < workers; c++ {
		start := c * perWorker
		end := start + perWorker
		if end > total {
			end = total
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				// poll once per image row's worth of pixels
				if (i-start)%w == 0 && ctx.Err() != nil {
					return
				}
				out[i] = job.pixel(i/w, i%w)
			}
		}(start, end)
	}
	wg.Wait()

	// a cancelled pass leaves gaps in out; never hand it back
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
