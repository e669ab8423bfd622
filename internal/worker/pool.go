// Package worker runs bounded, fan-out-per-bucket work (building each
// bucket's codebook, GF(2) system, and solved bit-slice during a CSF
// build; solving each multiset column independently during a multiset
// build) across a fixed goroutine pool.
//
// The channel-plus-WaitGroup-plus-error-channel shape is the teacher's
// internal/indexer.(*Indexer).Run pipeline, generalized from "one
// goroutine per output index" to "N goroutines draining a shared job
// queue", and its optional ticker-driven progress reporting is the
// teacher's startReporting/stopReporting pair.
package worker

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Pool runs a fixed number of worker goroutines.
type Pool struct {
	Workers int

	// Progress, if non-nil, is called after every completed job with the
	// number of jobs completed so far and the total job count. It may be
	// called concurrently from multiple worker goroutines. Progress is
	// the bucket-level equivalent of the teacher's printStatus ticker.
	Progress func(done, total int)
}

// New returns a Pool sized to n workers, or runtime.NumCPU() if n <= 0.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{Workers: n}
}

// Run executes task(i) for every i in [0, n), using up to p.Workers
// goroutines, and returns the first error any task returns. Run does
// not cancel: after a task fails, the remaining jobs are still
// dispatched, and every task runs before Run returns.
func (p *Pool) Run(n int, task func(i int) error) error {
	if n == 0 {
		return nil
	}
	workers := p.Workers
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	var done int64
	var mu sync.Mutex

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				err := task(i)
				if p.Progress != nil {
					mu.Lock()
					done++
					p.Progress(int(done), n)
					mu.Unlock()
				}
				if err != nil {
					errs <- fmt.Errorf("worker: job %d: %w", i, err)
				}
			}
		}()
	}

	go func() {
		for i := 0; i < n; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	close(errs)

	var first error
	for e := range errs {
		if first == nil {
			first = e
		}
	}
	return first
}

// TickerReporter runs fn once per interval until Stop is called,
// mirroring the teacher's startReporting/stopReporting pair. Unlike the
// teacher's hardcoded one-second ticker gated on a Verbose flag, the
// interval and the decision to report at all are left to the caller
// (internal/worker has no config of its own).
type TickerReporter struct {
	stop chan struct{}
	done chan struct{}
}

// StartTicker launches fn on the given interval in a background
// goroutine, returning a handle to stop it.
func StartTicker(interval time.Duration, fn func()) *TickerReporter {
	r := &TickerReporter{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-r.stop:
				return
			}
		}
	}()
	return r
}

// Stop signals the reporter goroutine to exit and waits for it to do so.
func (r *TickerReporter) Stop() {
	close(r.stop)
	<-r.done
}
