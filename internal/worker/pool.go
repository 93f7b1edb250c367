package worker

import (
	"context"
	"sync"
)

// Job is a unit of work run by a Pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a Job produces
type Result interface {
	GetError() error
}

type queued struct {
	seq int
	job Job
}

// Pool runs jobs on a fixed number of workers and returns their results in
// submission order.
type Pool struct {
	workers int
	jobs    chan queued
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	next    int
	results map[int]Result

	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewPool creates a pool bound to ctx; canceling ctx stops the workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers: workers,
		jobs:    make(chan queued, workers),
		ctx:     ctx,
		cancel:  cancel,
		results: make(map[int]Result),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobs:
			if !ok {
				return
			}
			result := q.job.Execute(p.ctx)
			p.mu.Lock()
			p.results[q.seq] = result
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It returns false once the pool is shut down.
func (p *Pool) Submit(job Job) bool {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()
	if p.closed {
		return false
	}

	p.mu.Lock()
	seq := p.next
	p.next++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- queued{seq: seq, job: job}:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns every produced
// result in submission order. Jobs dropped by a shutdown have no result.
func (p *Pool) Wait() []Result {
	p.closeJobs()
	p.wg.Wait()
	return p.collect()
}

// Shutdown cancels in-flight jobs and waits for the workers to exit
func (p *Pool) Shutdown() {
	p.cancel()
	p.closeJobs()
	p.wg.Wait()
}

func (p *Pool) closeJobs() {
	p.closeOnce.Do(func() {
		p.sendMu.Lock()
		defer p.sendMu.Unlock()
		p.closed = true
		close(p.jobs)
	})
}

func (p *Pool) collect() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Result, 0, len(p.results))
	for seq := 0; seq < p.next; seq++ {
		if r, ok := p.results[seq]; ok {
			out = append(out, r)
		}
	}
	return out
}
