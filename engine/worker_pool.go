package engine

import (
	"context"
	"sync"
)

// JobHandler processes one job taken from the pool's channel.
type JobHandler func(context.Context, *Job) error

// RunJob runs the job and returns its failure classification.
func RunJob(ctx context.Context, job *Job) error {
	if err := job.Run(ctx); err != nil {
		return err
	}
	return job.Err()
}

// WorkerPool runs jobs from a JobChannel on a resizable set of goroutines.
// Every worker owns the job it took until the job returns; a job is never
// shared between two workers.
type WorkerPool struct {
	jobs    JobChannel
	handler JobHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	quit    map[int]chan struct{}
	size    int
	lastID  int
	running sync.WaitGroup
}

// NewWorkerPool creates a pool with no workers. A nil handler uses RunJob.
// Cancelling ctx cancels the running jobs.
func NewWorkerPool(ctx context.Context, jobs JobChannel, handler JobHandler) *WorkerPool {
	if handler == nil {
		handler = RunJob
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		jobs:    jobs,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(map[int]chan struct{}),
	}
}

// SetWorkerCount grows or shrinks the pool to count workers. A removed worker
// finishes its current job first.
func (p *WorkerPool) SetWorkerCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ; p.size < count; p.size++ {
		p.lastID++
		quit := make(chan struct{})
		p.quit[p.lastID] = quit
		p.running.Add(1)
		go p.work(quit)
	}
	for id, quit := range p.quit {
		if p.size <= count {
			break
		}
		close(quit)
		delete(p.quit, id)
		p.size--
	}
}

// WorkerCount returns the number of workers the pool is sized to.
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *WorkerPool) work(quit <-chan struct{}) {
	defer p.running.Done()
	for {
		// a pending quit wins over a queued job
		select {
		case <-quit:
			return
		case <-p.ctx.Done():
			return
		default:
		}

		select {
		case <-quit:
			return
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			// the outcome lives in the job's report
			_ = p.handler(p.ctx, job)
		}
	}
}

// Wait returns once every worker has exited, which happens after the job
// channel is closed and drained.
func (p *WorkerPool) Wait() {
	p.running.Wait()
}

// Stop cancels the running jobs and waits for the workers.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.running.Wait()
}
