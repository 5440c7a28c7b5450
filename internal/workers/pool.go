package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Job is a unit of background work. The context is cancelled when the pool
// is forced to stop before the job finishes.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	workers int
	jobs    chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	completed atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64
}

type Stats struct {
	Workers   int
	Queued    int
	Capacity  int
	Completed int64
	Rejected  int64
	Panicked  int64
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	log.Info().Int("workers", p.workers).Int("queue_size", cap(p.jobs)).Msg("Worker pool started")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.execute(id, job)
	}
}

func (p *Pool) execute(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			log.Error().Int("worker", id).Interface("panic", r).Msg("Worker job panicked")
		}
	}()
	job(p.ctx)
	p.completed.Add(1)
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.rejected.Add(1)
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		p.rejected.Add(1)
		return ErrQueueFull
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.jobs),
		Capacity:  cap(p.jobs),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. If ctx
// expires first, running jobs see their context cancelled and ctx.Err() is
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		// Nobody will drain the queue; run what was accepted inline.
		for job := range p.jobs {
			p.execute(-1, job)
		}
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		log.Info().Msg("Worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		log.Warn().Msg("Worker pool shutdown deadline exceeded, in-flight jobs cancelled")
		return ctx.Err()
	}
}
