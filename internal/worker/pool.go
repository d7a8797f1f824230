package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// ErrStopped is returned by Submit after the pool has been stopped.
var ErrStopped = errors.New("worker pool stopped")

// Pool runs submitted tasks across a fixed number of workers. It bounds the
// concurrency of chunk overview generation without imposing any ordering;
// callers that need ordered results write into index-addressed slots.
type Pool struct {
	logger     arbor.ILogger
	numWorkers int
	tasks      chan func()
	wg         sync.WaitGroup
	pending    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool creates a pool with the given worker count. Counts below one are
// raised to one.
func NewPool(logger arbor.ILogger, numWorkers int) *Pool {
	if logger == nil {
		logger = arbor.NewLogger()
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Pool{
		logger:     logger,
		numWorkers: numWorkers,
		tasks:      make(chan func(), numWorkers*2),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.logger.Debug().
		Int("num_workers", p.numWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit queues a task for execution. It blocks while the queue is full and
// returns ErrStopped once the pool has been shut down.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.pending.Add(1)
	p.mu.Unlock()

	p.tasks <- task
	return nil
}

// Wait blocks until every submitted task has finished. The pool stays usable
// for further submissions.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop drains outstanding tasks and shuts the workers down.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.tasks)
	p.wg.Wait()
	p.logger.Debug().Msg("Worker pool stopped")
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task, containing panics so a single bad task cannot take
// down the pool.
func (p *Pool) run(task func()) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Worker task panicked")
		}
	}()
	task()
}
