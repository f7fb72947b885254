package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/jmbish04/9to5-scout-retrofit-project-sub004/internal/common"
)

// Task is a unit of work run by the pool
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines
type Pool struct {
	name       string
	tasks      chan Task
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errors     []error
	errorsMu   sync.Mutex
	logger     arbor.ILogger
}

// NewPool creates a pool bound to ctx. Cancelling ctx stops workers after their current task.
func NewPool(ctx context.Context, name string, maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		name:       name,
		tasks:      make(chan Task, maxWorkers*2),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.Debug().
		Str("pool", p.name).
		Int("max_workers", p.maxWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		id := i
		common.SafeGo(p.logger, fmt.Sprintf("%s-worker-%d", p.name, id), func() {
			defer p.wg.Done()
			p.worker(id)
		})
	}
}

// Submit queues a task, blocking while all workers are busy
func (p *Pool) Submit(task Task) error {
	select {
	case p.tasks <- task:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool %s is shutting down", p.name)
	}
}

// Wait closes intake and blocks until every queued task has finished
func (p *Pool) Wait() {
	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}

// Shutdown stops workers without draining queued tasks
func (p *Pool) Shutdown() {
	p.cancel()
	p.Wait()
}

// Errors returns the errors returned by tasks
func (p *Pool) Errors() []error {
	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	return append([]error(nil), p.errors...)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := p.run(task); err != nil {
				p.errorsMu.Lock()
				p.errors = append(p.errors, err)
				p.errorsMu.Unlock()

				p.logger.Debug().
					Err(err).
					Str("pool", p.name).
					Int("worker_id", id).
					Msg("Task failed")
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// run executes one task, turning a panic into an error so the worker survives
func (p *Pool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(p.ctx)
}
