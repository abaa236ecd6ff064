package utils

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// Job is a unit of fire-and-forget work. The name only shows up in logs.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// WorkerPool runs jobs on a fixed set of goroutines. A panicking job is
// logged and does not take its worker down.
type WorkerPool struct {
	jobs    chan Job
	workers int
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	quit     chan struct{}
	quitOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

func NewWorkerPool(workers, queueSize int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		quit:    make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue", cap(p.jobs)))
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				zap.Int("worker", id), zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()
	job.Run(p.ctx)
}

// Submit queues job, blocking while the queue is full. It gives up when ctx
// ends or the pool stops.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolStopped
	}
}

// Stop refuses new jobs, drains the queue and waits for the workers.
// Jobs still running see their context cancelled only after the drain.
func (p *WorkerPool) Stop() {
	p.quitOnce.Do(func() { close(p.quit) })
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}
