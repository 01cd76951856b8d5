package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jgivc/mediafetch/internal/common"
)

// Task is one unit of background work. It gets the pool's context.
type Task func(ctx context.Context)

type pool struct {
	running atomic.Bool
	workers int
	in      chan Task
	wg      sync.WaitGroup
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
}

func NewPool(workers, queueSize int, log *slog.Logger) *pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &pool{
		workers: workers,
		in:      make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(slog.String("item", "WorkerPool")),
	}
}

func (p *pool) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	p.wg.Add(p.workers)
	for n := 0; n < p.workers; n++ {
		go p.worker(n)
	}
}

// Submit queues the task without blocking. A full queue is reported as ErrQueueFull.
func (p *pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running.Load() {
		return common.ErrQueueFull
	}

	select {
	case p.in <- task:
		return nil
	default:
		return common.ErrQueueFull
	}
}

// Stop cancels the pool context, lets queued tasks observe it and waits for the workers.
func (p *pool) Stop() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	p.cancel()
	close(p.in)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *pool) worker(n int) {
	defer p.wg.Done()

	log := p.log.With(slog.Int("worker_id", n))
	log.Debug("Started")

	for task := range p.in {
		p.run(log, task)
	}

	log.Debug("Done")
}

func (p *pool) run(log *slog.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Task panicked", slog.Any("panic", r))
		}
	}()

	task(p.ctx)
}
