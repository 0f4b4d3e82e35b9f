// Package worker runs asynchronous score requests against the orchestrator.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/racescore/internal/adapters/mq/queue"
	"github.com/okian/racescore/internal/domain/model"
	"github.com/okian/racescore/pkg/logger"
	"github.com/okian/racescore/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Scorer runs one scoring invocation.
type Scorer interface {
	ScoreRace(ctx context.Context, gameID model.GameID, raceID model.RaceID, ruleSetVersion int) error
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// Worker processes requests until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current request.
	Shutdown(ctx context.Context) error
}

// Counters is shared between a pool's workers.
type Counters struct {
	Processed atomic.Int64
	Failed    atomic.Int64
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	scorer   Scorer
	name     string
	counters *Counters

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, scorer Scorer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		scorer:   scorer,
		name:     "worker",
		counters: &Counters{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "score request failed",
					logger.String("request_id", r.ID),
					logger.String("game_id", string(r.GameID)),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, r queue.Request) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	w.logger.Debug(ctx, "processing score request",
		logger.String("request_id", r.ID),
		logger.String("game_id", string(r.GameID)),
		logger.Duration("queued_for", start.Sub(r.EnqueuedAt)),
	)

	if err := w.scorer.ScoreRace(ctx, r.GameID, r.RaceID, r.RuleSetVersion); err != nil {
		w.counters.Failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "score_failed")
		return fmt.Errorf("request %s: %w", r.ID, err)
	}
	w.counters.Processed.Add(1)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. Non-positive counts use
// one worker per CPU.
func NewPool(workerCount int, q Queue, scorer Scorer) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counters: &Counters{},
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(q, scorer,
			WithName("worker-"+strconv.Itoa(i)),
			withCounters(p.counters),
		)
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed is the number of requests completed successfully.
func (p *Pool) Processed() int64 { return p.counters.Processed.Load() }

// Failed is the number of requests that ended in error.
func (p *Pool) Failed() int64 { return p.counters.Failed.Load() }

// Shutdown closes the queue, lets workers drain it and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
