package embed

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusqa/campusqa/internal/log"
)

const (
	defaultNumWorkers = 4
	defaultQueueSize  = 64
)

// Pool serializes embedding calls through a fixed number of workers so a
// burst of concurrent turns cannot fan out into unbounded upstream calls.
//
// Pool itself implements Embedder, so callers are unaware of the bounding.
type Pool struct {
	embedder Embedder
	queue    chan job
	wg       sync.WaitGroup
	logger   log.Logger

	closeOnce sync.Once
}

type job struct {
	ctx    context.Context
	text   string
	result chan jobResult
}

type jobResult struct {
	vector []float32
	err    error
}

// NewPool starts workers goroutines servicing embedding requests.
// workers and queueSize fall back to defaults when zero. Close must be
// called to release the workers.
func NewPool(embedder Embedder, workers, queueSize int, logger log.Logger) *Pool {
	if workers <= 0 {
		workers = defaultNumWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = log.NewNop()
	}

	p := &Pool{
		embedder: embedder,
		queue:    make(chan job, queueSize),
		logger:   logger,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.queue {
		// The submitter may have given up while the job sat in the queue.
		if err := j.ctx.Err(); err != nil {
			j.result <- jobResult{err: err}
			continue
		}

		vector, err := p.embedder.Embed(j.ctx, j.text)
		if err != nil {
			p.logger.Debug("embedding failed", "worker", id, "error", err)
		}
		j.result <- jobResult{vector: vector, err: err}
	}
}

// Embed submits text to the pool and blocks until a worker finishes it or
// ctx is done.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	j := job{ctx: ctx, text: text, result: make(chan jobResult, 1)}

	select {
	case p.queue <- j:
	case <-ctx.Done():
		return nil, fmt.Errorf("embed queue: %w", ctx.Err())
	}

	select {
	case res := <-j.result:
		return res.vector, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("embed wait: %w", ctx.Err())
	}
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
	})
	p.wg.Wait()
}
