// Package worker provides an asynchronous worker pool that runs the capture
// pipeline against observed response payloads.
//
// The pool decouples reconstruction and persistence from the proxy's HTTP hot
// path so that the client-proxy-upstream interaction is fully transparent.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against: one fully
// delivered response body for a flow whose request was already observed.
type Job struct {
	FlowID      string
	Body        []byte
	ContentType string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Pipeline runs correlation, reconstruction, and persistence per job.
	Pipeline *capture.Pipeline

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes capture jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Pipeline == nil {
		return nil, fmt.Errorf("capture pipeline is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job
// being dropped. Callers must release flow state themselves when a job drops.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("capture job queued",
			zap.String("flow_id", job.FlowID),
			zap.Int("body_bytes", len(job.Body)),
		)
		return true
	default:
		p.logger.Error("capture job not queued, queue full, job dropped",
			zap.String("flow_id", job.FlowID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the proxy HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("capture worker stopped", zap.Uint("worker_id", id))
}

// processJob runs one response body through the capture pipeline and releases
// the flow state. Each job carries a fully delivered body, so the flow is
// done regardless of the outcome.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	outcome := p.config.Pipeline.OnResponse(ctx, job.FlowID, job.Body, job.ContentType)
	p.config.Pipeline.Forget(job.FlowID)

	if outcome.Stored {
		p.logger.Debug("capture job stored turn",
			zap.String("flow_id", job.FlowID),
			zap.String("memory_id", outcome.TurnID),
		)
		return
	}

	p.logger.Debug("capture job skipped",
		zap.String("flow_id", job.FlowID),
		zap.String("reason", outcome.Reason),
	)
}
