// Package reflection maintains a rolling window over recently persisted
// conversation turns and periodically dispatches background analysis of the
// window, storing the resulting insights back into the memory store.
//
// The scheduler runs entirely off the capture hot path: window accounting is
// a short critical section and analysis jobs are handed to a bounded worker
// pool with a drop-on-overflow policy.
package reflection

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/capture"
	"github.com/coilworks/mnemo/pkg/memory"
)

var (
	defaultWindowSize       = 5
	defaultThreshold        = 5
	defaultNumWorkers  uint = 2
	defaultQueueSize   uint = 16
	defaultSearchLimit      = 20
)

// Searcher retrieves related memories used as analysis context.
// *memory.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Memory, error)
}

// Reflector analyzes a message window plus retrieved context and stores any
// insights it derives. Implementations must be safe for concurrent use.
type Reflector interface {
	Reflect(ctx context.Context, messages []memory.Message, related []memory.Memory) error
}

// Config is the configuration options for the reflection scheduler.
type Config struct {
	// WindowSize is the number of recent messages retained for analysis.
	WindowSize int

	// Threshold is the number of new messages that triggers a reflection.
	Threshold int

	// NumWorkers is the number of background analysis workers.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel. When the queue
	// is full a triggered reflection is dropped with a log line.
	QueueSize uint

	// SearchLimit caps the number of context memories retrieved per job.
	SearchLimit int

	// UserID scopes context retrieval.
	UserID string

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// job is a snapshot of the window at trigger time.
type job struct {
	messages []memory.Message
}

// Scheduler implements capture.TurnSink. Each persisted turn feeds its
// messages into the rolling window; every Threshold messages a snapshot of
// the window is dispatched for background analysis.
type Scheduler struct {
	config    Config
	searcher  Searcher
	reflector Reflector

	// mu guards window and pending. Snapshot and counter reset happen under
	// one acquisition so concurrent turns cannot double-trigger.
	mu      sync.Mutex
	window  []memory.Message
	pending int

	queue chan job
	wg    sync.WaitGroup

	logger *zap.Logger
}

// NewScheduler creates a scheduler and starts its worker goroutines.
func NewScheduler(c Config, searcher Searcher, reflector Reflector) (*Scheduler, error) {
	if reflector == nil {
		return nil, fmt.Errorf("reflector is required")
	}
	if c.WindowSize <= 0 {
		c.WindowSize = defaultWindowSize
	}
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = defaultSearchLimit
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	s := &Scheduler{
		config:    c,
		searcher:  searcher,
		reflector: reflector,
		queue:     make(chan job, c.QueueSize),
		logger:    c.Logger,
	}

	s.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go s.worker(i)
	}

	return s, nil
}

// TurnPersisted feeds one persisted turn's messages into the window and
// dispatches analysis when the trigger threshold is crossed. Never blocks.
func (s *Scheduler) TurnPersisted(turn *capture.Turn, _ string) {
	if turn == nil || len(turn.Messages) == 0 {
		return
	}

	s.mu.Lock()
	s.window = append(s.window, turn.Messages...)
	if over := len(s.window) - s.config.WindowSize; over > 0 {
		s.window = append(s.window[:0], s.window[over:]...)
	}
	s.pending += len(turn.Messages)

	var snapshot []memory.Message
	if s.pending >= s.config.Threshold {
		snapshot = make([]memory.Message, len(s.window))
		copy(snapshot, s.window)
		s.pending = 0
	}
	s.mu.Unlock()

	if snapshot == nil {
		return
	}

	select {
	case s.queue <- job{messages: snapshot}:
		s.logger.Debug("reflection queued",
			zap.Int("window_messages", len(snapshot)),
		)
	default:
		s.logger.Warn("reflection dropped, queue full",
			zap.Int("window_messages", len(snapshot)),
		)
	}
}

// WindowSize returns the number of messages currently in the window.
func (s *Scheduler) WindowSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (s *Scheduler) Close() {
	close(s.queue)
	s.wg.Wait()
}

func (s *Scheduler) worker(id uint) {
	defer s.wg.Done()
	s.logger.Debug("reflection worker started", zap.Uint("worker_id", id))

	for j := range s.queue {
		s.runReflection(j)
	}

	s.logger.Debug("reflection worker stopped", zap.Uint("worker_id", id))
}

// runReflection executes one analysis job. All failures are logged and
// contained; a broken analyzer must never take down the pool.
func (s *Scheduler) runReflection(j job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reflection panic recovered", zap.Any("panic", r))
		}
	}()

	ctx := context.Background()

	var related []memory.Memory
	if s.searcher != nil {
		results, err := s.searcher.Search(ctx, contextQuery(j.messages), memory.SearchOptions{
			UserID: s.config.UserID,
			Limit:  s.config.SearchLimit,
		})
		if err != nil {
			// Analysis still runs without context; retrieval is best-effort.
			s.logger.Warn("reflection context retrieval failed", zap.Error(err))
		} else {
			related = results
		}
	}

	if err := s.reflector.Reflect(ctx, j.messages, related); err != nil {
		s.logger.Error("reflection failed",
			zap.Int("window_messages", len(j.messages)),
			zap.Error(err),
		)
		return
	}

	s.logger.Debug("reflection completed",
		zap.Int("window_messages", len(j.messages)),
		zap.Int("context_memories", len(related)),
	)
}

// contextQuery builds a retrieval query from the window, truncating each
// message so one long payload cannot dominate the query.
func contextQuery(messages []memory.Message) string {
	const perMessage = 100

	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content
		if len(content) > perMessage {
			content = content[:perMessage]
		}
		if content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, " ")
}
