package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/transport"
)

// Queue fans inbound messages out to a fixed worker pool, keyed by
// sender: every message from the same number lands on the same worker,
// so a prospect's messages are processed strictly in arrival order
// while different prospects proceed in parallel.
type Queue struct {
	engine  *Engine
	workers int
	depth   int
	logger  *zap.Logger

	channels []chan *transport.InboundMessage
	wg       sync.WaitGroup

	// pending counts messages accepted but not yet processed, across
	// all shards, and feeds the queue depth gauge.
	pending atomic.Int64

	mu      sync.RWMutex
	running bool
}

// QueueConfig holds configuration for the dispatch queue.
type QueueConfig struct {
	Workers int
	Depth   int
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		Workers: 4,
		Depth:   64,
	}
}

// NewQueue creates a dispatch queue feeding the engine.
func NewQueue(engine *Engine, config *QueueConfig, logger *zap.Logger) *Queue {
	if config == nil {
		config = DefaultQueueConfig()
	}
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	depth := config.Depth
	if depth < 1 {
		depth = 1
	}
	return &Queue{
		engine:  engine,
		workers: workers,
		depth:   depth,
		logger:  logger,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return errors.New("queue already running")
	}

	q.channels = make([]chan *transport.InboundMessage, q.workers)
	for i := range q.channels {
		q.channels[i] = make(chan *transport.InboundMessage, q.depth)
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.running = true

	q.logger.Info("dispatch queue started",
		zap.Int("workers", q.workers),
		zap.Int("depth", q.depth),
	)
	return nil
}

// Enqueue routes a message to its sender's worker. It blocks while the
// worker's channel is full and reports an error once the queue has been
// stopped.
func (q *Queue) Enqueue(msg *transport.InboundMessage) error {
	// The read lock is held across the send so Stop cannot close the
	// channel out from under a blocked sender.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return errors.New("queue is stopped")
	}
	q.channels[q.shard(msg.RemoteJid)] <- msg
	q.engine.metrics.SetQueueDepth(int(q.pending.Add(1)))
	return nil
}

// Stop drains the queue: intake is cut off first, then the workers
// finish whatever is already buffered. The context bounds the wait.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	for _, ch := range q.channels {
		close(ch)
	}
	q.mu.Unlock()

	q.logger.Info("dispatch queue draining")

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("dispatch queue stopped")
		return nil
	case <-ctx.Done():
		q.logger.Warn("dispatch queue drain timed out")
		return ctx.Err()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	logger := q.logger.With(zap.Int("worker_id", id))
	logger.Debug("worker started")

	for msg := range q.channels[id] {
		q.engine.Process(context.Background(), msg)
		q.engine.metrics.SetQueueDepth(int(q.pending.Add(-1)))
	}

	logger.Debug("worker stopped")
}

// shard maps a sender jid to a worker index.
func (q *Queue) shard(jid string) int {
	h := fnv.New32a()
	h.Write([]byte(jid))
	return int(h.Sum32() % uint32(q.workers))
}
