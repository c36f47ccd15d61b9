// Package shutdown sequences the teardown of the bot's pipeline.
//
// Order matters: the webhook must stop accepting deliveries before the
// dispatch queue drains, and the store must outlive everything that can
// still write a prospect. Steps in the same phase stop concurrently;
// phases run in order.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase orders teardown. Lower phases stop first.
type Phase int

const (
	// PhaseIntake stops the HTTP server so no new deliveries arrive.
	PhaseIntake Phase = iota
	// PhaseDrain lets the dispatch queue finish queued conversations.
	PhaseDrain
	// PhaseBackground stops the sweeper and other periodic workers.
	PhaseBackground
	// PhaseClose releases the store and database connections.
	PhaseClose
)

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseDrain:
		return "drain"
	case PhaseBackground:
		return "background"
	case PhaseClose:
		return "close"
	default:
		return "unknown"
	}
}

type step struct {
	name string
	stop func(ctx context.Context) error
}

// Coordinator runs registered teardown steps phase by phase.
type Coordinator struct {
	mu      sync.Mutex
	steps   map[Phase][]step
	timeout time.Duration
	logger  *zap.Logger

	once sync.Once
	done chan struct{}
}

// NewCoordinator creates a Coordinator. timeout bounds the whole
// teardown, not each step.
func NewCoordinator(timeout time.Duration, logger *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		steps:   make(map[Phase][]step),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a teardown step to a phase.
func (c *Coordinator) Register(phase Phase, name string, stop func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[phase] = append(c.steps[phase], step{name: name, stop: stop})
}

// Shutdown runs the teardown once and waits for it. Concurrent callers
// share the same run; the ctx only bounds this caller's wait, the
// teardown itself keeps its full timeout.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		go c.run()
	})

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run() {
	defer close(c.done)

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.logger.Info("shutting down", zap.Duration("timeout", c.timeout))

	var failed int
	for _, phase := range []Phase{PhaseIntake, PhaseDrain, PhaseBackground, PhaseClose} {
		c.mu.Lock()
		steps := c.steps[phase]
		c.mu.Unlock()

		if len(steps) == 0 {
			continue
		}

		failed += c.runPhase(ctx, phase, steps)

		if ctx.Err() != nil {
			c.logger.Error("shutdown timeout exceeded",
				zap.String("phase", phase.String()),
			)
			return
		}
	}

	if failed > 0 {
		c.logger.Warn("shutdown finished with failed steps", zap.Int("failed", failed))
		return
	}
	c.logger.Info("shutdown complete")
}

func (c *Coordinator) runPhase(ctx context.Context, phase Phase, steps []step) int {
	var wg sync.WaitGroup
	errCh := make(chan error, len(steps))

	for _, s := range steps {
		wg.Add(1)
		go func(s step) {
			defer wg.Done()

			start := time.Now()
			if err := s.stop(ctx); err != nil {
				c.logger.Error("teardown step failed",
					zap.String("step", s.name),
					zap.String("phase", phase.String()),
					zap.Duration("took", time.Since(start)),
					zap.Error(err),
				)
				errCh <- fmt.Errorf("%s: %w", s.name, err)
				return
			}
			c.logger.Debug("teardown step done",
				zap.String("step", s.name),
				zap.String("phase", phase.String()),
				zap.Duration("took", time.Since(start)),
			)
		}(s)
	}

	wg.Wait()
	close(errCh)

	failed := 0
	for range errCh {
		failed++
	}
	return failed
}
