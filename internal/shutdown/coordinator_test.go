package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCoordinator_RunsPhasesInOrder(t *testing.T) {
	c := NewCoordinator(5*time.Second, zap.NewNop())

	var mu sync.Mutex
	var order []string
	record := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c.Register(PhaseClose, "store", record("store"))
	c.Register(PhaseIntake, "http", record("http"))
	c.Register(PhaseBackground, "sweeper", record("sweeper"))
	c.Register(PhaseDrain, "queue", record("queue"))

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	want := []string{"http", "queue", "sweeper", "store"}
	if len(order) != len(want) {
		t.Fatalf("steps ran = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestCoordinator_PhaseStepsRunConcurrently(t *testing.T) {
	c := NewCoordinator(5*time.Second, zap.NewNop())

	gate := make(chan struct{})
	c.Register(PhaseClose, "a", func(ctx context.Context) error {
		<-gate
		return nil
	})
	c.Register(PhaseClose, "b", func(ctx context.Context) error {
		close(gate)
		return nil
	})

	// Deadlocks unless a and b run in parallel.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCoordinator_StepFailureDoesNotStopTeardown(t *testing.T) {
	c := NewCoordinator(5*time.Second, zap.NewNop())

	var closed atomic.Bool
	c.Register(PhaseDrain, "queue", func(ctx context.Context) error {
		return errors.New("drain stuck")
	})
	c.Register(PhaseClose, "store", func(ctx context.Context) error {
		closed.Store(true)
		return nil
	})

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !closed.Load() {
		t.Error("later phases should still run after a failed step")
	}
}

func TestCoordinator_ConcurrentCallersShareOneRun(t *testing.T) {
	c := NewCoordinator(5*time.Second, zap.NewNop())

	var runs atomic.Int32
	c.Register(PhaseIntake, "http", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Shutdown(context.Background()); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		}()
	}
	wg.Wait()

	if runs.Load() != 1 {
		t.Errorf("teardown ran %d times, want 1", runs.Load())
	}
}

func TestCoordinator_CallerContextBoundsOnlyTheWait(t *testing.T) {
	c := NewCoordinator(5*time.Second, zap.NewNop())

	release := make(chan struct{})
	c.Register(PhaseDrain, "queue", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// The teardown itself keeps running and finishes once unblocked.
	close(release)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("second wait: %v", err)
	}
}
