package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/sanitize"
	"github.com/rastreogo/leadbot/internal/store"
)

// sweepInterval is how often the inactivity scan runs. The idle window
// itself comes from configuration; the scan cadence only bounds how
// stale a nudge can be.
const sweepInterval = 30 * time.Minute

// Sweeper periodically nudges prospects that went quiet mid-interview.
// The nudge bumps LastInteraction, so each idle stretch produces at
// most one message.
type Sweeper struct {
	store     *store.Store
	deliverer Deliverer
	hours     int
	clock     clock.Clock
	logger    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewSweeper creates a Sweeper. hours is the idle window; zero or
// negative disables the sweep entirely.
func NewSweeper(st *store.Store, deliverer Deliverer, hours int, clk clock.Clock, logger *zap.Logger) *Sweeper {
	if clk == nil {
		clk = clock.New()
	}
	return &Sweeper{
		store:     st,
		deliverer: deliverer,
		hours:     hours,
		clock:     clk,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop. A disabled sweeper starts nothing.
func (s *Sweeper) Start() {
	if s.hours <= 0 {
		s.logger.Info("inactivity sweep disabled")
		return
	}

	s.wg.Add(1)
	go s.run()

	s.logger.Info("inactivity sweep started",
		zap.Int("idle_hours", s.hours),
		zap.Duration("interval", sweepInterval),
	)
}

// Stop terminates the sweep loop and waits for an in-flight sweep.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C():
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one scan, nudging every idle prospect.
func (s *Sweeper) Sweep(ctx context.Context) {
	idle := s.store.FindInactive(ctx, s.hours)
	if len(idle) == 0 {
		return
	}

	s.logger.Info("nudging idle prospects", zap.Int("count", len(idle)))

	for _, p := range idle {
		s.nudge(ctx, p.PhoneNumber)
	}
}

// nudge messages one idle prospect. The record is re-read under its
// lock: the scan ran without one, and the prospect may have replied or
// been seized while earlier nudges in the batch were delivered.
func (s *Sweeper) nudge(ctx context.Context, phoneNum string) {
	unlock := s.store.Lock(phoneNum)
	defer unlock()

	p := s.store.Get(ctx, phoneNum)
	if p.InTakeover() {
		return
	}
	if s.clock.NowUTC().Sub(p.LastInteraction) < time.Duration(s.hours)*time.Hour {
		return
	}

	nudge := fmt.Sprintf("¡Hola de nuevo, %s! 👋 Quedamos a la mitad de la plática. ¿Seguimos donde nos quedamos?", p.DisplayName())
	if err := s.deliverer.Deliver(ctx, phoneNum+jidSuffix, nudge, nil); err != nil {
		s.logger.Warn("nudge delivery failed",
			zap.String("phone", sanitize.Phone(phoneNum)),
			zap.Error(err),
		)
		return
	}

	// Bump LastInteraction so this idle stretch is spent.
	s.store.Update(ctx, phoneNum, nil)
}
