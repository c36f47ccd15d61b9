// Package store provides the prospect store: a best-effort document
// store primary with an always-available in-memory fallback. The store
// never surfaces persistence errors to callers; a failing primary
// degrades the bot, it does not break conversations.
package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/errors"
)

// Store coordinates the primary repository and the memory fallback.
// The fallback map lives for the process lifetime; Close clears it.
type Store struct {
	primary domain.ProspectRepository // may be nil when running without a database
	memory  *memoryStore
	clock   clock.Clock
	logger  *zap.Logger

	locks [64]sync.Mutex
}

// New creates a Store. primary may be nil, which runs the store in
// memory-only mode. A nil clk defaults to the real clock.
func New(primary domain.ProspectRepository, clk clock.Clock, logger *zap.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		primary: primary,
		memory:  newMemoryStore(),
		clock:   clk,
		logger:  logger,
	}
}

// Lock serializes a read-modify-write span on one prospect. The dispatch
// queue orders messages per phone, but targeted operator commands and
// the inactivity sweep mutate records from other goroutines; every
// Get-mutate-Save span must run under the phone's lock so none of them
// clobbers another's write. Returns the unlock function.
func (s *Store) Lock(phone string) func() {
	m := &s.locks[lockIndex(phone, len(s.locks))]
	m.Lock()
	return m.Unlock
}

func lockIndex(phone string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	return int(h.Sum32() % uint32(n))
}

// Get returns the prospect for the phone number, creating a fresh default
// record (state INITIAL) for unknown numbers. Reads consult the memory
// fallback first so that records stranded there by a primary outage are
// not shadowed by stale database copies.
func (s *Store) Get(ctx context.Context, phone string) *domain.Prospect {
	if p, ok := s.memory.get(phone); ok {
		return p
	}

	if s.primary != nil {
		p, err := s.primary.Get(ctx, phone)
		if err == nil {
			return p
		}
		if !errors.IsNotFound(err) {
			s.logger.Warn("prospect store primary read failed",
				zap.String("phone", phone),
				zap.Error(err),
			)
		}
	}

	return domain.NewProspect(phone, s.clock.NowUTC())
}

// Save persists the full prospect record. The write always lands in the
// memory fallback; the primary write is best-effort.
func (s *Store) Save(ctx context.Context, p *domain.Prospect) {
	s.memory.put(p)

	if s.primary == nil {
		return
	}
	if err := s.primary.Put(ctx, p); err != nil {
		s.logger.Warn("prospect store primary write failed, record kept in memory",
			zap.String("phone", p.PhoneNumber),
			zap.Error(err),
		)
	}
}

// Update merges a patch into the record for the phone number, stamps
// LastInteraction, persists, and returns the merged record.
func (s *Store) Update(ctx context.Context, phone string, patch *domain.Patch) *domain.Prospect {
	p := s.Get(ctx, phone)
	patch.Apply(p, s.clock.NowUTC())
	s.Save(ctx, p)
	return p
}

// FindInactive returns prospects idle for longer than the given number of
// hours whose conversation is not closing or closed. Results from the
// primary and the memory tier are merged, memory winning on conflicts.
func (s *Store) FindInactive(ctx context.Context, hours int) []*domain.Prospect {
	cutoff := s.clock.NowUTC().Add(-time.Duration(hours) * time.Hour)

	merged := make(map[string]*domain.Prospect)
	if s.primary != nil {
		fromPrimary, err := s.primary.FindInactive(ctx, cutoff)
		if err != nil {
			s.logger.Warn("prospect store inactive scan failed on primary", zap.Error(err))
		} else {
			for _, p := range fromPrimary {
				merged[p.PhoneNumber] = p
			}
		}
	}
	for _, p := range s.memory.findInactive(cutoff) {
		merged[p.PhoneNumber] = p
	}

	out := make([]*domain.Prospect, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	return out
}

// MemoryCount reports how many records currently live in the fallback map.
func (s *Store) MemoryCount() int {
	return s.memory.len()
}

// Close clears the process-lifetime fallback map. Called on shutdown.
func (s *Store) Close() {
	n := s.memory.len()
	s.memory.clear()
	if n > 0 {
		s.logger.Info("cleared in-memory prospect fallback", zap.Int("records", n))
	}
}
