package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/clock"
	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/errors"
)

// fakeRepo is an in-test primary with switchable failure modes.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Prospect
	failing bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*domain.Prospect)}
}

func (f *fakeRepo) Get(_ context.Context, phone string) (*domain.Prospect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("primary down")
	}
	p, ok := f.records[phone]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeRepo) Put(_ context.Context, p *domain.Prospect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("primary down")
	}
	f.records[p.PhoneNumber] = p.Clone()
	return nil
}

func (f *fakeRepo) FindInactive(_ context.Context, cutoff time.Time) ([]*domain.Prospect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("primary down")
	}
	var out []*domain.Prospect
	for _, p := range f.records {
		if !p.IsClosed() && p.LastInteraction.Before(cutoff) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (f *fakeRepo) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func testClock() *clock.Mock {
	return clock.NewMock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
}

func TestGet_UnknownNumberCreatesDefault(t *testing.T) {
	s := New(newFakeRepo(), testClock(), zap.NewNop())

	p := s.Get(context.Background(), "5215512345678")
	if p.State != domain.StateInitial {
		t.Errorf("new prospect state = %s, want INITIAL", p.State)
	}
	if p.PhoneNumber != "5215512345678" {
		t.Errorf("phone = %q", p.PhoneNumber)
	}
	if p.CreatedAt.IsZero() {
		t.Error("createdAt not set")
	}
}

func TestUpdate_MergesAndPersists(t *testing.T) {
	repo := newFakeRepo()
	clk := testClock()
	s := New(repo, clk, zap.NewNop())
	ctx := context.Background()

	s.Update(ctx, "5215512345678", &domain.Patch{Name: domain.Str("Juan")})
	clk.Advance(time.Minute)
	p := s.Update(ctx, "5215512345678", &domain.Patch{Company: domain.Str("Transportes X")})

	if p.Name != "Juan" || p.Company != "Transportes X" {
		t.Errorf("merged record = %+v", p)
	}
	stored, err := repo.Get(ctx, "5215512345678")
	if err != nil {
		t.Fatalf("primary read: %v", err)
	}
	if stored.Company != "Transportes X" {
		t.Error("update did not reach primary")
	}
	if !p.LastInteraction.After(p.CreatedAt) {
		t.Error("lastInteraction should advance")
	}
}

func TestUpdate_PrimaryDown_FallsBackToMemory(t *testing.T) {
	repo := newFakeRepo()
	repo.setFailing(true)
	s := New(repo, testClock(), zap.NewNop())
	ctx := context.Background()

	// Update never errors even with the primary down.
	s.Update(ctx, "5215512345678", &domain.Patch{Name: domain.Str("Ana")})

	p := s.Get(ctx, "5215512345678")
	if p.Name != "Ana" {
		t.Error("record should be readable from memory fallback")
	}
	if s.MemoryCount() != 1 {
		t.Errorf("memory count = %d, want 1", s.MemoryCount())
	}
}

func TestGet_MemoryWinsOverStalePrimary(t *testing.T) {
	repo := newFakeRepo()
	clk := testClock()
	s := New(repo, clk, zap.NewNop())
	ctx := context.Background()

	s.Update(ctx, "5215512345678", &domain.Patch{Name: domain.Str("v1")})
	repo.setFailing(true)
	s.Update(ctx, "5215512345678", &domain.Patch{Name: domain.Str("v2")})
	repo.setFailing(false)

	// Primary still holds v1; memory holds v2 and must win.
	p := s.Get(ctx, "5215512345678")
	if p.Name != "v2" {
		t.Errorf("got %q, want memory copy v2", p.Name)
	}
}

func TestFindInactive(t *testing.T) {
	repo := newFakeRepo()
	clk := testClock()
	s := New(repo, clk, zap.NewNop())
	ctx := context.Background()

	s.Update(ctx, "111", &domain.Patch{State: domain.StatePtr(domain.StateGreeting)})
	s.Update(ctx, "222", &domain.Patch{State: domain.StatePtr(domain.StateClosed)})
	clk.Advance(48 * time.Hour)
	s.Update(ctx, "333", &domain.Patch{State: domain.StatePtr(domain.StateGreeting)})

	got := s.FindInactive(ctx, 24)
	if len(got) != 1 {
		t.Fatalf("inactive count = %d, want 1 (%v)", len(got), got)
	}
	if got[0].PhoneNumber != "111" {
		t.Errorf("inactive = %s, want 111", got[0].PhoneNumber)
	}
}

func TestClose_ClearsFallback(t *testing.T) {
	s := New(nil, testClock(), zap.NewNop())
	s.Update(context.Background(), "111", &domain.Patch{})
	if s.MemoryCount() != 1 {
		t.Fatal("expected one record in memory")
	}
	s.Close()
	if s.MemoryCount() != 0 {
		t.Error("Close should clear the fallback map")
	}
}

func TestStore_NilPrimary(t *testing.T) {
	s := New(nil, testClock(), zap.NewNop())
	ctx := context.Background()

	p := s.Update(ctx, "5215512345678", &domain.Patch{Name: domain.Str("Memoria")})
	if p.Name != "Memoria" {
		t.Error("memory-only store should work")
	}
	if got := s.Get(ctx, "5215512345678"); got.Name != "Memoria" {
		t.Error("memory-only read failed")
	}
}
