package domain

import (
	"context"
	"time"
)

// ProspectRepository persists prospect documents keyed by normalized
// phone number. Implementations must treat the phone number as the
// document identity.
type ProspectRepository interface {
	// Get returns the prospect for the phone number, or ErrNotFound.
	Get(ctx context.Context, phone string) (*Prospect, error)

	// Put inserts or replaces the full prospect document.
	Put(ctx context.Context, p *Prospect) error

	// FindInactive returns prospects whose last interaction is older than
	// the cutoff and whose conversation is not closing or closed.
	FindInactive(ctx context.Context, cutoff time.Time) ([]*Prospect, error)
}
