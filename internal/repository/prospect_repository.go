// Package repository implements prospect persistence using PostgreSQL.
// Prospects are stored as JSONB documents keyed by normalized phone
// number; a few columns are denormalized for indexed queries.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rastreogo/leadbot/internal/domain"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
)

// ProspectRepository implements domain.ProspectRepository using PostgreSQL.
type ProspectRepository struct {
	pool *pgxpool.Pool
}

// NewProspectRepository creates a new ProspectRepository.
func NewProspectRepository(pool *pgxpool.Pool) *ProspectRepository {
	return &ProspectRepository{pool: pool}
}

// Get retrieves the prospect document for a phone number.
func (r *ProspectRepository) Get(ctx context.Context, phone string) (*domain.Prospect, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	var doc []byte
	err := r.pool.QueryRow(ctx,
		"SELECT doc FROM prospects WHERE phone_number = $1", phone,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query prospect: %w", err)
	}

	return decodeProspect(doc)
}

// Put inserts or replaces the full prospect document.
func (r *ProspectRepository) Put(ctx context.Context, p *domain.Prospect) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prospect: %w", err)
	}

	query := `
		INSERT INTO prospects (
			phone_number, doc, conversation_state, last_interaction, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (phone_number) DO UPDATE SET
			doc = EXCLUDED.doc,
			conversation_state = EXCLUDED.conversation_state,
			last_interaction = EXCLUDED.last_interaction,
			updated_at = now()`

	_, err = r.pool.Exec(ctx, query,
		p.PhoneNumber,
		doc,
		string(p.State),
		p.LastInteraction,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert prospect: %w", err)
	}

	return nil
}

// FindInactive returns prospects whose last interaction is older than the
// cutoff and whose conversation is not closing or closed.
func (r *ProspectRepository) FindInactive(ctx context.Context, cutoff time.Time) ([]*domain.Prospect, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT doc FROM prospects
		WHERE last_interaction < $1
		  AND conversation_state NOT IN ($2, $3)
		ORDER BY last_interaction ASC`

	rows, err := r.pool.Query(ctx, query,
		cutoff,
		string(domain.StateClosing),
		string(domain.StateClosed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inactive prospects: %w", err)
	}
	defer rows.Close()

	var prospects []*domain.Prospect
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan prospect: %w", err)
		}
		p, err := decodeProspect(doc)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prospects: %w", err)
	}

	return prospects, nil
}

// decodeProspect unmarshals a stored document, collapsing unknown state
// values to INITIAL so records from older bot versions stay loadable.
func decodeProspect(doc []byte) (*domain.Prospect, error) {
	p := &domain.Prospect{}
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prospect: %w", err)
	}
	p.State = domain.NormalizeState(p.State)
	return p, nil
}
