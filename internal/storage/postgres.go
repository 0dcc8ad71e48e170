package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ DedupStore = (*PostgresDedupStore)(nil)

const (
	claimEventQuery = `
		INSERT INTO webhook_events (event_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE
			SET expires_at = EXCLUDED.expires_at, claimed_at = NOW()
			WHERE webhook_events.expires_at <= NOW()`

	commitEventQuery = `
		INSERT INTO webhook_events (event_id, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`

	releaseEventQuery = `DELETE FROM webhook_events WHERE event_id = $1`

	purgeExpiredEventsQuery = `DELETE FROM webhook_events WHERE expires_at <= NOW()`
)

// PostgresDedupStore keeps claims in the webhook_events table so they survive
// restarts and are shared across replicas.
type PostgresDedupStore struct {
	pool *pgxpool.Pool
}

func NewPostgresDedupStore(pool *pgxpool.Pool) *PostgresDedupStore {
	return &PostgresDedupStore{pool: pool}
}

func (s *PostgresDedupStore) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, claimEventQuery, eventID, time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("claim webhook event: %w", err)
	}
	// zero rows when an unexpired claim already exists
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresDedupStore) Commit(ctx context.Context, eventID string, ttl time.Duration) error {
	if _, err := s.pool.Exec(ctx, commitEventQuery, eventID, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("commit webhook event: %w", err)
	}
	return nil
}

func (s *PostgresDedupStore) Release(ctx context.Context, eventID string) error {
	if _, err := s.pool.Exec(ctx, releaseEventQuery, eventID); err != nil {
		return fmt.Errorf("release webhook event: %w", err)
	}
	return nil
}

// PurgeExpired deletes claims past their expiry and returns how many were removed.
func (s *PostgresDedupStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, purgeExpiredEventsQuery)
	if err != nil {
		return 0, fmt.Errorf("purge webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
