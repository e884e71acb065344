package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jdmarch/gauntlet/internal/database"
	"github.com/jdmarch/gauntlet/internal/models"
)

// FailureRecordRepository handles database operations for per-identity
// failure counters. Every mutation is a single statement so concurrent
// instances behind a load balancer observe linearizable counts.
type FailureRecordRepository struct {
	db *database.DB
}

// NewFailureRecordRepository creates a new FailureRecordRepository
func NewFailureRecordRepository(db *database.DB) *FailureRecordRepository {
	return &FailureRecordRepository{db: db}
}

// RecordFailure atomically increments the identity's failure count within
// the active window. A lapsed window restarts the count at 1 rather than
// stacking onto stale history.
func (r *FailureRecordRepository) RecordFailure(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error) {
	query := `
		INSERT INTO failure_records (identity_key, count, window_start, last_failure_at, expires_at)
		VALUES ($1, 1, NOW(), NOW(), NOW() + $2::interval)
		ON CONFLICT (identity_key) DO UPDATE SET
			count = CASE WHEN failure_records.expires_at <= NOW() THEN 1 ELSE failure_records.count + 1 END,
			window_start = CASE WHEN failure_records.expires_at <= NOW() THEN NOW() ELSE failure_records.window_start END,
			last_failure_at = NOW(),
			expires_at = NOW() + $2::interval
		RETURNING identity_key, count, window_start, last_failure_at, expires_at
	`

	record := &models.FailureRecord{}
	err := r.db.Pool.QueryRow(ctx, query, identityKey, window).Scan(
		&record.IdentityKey,
		&record.Count,
		&record.WindowStart,
		&record.LastFailureAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapStorageError(err)
	}

	return record, nil
}

// RecordSuccess halves the identity's failure count, floor-rounded. Integer
// division in SQL guarantees the count never goes negative. An identity with
// no live record stays at zero.
func (r *FailureRecordRepository) RecordSuccess(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error) {
	query := `
		UPDATE failure_records
		SET count = count / 2,
		    expires_at = NOW() + $2::interval
		WHERE identity_key = $1 AND expires_at > NOW()
		RETURNING identity_key, count, window_start, last_failure_at, expires_at
	`

	record := &models.FailureRecord{}
	err := r.db.Pool.QueryRow(ctx, query, identityKey, window).Scan(
		&record.IdentityKey,
		&record.Count,
		&record.WindowStart,
		&record.LastFailureAt,
		&record.ExpiresAt,
	)
	if err != nil {
		mapped := database.MapStorageError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			// No history to forgive
			return &models.FailureRecord{IdentityKey: identityKey}, nil
		}
		return nil, mapped
	}

	return record, nil
}

// Get returns the identity's live failure record, or ErrNotFound if the
// identity has no failures inside the active window.
func (r *FailureRecordRepository) Get(ctx context.Context, identityKey string) (*models.FailureRecord, error) {
	query := `
		SELECT identity_key, count, window_start, last_failure_at, expires_at
		FROM failure_records
		WHERE identity_key = $1 AND expires_at > NOW()
	`

	record := &models.FailureRecord{}
	err := r.db.Pool.QueryRow(ctx, query, identityKey).Scan(
		&record.IdentityKey,
		&record.Count,
		&record.WindowStart,
		&record.LastFailureAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapStorageError(err)
	}

	return record, nil
}

// Delete removes an identity's failure record. This is the manual
// intervention path out of a permanent block.
func (r *FailureRecordRepository) Delete(ctx context.Context, identityKey string) error {
	query := `DELETE FROM failure_records WHERE identity_key = $1`
	tag, err := r.db.Pool.Exec(ctx, query, identityKey)
	if err != nil {
		return database.MapStorageError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired removes failure records whose inactivity window has lapsed.
func (r *FailureRecordRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM failure_records WHERE expires_at <= NOW()`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapStorageError(err)
	}
	return tag.RowsAffected(), nil
}
