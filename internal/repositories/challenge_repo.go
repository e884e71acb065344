package repositories

import (
	"context"
	"errors"

	"github.com/jdmarch/gauntlet/internal/database"
	"github.com/jdmarch/gauntlet/internal/models"
)

// ChallengeRepository handles database operations for issued challenges.
type ChallengeRepository struct {
	db *database.DB
}

// NewChallengeRepository creates a new ChallengeRepository
func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// Create stores a freshly issued challenge.
func (r *ChallengeRepository) Create(ctx context.Context, c *models.Challenge) error {
	query := `
		INSERT INTO challenges (id, type, identity_key, question, answer_hash, seed, difficulty, issued_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		c.ID,
		string(c.Type),
		c.IdentityKey,
		c.Question,
		c.AnswerHash,
		c.Seed,
		c.Difficulty,
		c.IssuedAt,
		c.ExpiresAt,
	)

	return database.MapStorageError(err)
}

// Consume atomically flips the challenge to consumed and returns it, but
// only if it is still live. The conditional UPDATE is the compare-and-set
// that guarantees at most one verification call ever receives the challenge
// back, regardless of how many race on the same id.
//
// Failure modes, in precedence order:
//   - ErrNotFound: no such challenge (or already reclaimed by cleanup)
//   - ErrChallengeExpired: present but past TTL, consumed or not
//   - ErrChallengeConsumed: live but a prior call already won it
func (r *ChallengeRepository) Consume(ctx context.Context, id string) (*models.Challenge, error) {
	query := `
		UPDATE challenges
		SET consumed = true, consumed_at = NOW()
		WHERE id = $1 AND consumed = false AND expires_at > NOW()
		RETURNING id, type, identity_key, question, answer_hash, seed, difficulty, issued_at, expires_at, consumed, consumed_at
	`

	c := &models.Challenge{}
	var challengeType string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&challengeType,
		&c.IdentityKey,
		&c.Question,
		&c.AnswerHash,
		&c.Seed,
		&c.Difficulty,
		&c.IssuedAt,
		&c.ExpiresAt,
		&c.Consumed,
		&c.ConsumedAt,
	)
	if err == nil {
		c.Type = models.ChallengeType(challengeType)
		return c, nil
	}

	mapped := database.MapStorageError(err)
	if !errors.Is(mapped, models.ErrNotFound) {
		return nil, mapped
	}

	// The CAS lost. Classify why without racing a second mutation.
	return nil, r.classifyConsumeFailure(ctx, id)
}

// classifyConsumeFailure distinguishes the three ways a consume can lose.
// Expiry takes precedence over prior consumption: a correct solution past
// TTL is reported expired, not already-used.
func (r *ChallengeRepository) classifyConsumeFailure(ctx context.Context, id string) error {
	query := `SELECT consumed, expires_at <= NOW() FROM challenges WHERE id = $1`

	var consumed, expired bool
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(&consumed, &expired)
	if err != nil {
		return database.MapStorageError(err)
	}

	if expired {
		return models.ErrChallengeExpired
	}
	if consumed {
		return models.ErrChallengeConsumed
	}
	// Unreachable unless the row changed between the UPDATE and this read;
	// treat as consumed since the CAS definitively lost.
	return models.ErrChallengeConsumed
}

// Get returns a challenge by id regardless of consumption state, for
// admin inspection.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*models.Challenge, error) {
	query := `
		SELECT id, type, identity_key, question, answer_hash, seed, difficulty, issued_at, expires_at, consumed, consumed_at
		FROM challenges
		WHERE id = $1
	`

	c := &models.Challenge{}
	var challengeType string
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&challengeType,
		&c.IdentityKey,
		&c.Question,
		&c.AnswerHash,
		&c.Seed,
		&c.Difficulty,
		&c.IssuedAt,
		&c.ExpiresAt,
		&c.Consumed,
		&c.ConsumedAt,
	)
	if err != nil {
		return nil, database.MapStorageError(err)
	}

	c.Type = models.ChallengeType(challengeType)
	return c, nil
}

// DeleteExpired removes challenges past their TTL, consumed or not.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM challenges WHERE expires_at <= NOW()`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapStorageError(err)
	}
	return tag.RowsAffected(), nil
}
