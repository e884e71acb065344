package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jdmarch/gauntlet/internal/models"
)

// LockoutConfig holds the backoff curve for the blocked tiers. The long
// tier's base sits above the short tier's cap so lockout duration is
// strictly increasing across tiers.
type LockoutConfig struct {
	ShortBase time.Duration
	ShortCap  time.Duration
	LongBase  time.Duration
	LongCap   time.Duration
}

// DefaultLockoutConfig derives the full curve from a single base duration.
func DefaultLockoutConfig(base time.Duration) LockoutConfig {
	shortCap := 60 * time.Second
	return LockoutConfig{
		ShortBase: base,
		ShortCap:  shortCap,
		LongBase:  2 * shortCap,
		LongCap:   1 * time.Hour,
	}
}

// LockoutService rejects requests outright for identities in the blocked
// tiers, before any challenge is issued.
type LockoutService struct {
	threat *ThreatService
	config LockoutConfig
	logger *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(threat *ThreatService, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		threat: threat,
		config: config,
		logger: logger,
	}
}

// RetryAfter reports whether the identity is blocked and for how long.
// A blocked result with zero duration means the block never expires
// absent manual intervention.
func (s *LockoutService) RetryAfter(ctx context.Context, identity models.Identity) (time.Duration, bool, error) {
	tier, record, err := s.threat.GetTier(ctx, identity)
	if err != nil {
		return 0, false, err
	}

	if !tier.Blocked() {
		return 0, false, nil
	}

	retry := s.BackoffFor(record)
	s.logger.Warn("request rejected by lockout",
		slog.String("identity", identity.Key()),
		slog.String("tier", string(tier)),
		slog.Int("count", record.Count),
		slog.Duration("retry_after", retry))

	return retry, true, nil
}

// BackoffFor computes the block duration for a record's count:
// base * 2^(count - tier_floor), capped per tier. Zero for the permanent
// tier, which has no duration at all.
func (s *LockoutService) BackoffFor(record *models.FailureRecord) time.Duration {
	count := record.Count

	switch models.TierForCount(count) {
	case models.TierBlockedShort:
		return exponential(s.config.ShortBase, count-models.BlockedShortFloor, s.config.ShortCap)
	case models.TierBlockedLong:
		return exponential(s.config.LongBase, count-models.BlockedLongFloor, s.config.LongCap)
	case models.TierBlockedPermanent:
		return 0
	default:
		return 0
	}
}

// exponential returns base * 2^exp capped at max, guarding the shift
// against overflow for large counts.
func exponential(base time.Duration, exp int, max time.Duration) time.Duration {
	if exp < 0 {
		exp = 0
	}
	if exp > 30 {
		return max
	}

	d := base << uint(exp)
	if d > max || d < base {
		return max
	}
	return d
}
