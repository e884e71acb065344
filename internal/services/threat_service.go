package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jdmarch/gauntlet/internal/models"
)

// ThreatRepository defines the interface for failure counter storage
type ThreatRepository interface {
	RecordFailure(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error)
	RecordSuccess(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error)
	Get(ctx context.Context, identityKey string) (*models.FailureRecord, error)
	Delete(ctx context.Context, identityKey string) error
}

// ThreatConfig holds configuration for threat tracking behavior
type ThreatConfig struct {
	FailureWindow time.Duration // inactivity window before a record expires
}

// ThreatService tracks per-identity failure history and derives threat
// tiers from it. It holds no state of its own; every read goes to storage
// so concurrent instances always see the current count.
type ThreatService struct {
	repo   ThreatRepository
	config ThreatConfig
	logger *slog.Logger
}

// NewThreatService creates a new ThreatService
func NewThreatService(repo ThreatRepository, config ThreatConfig, logger *slog.Logger) *ThreatService {
	return &ThreatService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// RecordFailure increments the identity's failure count and returns the
// updated record.
func (s *ThreatService) RecordFailure(ctx context.Context, identity models.Identity) (*models.FailureRecord, error) {
	record, err := s.repo.RecordFailure(ctx, identity.Key(), s.config.FailureWindow)
	if err != nil {
		s.logger.Error("failed to record failure", slog.Any("error", err))
		return nil, err
	}

	tier := record.Tier()
	if tier.Blocked() {
		s.logger.Warn("identity entered blocked tier",
			slog.String("identity", identity.Key()),
			slog.Int("count", record.Count),
			slog.String("tier", string(tier)))
	}

	return record, nil
}

// RecordSuccess applies partial forgiveness: the count is halved, never
// reset, so one stray success cannot erase an attack pattern in progress.
func (s *ThreatService) RecordSuccess(ctx context.Context, identity models.Identity) (*models.FailureRecord, error) {
	record, err := s.repo.RecordSuccess(ctx, identity.Key(), s.config.FailureWindow)
	if err != nil {
		s.logger.Error("failed to record success", slog.Any("error", err))
		return nil, err
	}
	return record, nil
}

// GetTier derives the identity's current threat tier from a fresh read of
// its failure record. Results are never cached across requests; a stale
// tier would let a racing attacker slip under an escalation boundary.
func (s *ThreatService) GetTier(ctx context.Context, identity models.Identity) (models.ThreatTier, *models.FailureRecord, error) {
	record, err := s.repo.Get(ctx, identity.Key())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.TierNone, &models.FailureRecord{IdentityKey: identity.Key()}, nil
		}
		return "", nil, err
	}

	return record.Tier(), record, nil
}

// GetRecord returns the raw failure record for an identity key, for admin
// inspection. ErrNotFound means a clean history.
func (s *ThreatService) GetRecord(ctx context.Context, identityKey string) (*models.FailureRecord, error) {
	return s.repo.Get(ctx, identityKey)
}

// Forgive wipes an identity's failure history. The only way out of a
// permanent block.
func (s *ThreatService) Forgive(ctx context.Context, identityKey string) error {
	if err := s.repo.Delete(ctx, identityKey); err != nil {
		return err
	}

	s.logger.Info("failure record cleared",
		slog.String("identity", identityKey))
	return nil
}
