package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/jdmarch/gauntlet/internal/pow"
	pkglogger "github.com/jdmarch/gauntlet/pkg/logger"
)

// ChallengeRepository defines the interface for challenge storage
type ChallengeRepository interface {
	Create(ctx context.Context, c *models.Challenge) error
	Consume(ctx context.Context, id string) (*models.Challenge, error)
}

// ChallengeConfig holds configuration for challenge issuance
type ChallengeConfig struct {
	TTL    time.Duration // challenge lifetime
	Secret string        // keys the arithmetic answer hashes
}

// IssuedChallenge is what goes back to the calling endpoint. It never
// carries the arithmetic answer; for proof-of-work it carries exactly what
// the client needs to start searching.
type IssuedChallenge struct {
	ID              string
	Type            models.ChallengeType
	Question        string   // arithmetic only
	Seed            string   // proof-of-work variants only
	Difficulty      int
	ExpiresAt       time.Time
	TelemetryFields []string // extended variant only
}

// ChallengeService issues challenges appropriate to a threat tier and
// judges submitted solutions exactly once per challenge.
type ChallengeService struct {
	repo   ChallengeRepository
	threat *ThreatService
	config ChallengeConfig
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
}

// NewChallengeService creates a new ChallengeService
func NewChallengeService(repo ChallengeRepository, threat *ThreatService, config ChallengeConfig, logger *slog.Logger, audit *pkglogger.AuditLogger) *ChallengeService {
	return &ChallengeService{
		repo:   repo,
		threat: threat,
		config: config,
		logger: logger,
		audit:  audit,
	}
}

// Issue produces a challenge for the given tier, bound to the identity so a
// solved challenge cannot be replayed by anyone else. failureCount drives
// difficulty within the moderate band. Tiers that require no challenge
// return a sentinel with Type none.
func (s *ChallengeService) Issue(ctx context.Context, tier models.ThreatTier, identity models.Identity, failureCount int) (*IssuedChallenge, error) {
	challengeType := tier.ChallengeType()
	if challengeType == models.ChallengeTypeNone {
		return &IssuedChallenge{Type: models.ChallengeTypeNone}, nil
	}

	now := time.Now().UTC()
	challenge := &models.Challenge{
		ID:          uuid.NewString(),
		Type:        challengeType,
		IdentityKey: identity.Key(),
		Difficulty:  models.DifficultyForCount(failureCount),
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.config.TTL),
	}

	issued := &IssuedChallenge{
		ID:         challenge.ID,
		Type:       challengeType,
		Difficulty: challenge.Difficulty,
		ExpiresAt:  challenge.ExpiresAt,
	}

	switch challengeType {
	case models.ChallengeTypeArithmetic:
		question, answer, err := generateArithmetic()
		if err != nil {
			return nil, fmt.Errorf("failed to generate arithmetic challenge: %w", err)
		}
		challenge.Question = question
		challenge.AnswerHash = s.hashAnswer(challenge.ID, answer)
		issued.Question = question

	case models.ChallengeTypeProofOfWork, models.ChallengeTypeProofOfWorkExtended:
		seed, err := randomSeed()
		if err != nil {
			return nil, fmt.Errorf("failed to generate challenge seed: %w", err)
		}
		challenge.Seed = seed
		issued.Seed = seed

		if challengeType == models.ChallengeTypeProofOfWorkExtended {
			issued.TelemetryFields = models.TelemetryFields()
		}
	}

	if err := s.repo.Create(ctx, challenge); err != nil {
		s.logger.Error("failed to store challenge", slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("challenge issued",
		slog.String("challenge_id", challenge.ID),
		slog.String("type", string(challengeType)),
		slog.Int("difficulty", challenge.Difficulty),
		slog.String("identity", challenge.IdentityKey))

	return issued, nil
}

// Verify consumes the challenge and judges the solution. The consume is a
// compare-and-set in storage, so for any challenge id exactly one call can
// reach a verified outcome; all others observe challenge_already_used.
// Success halves the identity's failure count; every failure verdict
// records a fresh failure.
func (s *ChallengeService) Verify(ctx context.Context, challengeID string, identity models.Identity, solution string, telemetry models.Telemetry) (*models.VerifyResult, error) {
	challenge, err := s.repo.Consume(ctx, challengeID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return s.fail(ctx, identity, models.OutcomeChallengeNotFound)
		case errors.Is(err, models.ErrChallengeExpired):
			return s.fail(ctx, identity, models.OutcomeChallengeExpired)
		case errors.Is(err, models.ErrChallengeConsumed):
			return s.fail(ctx, identity, models.OutcomeChallengeUsed)
		default:
			return nil, err
		}
	}

	if challenge.IdentityKey != identity.Key() {
		s.logger.Warn("challenge submitted by wrong identity",
			slog.String("challenge_id", challengeID),
			slog.String("bound_identity", challenge.IdentityKey),
			slog.String("caller_identity", identity.Key()))
		return s.fail(ctx, identity, models.OutcomeIdentityMismatch)
	}

	if !s.judge(challenge, solution) {
		return s.fail(ctx, identity, models.OutcomeInvalidSolution)
	}

	s.observeTelemetry(challenge, identity, telemetry)

	record, err := s.threat.RecordSuccess(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.audit.LogVerification(pkglogger.VerificationEvent{
		ChallengeID: challengeID,
		Type:        string(challenge.Type),
		IdentityKey: identity.Key(),
		Outcome:     string(models.OutcomeVerified),
		Difficulty:  challenge.Difficulty,
	})

	return &models.VerifyResult{Outcome: models.OutcomeVerified, Record: record}, nil
}

// judge checks the solution against the consumed challenge.
func (s *ChallengeService) judge(challenge *models.Challenge, solution string) bool {
	solution = strings.TrimSpace(solution)

	switch challenge.Type {
	case models.ChallengeTypeArithmetic:
		computed := s.hashAnswer(challenge.ID, solution)
		// Constant-time compare; the answer space is small enough that a
		// timing oracle on the hash would leak it.
		return hmac.Equal([]byte(computed), []byte(challenge.AnswerHash))

	case models.ChallengeTypeProofOfWork, models.ChallengeTypeProofOfWorkExtended:
		return pow.CheckSolution(challenge.Seed, solution, challenge.Difficulty)

	default:
		return false
	}
}

// fail records a failure against the identity and returns the typed outcome.
// Storage faults while recording propagate up so the caller fails closed.
func (s *ChallengeService) fail(ctx context.Context, identity models.Identity, outcome models.Outcome) (*models.VerifyResult, error) {
	record, err := s.threat.RecordFailure(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.audit.LogVerification(pkglogger.VerificationEvent{
		IdentityKey: identity.Key(),
		Outcome:     string(outcome),
	})

	return &models.VerifyResult{Outcome: outcome, Record: record}, nil
}

// observeTelemetry logs echoed client signals. They are heuristics the
// client controls, so they never influence the verdict; the one active
// check is a log line for solves faster than the difficulty plausibly
// allows, which feeds offline tuning.
func (s *ChallengeService) observeTelemetry(challenge *models.Challenge, identity models.Identity, telemetry models.Telemetry) {
	if telemetry.Empty() {
		return
	}
	if challenge.Type != models.ChallengeTypeProofOfWorkExtended {
		// Accepted but discarded: only the extended variant asks for
		// telemetry, so leave a trace instead of dropping it silently.
		s.logger.Debug("telemetry discarded for non-extended challenge",
			slog.String("challenge_id", challenge.ID),
			slog.String("challenge_type", string(challenge.Type)))
		return
	}

	s.audit.LogTelemetry(identity.Key(), challenge.ID, pkglogger.TelemetryFields{
		ScreenResolution:    telemetry.ScreenResolution,
		TimezoneOffsetMin:   telemetry.TimezoneOffsetMin,
		CanvasHash:          telemetry.CanvasHash,
		WebGLRenderer:       telemetry.WebGLRenderer,
		DeviceMemoryGB:      telemetry.DeviceMemoryGB,
		HardwareConcurrency: telemetry.HardwareConcurrency,
		SolveTimeMs:         telemetry.SolveTimeMs,
		RenderTimeMs:        telemetry.RenderTimeMs,
	})

	if challenge.Difficulty >= 4 && telemetry.SolveTimeMs > 0 && telemetry.SolveTimeMs < implausibleSolveMs {
		s.logger.Warn("implausibly fast solve",
			slog.String("challenge_id", challenge.ID),
			slog.String("identity", identity.Key()),
			slog.Int("difficulty", challenge.Difficulty),
			slog.Int64("solve_time_ms", telemetry.SolveTimeMs))
	}
}

// A difficulty-4 search averages ~32k hashes; anything under this came from
// a very lucky guess or a client lying about its timings.
const implausibleSolveMs = 5

// hashAnswer computes the keyed hash stored in place of an arithmetic
// answer. The challenge id acts as the per-challenge salt.
func (s *ChallengeService) hashAnswer(challengeID, answer string) string {
	mac := hmac.New(sha256.New, []byte(s.config.Secret))
	mac.Write([]byte(challengeID + ":" + answer))
	return hex.EncodeToString(mac.Sum(nil))
}

// generateArithmetic draws two random operands and an operator, returning
// the human-readable question and the expected answer. Subtraction keeps
// the result non-negative.
func generateArithmetic() (question, answer string, err error) {
	a, err := cryptoRandIntn(20)
	if err != nil {
		return "", "", err
	}
	b, err := cryptoRandIntn(20)
	if err != nil {
		return "", "", err
	}
	op, err := cryptoRandIntn(3)
	if err != nil {
		return "", "", err
	}
	a, b = a+1, b+1

	var symbol string
	var result int
	switch op {
	case 0:
		symbol, result = "+", a+b
	case 1:
		if a < b {
			a, b = b, a
		}
		symbol, result = "-", a-b
	default:
		symbol, result = "*", a*b
	}

	return fmt.Sprintf("What is %d %s %d?", a, symbol, b), strconv.Itoa(result), nil
}

// randomSeed returns an unguessable seed string for proof-of-work.
func randomSeed() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
// Uses crypto/rand instead of math/rand for security-sensitive operations
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}
