package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/jdmarch/gauntlet/internal/services"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
	pkglogger "github.com/jdmarch/gauntlet/pkg/logger"
)

// How long callers are told to wait when storage is down. The layer fails
// closed: an unavailable abuse gate must never become a bypass.
const failClosedRetrySecs = 30

// ThreatServiceInterface defines the interface for threat tracking
type ThreatServiceInterface interface {
	GetTier(ctx context.Context, identity models.Identity) (models.ThreatTier, *models.FailureRecord, error)
	RecordFailure(ctx context.Context, identity models.Identity) (*models.FailureRecord, error)
	RecordSuccess(ctx context.Context, identity models.Identity) (*models.FailureRecord, error)
}

// ChallengeServiceInterface defines the interface for challenge issuance and verification
type ChallengeServiceInterface interface {
	Issue(ctx context.Context, tier models.ThreatTier, identity models.Identity, failureCount int) (*services.IssuedChallenge, error)
	Verify(ctx context.Context, challengeID string, identity models.Identity, solution string, telemetry models.Telemetry) (*models.VerifyResult, error)
}

// LockoutServiceInterface defines the interface for the lockout manager
type LockoutServiceInterface interface {
	BackoffFor(record *models.FailureRecord) time.Duration
}

// ASRHandler handles the adaptive security response endpoints
type ASRHandler struct {
	threat    ThreatServiceInterface
	challenge ChallengeServiceInterface
	lockout   LockoutServiceInterface
	tokens    *auth.TokenManager
	ipConfig  *pkghttp.IPConfig
	audit     *pkglogger.AuditLogger
	logger    *slog.Logger
}

// NewASRHandler creates a new ASRHandler
func NewASRHandler(
	threat ThreatServiceInterface,
	challenge ChallengeServiceInterface,
	lockout LockoutServiceInterface,
	tokens *auth.TokenManager,
	ipConfig *pkghttp.IPConfig,
	audit *pkglogger.AuditLogger,
	logger *slog.Logger,
) *ASRHandler {
	return &ASRHandler{
		threat:    threat,
		challenge: challenge,
		lockout:   lockout,
		tokens:    tokens,
		ipConfig:  ipConfig,
		audit:     audit,
		logger:    logger,
	}
}

// Request DTOs

// AssessRequest carries the optional identity signals for an assessment
type AssessRequest struct {
	Account     string `json:"account,omitempty" validate:"omitempty,max=320"`
	Fingerprint string `json:"fingerprint,omitempty" validate:"omitempty,max=128"`
}

// VerifyRequest carries a challenge solution
type VerifyRequest struct {
	Solution    string           `json:"solution" validate:"required,max=256"`
	Account     string           `json:"account,omitempty" validate:"omitempty,max=320"`
	Fingerprint string           `json:"fingerprint,omitempty" validate:"omitempty,max=128"`
	Telemetry   models.Telemetry `json:"telemetry,omitempty"`
}

// AttemptRequest reports the outcome of the caller's own credential check
type AttemptRequest struct {
	Success     bool   `json:"success"`
	Account     string `json:"account,omitempty" validate:"omitempty,max=320"`
	Fingerprint string `json:"fingerprint,omitempty" validate:"omitempty,max=128"`
}

// Response DTOs

// ChallengeDTO is the wire form of an issued challenge
type ChallengeDTO struct {
	ChallengeID     string    `json:"challenge_id"`
	Type            string    `json:"type"`
	Difficulty      int       `json:"difficulty,omitempty"`
	Question        string    `json:"question,omitempty"`
	Seed            string    `json:"seed,omitempty"`
	ExpiresAt       time.Time `json:"expires_at"`
	TelemetryFields []string  `json:"telemetry_fields,omitempty"`
}

// AssessResponse tells the caller whether to demand a challenge
type AssessResponse struct {
	Required  bool          `json:"required"`
	Tier      string        `json:"tier"`
	Challenge *ChallengeDTO `json:"challenge,omitempty"`
}

// VerifyResponse reports a verification verdict
type VerifyResponse struct {
	Verified       bool   `json:"verified"`
	Outcome        string `json:"outcome"`
	Tier           string `json:"tier,omitempty"`
	ClearanceToken string `json:"clearance_token,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	RetryAfterSecs int64  `json:"retry_after_seconds,omitempty"`
}

// AttemptResponse reports the identity's state after a recorded attempt
type AttemptResponse struct {
	Tier         string `json:"tier"`
	FailureCount int    `json:"failure_count"`
}

// Assess evaluates an identity's threat tier and issues whatever challenge
// that tier demands. Blocked identities are rejected before any challenge
// is created.
func (h *ASRHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkghttp.WriteBadRequest(w, "invalid request body")
			return
		}
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity := h.identityFrom(r, req.Account, req.Fingerprint)

	tier, record, err := h.threat.GetTier(r.Context(), identity)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if tier.Blocked() {
		retry := h.lockout.BackoffFor(record)
		pkghttp.WriteBlocked(w, int64(retry/time.Second))
		return
	}

	issued, err := h.challenge.Issue(r.Context(), tier, identity, record.Count)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := AssessResponse{
		Required: issued.Type != models.ChallengeTypeNone,
		Tier:     string(tier),
	}
	if resp.Required {
		resp.Challenge = &ChallengeDTO{
			ChallengeID:     issued.ID,
			Type:            string(issued.Type),
			Difficulty:      issued.Difficulty,
			Question:        issued.Question,
			Seed:            issued.Seed,
			ExpiresAt:       issued.ExpiresAt,
			TelemetryFields: issued.TelemetryFields,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Verify judges a submitted solution. Exactly one call per challenge id can
// come back verified; winners receive a clearance token for the credential
// endpoint to validate.
func (h *ASRHandler) Verify(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "id")
	if challengeID == "" {
		pkghttp.WriteBadRequest(w, "challenge id is required")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity := h.identityFrom(r, req.Account, req.Fingerprint)

	result, err := h.challenge.Verify(r.Context(), challengeID, identity, req.Solution, req.Telemetry)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if result.Verified() {
		token, expiresAt, err := h.tokens.MintClearance(identity.Key(), challengeID)
		if err != nil {
			h.logger.Error("failed to mint clearance token", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "failed to issue clearance")
			return
		}

		writeJSON(w, http.StatusOK, VerifyResponse{
			Verified:       true,
			Outcome:        string(models.OutcomeVerified),
			Tier:           string(result.Record.Tier()),
			ClearanceToken: token,
			ExpiresAt:      expiresAt.Format(time.RFC3339),
		})
		return
	}

	resp := VerifyResponse{
		Verified: false,
		Outcome:  string(result.Outcome),
		Tier:     string(result.Record.Tier()),
	}
	// A failed verification may have tipped the identity into a blocked
	// tier; tell the caller how long before requests are accepted again.
	if result.Record.Tier().Blocked() {
		resp.RetryAfterSecs = int64(h.lockout.BackoffFor(result.Record) / time.Second)
	}

	writeJSON(w, statusForOutcome(result.Outcome), resp)
}

// ReportAttempt lets the calling endpoint feed real credential outcomes
// back into the tracker, so escalation reflects actual login failures and
// not just challenge activity.
func (h *ASRHandler) ReportAttempt(w http.ResponseWriter, r *http.Request) {
	var req AttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "invalid request body")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identity := h.identityFrom(r, req.Account, req.Fingerprint)

	var record *models.FailureRecord
	var err error
	if req.Success {
		record, err = h.threat.RecordSuccess(r.Context(), identity)
	} else {
		record, err = h.threat.RecordFailure(r.Context(), identity)
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	tier := record.Tier()
	h.audit.LogAttempt(pkglogger.AttemptEvent{
		IdentityKey: identity.Key(),
		Success:     req.Success,
		Count:       record.Count,
		Tier:        string(tier),
	})

	writeJSON(w, http.StatusOK, AttemptResponse{
		Tier:         string(tier),
		FailureCount: record.Count,
	})
}

// identityFrom builds the composite identity from the request's network
// origin and the optional caller-supplied signals.
func (h *ASRHandler) identityFrom(r *http.Request, account, fingerprint string) models.Identity {
	return models.Identity{
		IPAddress:   pkghttp.ExtractClientIP(r, h.ipConfig),
		Account:     account,
		Fingerprint: fingerprint,
	}
}

// respondServiceError maps service errors to responses. Storage faults fail
// closed as a short block; anything else is a plain internal error.
func (h *ASRHandler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrStorageUnavailable) {
		h.logger.Error("storage unavailable, failing closed", slog.Any("error", err))
		pkghttp.WriteBlocked(w, failClosedRetrySecs)
		return
	}

	h.logger.Error("request failed", slog.Any("error", err))
	pkghttp.WriteInternalError(w, "internal error")
}

// statusForOutcome maps routine verification failures onto HTTP statuses.
func statusForOutcome(outcome models.Outcome) int {
	switch outcome {
	case models.OutcomeChallengeNotFound:
		return http.StatusNotFound
	case models.OutcomeChallengeUsed:
		return http.StatusConflict
	case models.OutcomeChallengeExpired, models.OutcomeIdentityMismatch, models.OutcomeInvalidSolution:
		return http.StatusBadRequest
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
