package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jdmarch/gauntlet/internal/models"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
)

// AdminThreatServiceInterface defines the admin operations on threat state
type AdminThreatServiceInterface interface {
	GetRecord(ctx context.Context, identityKey string) (*models.FailureRecord, error)
	Forgive(ctx context.Context, identityKey string) error
}

// AdminHandler handles manual-intervention endpoints
type AdminHandler struct {
	threat  AdminThreatServiceInterface
	lockout LockoutServiceInterface
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(threat AdminThreatServiceInterface, lockout LockoutServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		threat:  threat,
		lockout: lockout,
		logger:  logger,
	}
}

// IdentityStateResponse describes an identity's current abuse state
type IdentityStateResponse struct {
	IdentityKey     string `json:"identity_key"`
	FailureCount    int    `json:"failure_count"`
	Tier            string `json:"tier"`
	WindowStart     string `json:"window_start"`
	LastFailureAt   string `json:"last_failure_at"`
	ExpiresAt       string `json:"expires_at"`
	RetryAfterSecs  int64  `json:"retry_after_seconds,omitempty"`
	BlockedForever  bool   `json:"blocked_forever,omitempty"`
}

// GetIdentity returns the failure record and derived state for an identity key.
func (h *AdminHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		pkghttp.WriteBadRequest(w, "invalid identity key")
		return
	}

	record, err := h.threat.GetRecord(r.Context(), key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "no failure record for identity")
			return
		}
		h.logger.Error("failed to load identity record", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal error")
		return
	}

	tier := record.Tier()
	resp := IdentityStateResponse{
		IdentityKey:   record.IdentityKey,
		FailureCount:  record.Count,
		Tier:          string(tier),
		WindowStart:   record.WindowStart.Format(time.RFC3339),
		LastFailureAt: record.LastFailureAt.Format(time.RFC3339),
		ExpiresAt:     record.ExpiresAt.Format(time.RFC3339),
	}
	if tier.Blocked() {
		retry := h.lockout.BackoffFor(record)
		if retry == 0 {
			resp.BlockedForever = true
		} else {
			resp.RetryAfterSecs = int64(retry / time.Second)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ForgiveIdentity clears an identity's failure record. The only way out of
// a permanent block.
func (h *AdminHandler) ForgiveIdentity(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		pkghttp.WriteBadRequest(w, "invalid identity key")
		return
	}

	if err := h.threat.Forgive(r.Context(), key); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "no failure record for identity")
			return
		}
		h.logger.Error("failed to clear identity record", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
