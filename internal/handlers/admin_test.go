package handlers_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/jdmarch/gauntlet/internal/handlers"
	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAdminThreatService implements AdminThreatServiceInterface
type MockAdminThreatService struct {
	record   *models.FailureRecord
	err      error
	forgiven []string
}

func (m *MockAdminThreatService) GetRecord(ctx context.Context, identityKey string) (*models.FailureRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

func (m *MockAdminThreatService) Forgive(ctx context.Context, identityKey string) error {
	if m.err != nil {
		return m.err
	}
	m.forgiven = append(m.forgiven, identityKey)
	return nil
}

const adminTestToken = "admin-test-token"

func adminTestRouter(threat *MockAdminThreatService, lockout *MockLockoutService) chi.Router {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	handler := handlers.NewAdminHandler(threat, lockout, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearerToken(adminTestToken))
		r.Get("/v1/admin/identities/{key}", handler.GetIdentity)
		r.Delete("/v1/admin/identities/{key}", handler.ForgiveIdentity)
	})
	return r
}

func adminRequest(t *testing.T, router chi.Router, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminGetIdentity(t *testing.T) {
	now := time.Now().UTC()
	identityKey := models.Identity{IPAddress: "10.0.0.1", Account: "user@example.com"}.Key()
	threat := &MockAdminThreatService{record: &models.FailureRecord{
		IdentityKey:   identityKey,
		Count:         31,
		WindowStart:   now.Add(-time.Hour),
		LastFailureAt: now,
		ExpiresAt:     now.Add(23 * time.Hour),
	}}
	router := adminTestRouter(threat, &MockLockoutService{backoff: 2 * time.Second})

	path := "/v1/admin/identities/" + url.PathEscape(identityKey)
	w := adminRequest(t, router, http.MethodGet, path, adminTestToken)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.IdentityStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, identityKey, resp.IdentityKey)
	assert.Equal(t, 31, resp.FailureCount)
	assert.Equal(t, "blocked_short", resp.Tier)
	assert.Equal(t, int64(2), resp.RetryAfterSecs)
	assert.False(t, resp.BlockedForever)
}

func TestAdminGetIdentity_PermanentBlock(t *testing.T) {
	threat := &MockAdminThreatService{record: &models.FailureRecord{
		IdentityKey: "ip:10.0.0.1",
		Count:       150,
	}}
	router := adminTestRouter(threat, &MockLockoutService{backoff: 0})

	w := adminRequest(t, router, http.MethodGet, "/v1/admin/identities/ip%3A10.0.0.1", adminTestToken)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handlers.IdentityStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "blocked_permanent", resp.Tier)
	assert.True(t, resp.BlockedForever)
	assert.Zero(t, resp.RetryAfterSecs)
}

func TestAdminGetIdentity_NotFound(t *testing.T) {
	threat := &MockAdminThreatService{err: models.ErrNotFound}
	router := adminTestRouter(threat, &MockLockoutService{})

	w := adminRequest(t, router, http.MethodGet, "/v1/admin/identities/ip%3A10.0.0.1", adminTestToken)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminForgiveIdentity(t *testing.T) {
	threat := &MockAdminThreatService{record: &models.FailureRecord{}}
	router := adminTestRouter(threat, &MockLockoutService{})

	w := adminRequest(t, router, http.MethodDelete, "/v1/admin/identities/ip%3A10.0.0.1", adminTestToken)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"ip:10.0.0.1"}, threat.forgiven)
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	threat := &MockAdminThreatService{record: &models.FailureRecord{}}
	router := adminTestRouter(threat, &MockLockoutService{})

	w := adminRequest(t, router, http.MethodGet, "/v1/admin/identities/ip%3A10.0.0.1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = adminRequest(t, router, http.MethodGet, "/v1/admin/identities/ip%3A10.0.0.1", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Empty(t, threat.forgiven)
}
