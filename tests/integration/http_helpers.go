package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/jdmarch/gauntlet/internal/config"
	"github.com/jdmarch/gauntlet/internal/database"
	"github.com/jdmarch/gauntlet/internal/handlers"
	middlewareCustom "github.com/jdmarch/gauntlet/internal/middleware"
	"github.com/jdmarch/gauntlet/internal/routes"
	"github.com/jdmarch/gauntlet/internal/services"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
	pkglogger "github.com/jdmarch/gauntlet/pkg/logger"
)

// TestAdminToken guards the admin routes on the test server.
const TestAdminToken = "integration-admin-token"

// TestReporterToken guards attempt reporting on the test server.
const TestReporterToken = "integration-reporter-token"

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Config *config.Config

	// Dependency references for inspection in tests
	Tokens *auth.TokenManager
	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server against a real database,
// wired the same way main wires production.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
			// The test client connects over loopback, so trusting it lets
			// scenarios pin identities via X-Real-IP through the same gated
			// extractor production uses.
			TrustedProxies: []string{"127.0.0.0/8"},
		},
		Security: config.SecurityConfig{
			Secret:            "integration-secret-32-chars-long",
			AdminToken:        TestAdminToken,
			ReporterToken:     TestReporterToken,
			ChallengeTTL:      5 * time.Minute,
			FailureWindow:     24 * time.Hour,
			ClearanceTokenTTL: 2 * time.Minute,
			BackoffBase:       1 * time.Second,
			CleanupInterval:   1 * time.Hour,
		},
	}

	challengeRepo, failureRepo := InitializeRepositories(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	threatService := services.NewThreatService(failureRepo, services.ThreatConfig{
		FailureWindow: cfg.Security.FailureWindow,
	}, logger)

	lockoutService := services.NewLockoutService(threatService,
		services.DefaultLockoutConfig(cfg.Security.BackoffBase), logger)

	challengeService := services.NewChallengeService(challengeRepo, threatService, services.ChallengeConfig{
		TTL:    cfg.Security.ChallengeTTL,
		Secret: cfg.Security.Secret,
	}, logger, auditLogger)

	tokenManager := auth.NewTokenManager(cfg.Security.Secret, cfg.Security.ClearanceTokenTTL)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	asrHandler := handlers.NewASRHandler(threatService, challengeService, lockoutService, tokenManager, ipConfig, auditLogger, logger)
	adminHandler := handlers.NewAdminHandler(threatService, lockoutService, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, asrHandler, adminHandler, ipConfig,
		cfg.Security.AdminToken, cfg.Security.ReporterToken)

	server := httptest.NewServer(r)

	return &TestServer{
		Server: server,
		DB:     db,
		Config: cfg,
		Tokens: tokenManager,
		logger: logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// AdminRequest makes a request carrying the admin bearer token
func (ts *TestServer) AdminRequest(method, path string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + TestAdminToken,
	}
	return ts.Request(method, path, body, headers)
}

// ReporterRequest makes a request carrying the reporter bearer token plus
// any extra headers, the way a credential endpoint reports outcomes.
func (ts *TestServer) ReporterRequest(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	merged := map[string]string{
		"Authorization": "Bearer " + TestReporterToken,
	}
	for key, value := range headers {
		merged[key] = value
	}
	return ts.Request(method, path, body, merged)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
