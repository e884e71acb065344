package logger

import (
	"context"
	"log/slog"
	"time"
)

// VerificationEvent records the outcome of one challenge verification.
type VerificationEvent struct {
	ChallengeID string
	Type        string
	IdentityKey string
	Outcome     string
	Difficulty  int
}

// AttemptEvent records a credential attempt outcome reported by a caller.
type AttemptEvent struct {
	IdentityKey string
	Success     bool
	Count       int
	Tier        string
}

// TelemetryFields mirrors the client-echoed signal set. Logged verbatim for
// offline tuning; nothing here is trusted or acted on.
type TelemetryFields struct {
	ScreenResolution    string
	TimezoneOffsetMin   int
	CanvasHash          string
	WebGLRenderer       string
	DeviceMemoryGB      int
	HardwareConcurrency int
	SolveTimeMs         int64
	RenderTimeMs        int64
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogVerification logs a challenge verification verdict
func (al *AuditLogger) LogVerification(event VerificationEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "verification"),
		slog.String("outcome", event.Outcome),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.ChallengeID != "" {
		attrs = append(attrs, slog.String("challenge_id", event.ChallengeID))
	}
	if event.Type != "" {
		attrs = append(attrs, slog.String("challenge_type", event.Type))
		attrs = append(attrs, slog.Int("difficulty", event.Difficulty))
	}
	if event.IdentityKey != "" {
		attrs = append(attrs, slog.String("identity", event.IdentityKey))
	}

	if event.Outcome == "verified" {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogAttempt logs a caller-reported credential attempt outcome
func (al *AuditLogger) LogAttempt(event AttemptEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "attempt"),
		slog.Bool("success", event.Success),
		slog.String("identity", event.IdentityKey),
		slog.Int("failure_count", event.Count),
		slog.String("tier", event.Tier),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogTelemetry logs client-echoed telemetry for an extended challenge.
func (al *AuditLogger) LogTelemetry(identityKey, challengeID string, fields TelemetryFields) {
	attrs := []slog.Attr{
		slog.String("audit_type", "telemetry"),
		slog.String("identity", identityKey),
		slog.String("challenge_id", challengeID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if fields.ScreenResolution != "" {
		attrs = append(attrs, slog.String("screen_resolution", fields.ScreenResolution))
	}
	if fields.TimezoneOffsetMin != 0 {
		attrs = append(attrs, slog.Int("timezone_offset_min", fields.TimezoneOffsetMin))
	}
	if fields.CanvasHash != "" {
		attrs = append(attrs, slog.String("canvas_hash", fields.CanvasHash))
	}
	if fields.WebGLRenderer != "" {
		attrs = append(attrs, slog.String("webgl_renderer", fields.WebGLRenderer))
	}
	if fields.DeviceMemoryGB != 0 {
		attrs = append(attrs, slog.Int("device_memory_gb", fields.DeviceMemoryGB))
	}
	if fields.HardwareConcurrency != 0 {
		attrs = append(attrs, slog.Int("hardware_concurrency", fields.HardwareConcurrency))
	}
	if fields.SolveTimeMs != 0 {
		attrs = append(attrs, slog.Int64("solve_time_ms", fields.SolveTimeMs))
	}
	if fields.RenderTimeMs != 0 {
		attrs = append(attrs, slog.Int64("render_time_ms", fields.RenderTimeMs))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
