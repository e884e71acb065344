package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Security SecurityConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

// SecurityConfig holds the knobs of the challenge layer itself.
type SecurityConfig struct {
	// Secret keys the arithmetic answer hashes and signs clearance tokens.
	Secret string
	// AdminToken guards the manual-intervention endpoints.
	AdminToken string
	// ReporterToken guards attempt reporting. Only the credential endpoints
	// may feed outcomes into the tracker; an open reporter would let a
	// blocked client halve its own count with fabricated successes.
	ReporterToken string

	ChallengeTTL      time.Duration // lifetime of an issued challenge
	FailureWindow     time.Duration // inactivity window before counters expire
	ClearanceTokenTTL time.Duration // lifetime of the post-verification token
	BackoffBase       time.Duration // base of the exponential lockout curve
	CleanupInterval   time.Duration // how often expired rows are reclaimed
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	secret := getEnv("GAUNTLET_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("GAUNTLET_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "gauntlet"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: parseTrustedProxies(),
		},
		Security: SecurityConfig{
			Secret:            secret,
			AdminToken:        getEnv("ADMIN_TOKEN", ""),
			ReporterToken:     getEnv("REPORTER_TOKEN", ""),
			ChallengeTTL:      getEnvAsDuration("CHALLENGE_TTL", 5*time.Minute),
			FailureWindow:     getEnvAsDuration("FAILURE_WINDOW", 24*time.Hour),
			ClearanceTokenTTL: getEnvAsDuration("CLEARANCE_TOKEN_TTL", 2*time.Minute),
			BackoffBase:       getEnvAsDuration("BACKOFF_BASE", 1*time.Second),
			CleanupInterval:   getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret(secret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecret enforces minimum strength for the service secret; it keys
// answer hashes and signs clearance tokens, so a guessable value breaks both.
func validateSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("GAUNTLET_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("GAUNTLET_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseTrustedProxies() []string {
	raw := getEnv("TRUSTED_PROXIES", "")
	if raw == "" {
		return nil
	}
	proxies := strings.Split(raw, ",")
	for i, p := range proxies {
		proxies[i] = strings.TrimSpace(p)
	}
	return proxies
}
