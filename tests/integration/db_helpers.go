package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jdmarch/gauntlet/internal/database"
	"github.com/jdmarch/gauntlet/internal/repositories"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gauntlet"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a database/sql connection; bridge it from the pgx config
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"challenges",
		"failure_records",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from database wrapper
func InitializeRepositories(db *database.DB) (
	*repositories.ChallengeRepository,
	*repositories.FailureRecordRepository,
) {
	return repositories.NewChallengeRepository(db),
		repositories.NewFailureRecordRepository(db)
}

// SeedFailures inserts a failure record with the given count directly, so
// tests can start an identity at any point on the escalation ladder.
func SeedFailures(ctx context.Context, pool *pgxpool.Pool, identityKey string, count int) error {
	query := `
		INSERT INTO failure_records (identity_key, count, window_start, last_failure_at, expires_at)
		VALUES ($1, $2, NOW(), NOW(), NOW() + INTERVAL '24 hours')
		ON CONFLICT (identity_key) DO UPDATE SET
			count = $2,
			last_failure_at = NOW(),
			expires_at = NOW() + INTERVAL '24 hours'
	`

	if _, err := pool.Exec(ctx, query, identityKey, count); err != nil {
		return fmt.Errorf("failed to seed failure record: %w", err)
	}
	return nil
}

// ExpireChallenge backdates a challenge's TTL so it reads as expired.
func ExpireChallenge(ctx context.Context, pool *pgxpool.Pool, challengeID string) error {
	query := `UPDATE challenges SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`

	tag, err := pool.Exec(ctx, query, challengeID)
	if err != nil {
		return fmt.Errorf("failed to expire challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no challenge with id %s", challengeID)
	}
	return nil
}
