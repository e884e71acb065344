package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/jdmarch/gauntlet/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockoutService(repo services.ThreatRepository) *services.LockoutService {
	threat := newThreatService(repo)
	return services.NewLockoutService(threat, services.DefaultLockoutConfig(time.Second), testLogger())
}

func TestLockoutService_BackoffCurve(t *testing.T) {
	service := newLockoutService(NewMockThreatRepository())

	tests := []struct {
		name     string
		count    int
		expected time.Duration
	}{
		{"short tier floor", 30, 1 * time.Second},
		{"short tier doubles", 31, 2 * time.Second},
		{"short tier mid", 35, 32 * time.Second},
		{"short tier capped", 36, 60 * time.Second},
		{"short tier stays capped", 49, 60 * time.Second},
		{"long tier floor exceeds short cap", 50, 120 * time.Second},
		{"long tier doubles", 51, 240 * time.Second},
		{"long tier capped", 55, 1 * time.Hour},
		{"long tier stays capped", 99, 1 * time.Hour},
		{"permanent tier has no duration", 100, 0},
		{"permanent tier deep", 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &models.FailureRecord{Count: tt.count}
			assert.Equal(t, tt.expected, service.BackoffFor(record))
		})
	}
}

func TestLockoutService_BackoffNondecreasingUntilPermanent(t *testing.T) {
	service := newLockoutService(NewMockThreatRepository())

	prev := time.Duration(0)
	for count := 30; count < 100; count++ {
		d := service.BackoffFor(&models.FailureRecord{Count: count})
		assert.GreaterOrEqual(t, d, prev, "backoff regressed at count %d", count)
		prev = d
	}
}

func TestLockoutService_RetryAfterBelowBlockedTiers(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newLockoutService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "192.168.1.1"}

	for i := 0; i < 29; i++ {
		_, err := repo.RecordFailure(ctx, identity.Key(), 24*time.Hour)
		require.NoError(t, err)
	}

	retry, blocked, err := service.RetryAfter(ctx, identity)
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Zero(t, retry)
}

func TestLockoutService_RetryAfterBlockedShort(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newLockoutService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "192.168.1.1"}

	for i := 0; i < 31; i++ {
		_, err := repo.RecordFailure(ctx, identity.Key(), 24*time.Hour)
		require.NoError(t, err)
	}

	retry, blocked, err := service.RetryAfter(ctx, identity)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, 2*time.Second, retry)
}

func TestLockoutService_RetryAfterPermanent(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newLockoutService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "192.168.1.1"}

	for i := 0; i < 100; i++ {
		_, err := repo.RecordFailure(ctx, identity.Key(), 24*time.Hour)
		require.NoError(t, err)
	}

	retry, blocked, err := service.RetryAfter(ctx, identity)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Zero(t, retry, "permanent blocks carry no retry hint")
}

func TestLockoutService_RetryAfterUnknownIdentity(t *testing.T) {
	service := newLockoutService(NewMockThreatRepository())

	retry, blocked, err := service.RetryAfter(context.Background(), models.Identity{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Zero(t, retry)
}

func TestLockoutService_StorageErrorPropagates(t *testing.T) {
	repo := NewMockThreatRepository()
	repo.failErr = models.ErrStorageUnavailable
	service := newLockoutService(repo)

	_, _, err := service.RetryAfter(context.Background(), models.Identity{IPAddress: "10.0.0.1"})
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
