package services_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/jdmarch/gauntlet/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockThreatRepository implements ThreatRepository for testing, mirroring
// the atomic semantics of the SQL implementation.
type MockThreatRepository struct {
	mu      sync.Mutex
	records map[string]*models.FailureRecord
	failErr error
}

func NewMockThreatRepository() *MockThreatRepository {
	return &MockThreatRepository{
		records: make(map[string]*models.FailureRecord),
	}
}

func (m *MockThreatRepository) RecordFailure(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r, ok := m.records[identityKey]
	if !ok || !r.ExpiresAt.After(now) {
		r = &models.FailureRecord{IdentityKey: identityKey, WindowStart: now}
		m.records[identityKey] = r
		r.Count = 0
	}
	r.Count++
	r.LastFailureAt = now
	r.ExpiresAt = now.Add(window)

	copy := *r
	return &copy, nil
}

func (m *MockThreatRepository) RecordSuccess(ctx context.Context, identityKey string, window time.Duration) (*models.FailureRecord, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	r, ok := m.records[identityKey]
	if !ok || !r.ExpiresAt.After(now) {
		return &models.FailureRecord{IdentityKey: identityKey}, nil
	}
	r.Count = r.Count / 2
	r.ExpiresAt = now.Add(window)

	copy := *r
	return &copy, nil
}

func (m *MockThreatRepository) Get(ctx context.Context, identityKey string) (*models.FailureRecord, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[identityKey]
	if !ok || !r.ExpiresAt.After(time.Now()) {
		return nil, models.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

func (m *MockThreatRepository) Delete(ctx context.Context, identityKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[identityKey]; !ok {
		return models.ErrNotFound
	}
	delete(m.records, identityKey)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newThreatService(repo services.ThreatRepository) *services.ThreatService {
	return services.NewThreatService(repo, services.ThreatConfig{FailureWindow: 24 * time.Hour}, testLogger())
}

func TestThreatService_FailuresEscalateTier(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "192.168.1.1"}

	tier, record, err := service.GetTier(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, models.TierNone, tier)
	assert.Equal(t, 0, record.Count)

	for i := 0; i < 6; i++ {
		_, err := service.RecordFailure(ctx, identity)
		require.NoError(t, err)
	}

	tier, record, err = service.GetTier(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, models.TierModerate, tier)
	assert.Equal(t, 6, record.Count)
}

func TestThreatService_SuccessHalvesCount(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "192.168.1.1", Account: "user@example.com"}

	for i := 0; i < 9; i++ {
		_, err := service.RecordFailure(ctx, identity)
		require.NoError(t, err)
	}

	record, err := service.RecordSuccess(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 4, record.Count, "9 failures halved floor to 4")

	record, err = service.RecordSuccess(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 2, record.Count)
}

func TestThreatService_SuccessNeverIncreasesCount(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "10.0.0.9"}

	prev := 0
	for i := 0; i < 5; i++ {
		record, err := service.RecordFailure(ctx, identity)
		require.NoError(t, err)
		prev = record.Count
	}

	for i := 0; i < 10; i++ {
		record, err := service.RecordSuccess(ctx, identity)
		require.NoError(t, err)
		assert.LessOrEqual(t, record.Count, prev)
		assert.GreaterOrEqual(t, record.Count, 0, "count must never go negative")
		prev = record.Count
	}
	assert.Equal(t, 0, prev)
}

func TestThreatService_SuccessWithNoHistory(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)

	record, err := service.RecordSuccess(context.Background(), models.Identity{IPAddress: "10.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, 0, record.Count)
}

func TestThreatService_TierIsNondecreasingUnderFailures(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "10.2.2.2"}

	order := map[models.ThreatTier]int{
		models.TierNone: 0, models.TierLight: 1, models.TierModerate: 2,
		models.TierElevated: 3, models.TierHigh: 4, models.TierSevere: 5,
		models.TierBlockedShort: 6, models.TierBlockedLong: 7, models.TierBlockedPermanent: 8,
	}

	prev := 0
	for i := 0; i < 105; i++ {
		_, err := service.RecordFailure(ctx, identity)
		require.NoError(t, err)

		tier, _, err := service.GetTier(ctx, identity)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order[tier], prev)
		prev = order[tier]
	}
	assert.Equal(t, order[models.TierBlockedPermanent], prev)
}

func TestThreatService_ForgiveClearsRecord(t *testing.T) {
	repo := NewMockThreatRepository()
	service := newThreatService(repo)
	ctx := context.Background()
	identity := models.Identity{IPAddress: "10.3.3.3"}

	for i := 0; i < 120; i++ {
		_, err := service.RecordFailure(ctx, identity)
		require.NoError(t, err)
	}

	tier, _, err := service.GetTier(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, models.TierBlockedPermanent, tier)

	require.NoError(t, service.Forgive(ctx, identity.Key()))

	tier, record, err := service.GetTier(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, models.TierNone, tier)
	assert.Equal(t, 0, record.Count)
}

func TestThreatService_StorageErrorPropagates(t *testing.T) {
	repo := NewMockThreatRepository()
	repo.failErr = models.ErrStorageUnavailable
	service := newThreatService(repo)

	_, _, err := service.GetTier(context.Background(), models.Identity{IPAddress: "10.4.4.4"})
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
