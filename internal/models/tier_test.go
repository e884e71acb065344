package models_test

import (
	"testing"

	"github.com/jdmarch/gauntlet/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTierForCount_Boundaries(t *testing.T) {
	cases := []struct {
		count int
		tier  models.ThreatTier
	}{
		{0, models.TierNone},
		{2, models.TierNone},
		{3, models.TierLight},
		{4, models.TierLight},
		{5, models.TierModerate},
		{9, models.TierModerate},
		{10, models.TierElevated},
		{14, models.TierElevated},
		{15, models.TierHigh},
		{19, models.TierHigh},
		{20, models.TierSevere},
		{29, models.TierSevere},
		{30, models.TierBlockedShort},
		{49, models.TierBlockedShort},
		{50, models.TierBlockedLong},
		{99, models.TierBlockedLong},
		{100, models.TierBlockedPermanent},
		{5000, models.TierBlockedPermanent},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.tier, models.TierForCount(tc.count), "count=%d", tc.count)
	}
}

func TestTierForCount_NondecreasingStepFunction(t *testing.T) {
	order := map[models.ThreatTier]int{
		models.TierNone:             0,
		models.TierLight:            1,
		models.TierModerate:         2,
		models.TierElevated:         3,
		models.TierHigh:             4,
		models.TierSevere:           5,
		models.TierBlockedShort:     6,
		models.TierBlockedLong:      7,
		models.TierBlockedPermanent: 8,
	}

	prev := 0
	for count := 0; count <= 200; count++ {
		cur := order[models.TierForCount(count)]
		assert.GreaterOrEqual(t, cur, prev, "tier regressed at count=%d", count)
		prev = cur
	}
}

func TestThreatTier_Blocked(t *testing.T) {
	assert.False(t, models.TierNone.Blocked())
	assert.False(t, models.TierSevere.Blocked())
	assert.True(t, models.TierBlockedShort.Blocked())
	assert.True(t, models.TierBlockedLong.Blocked())
	assert.True(t, models.TierBlockedPermanent.Blocked())
}

func TestThreatTier_ChallengeType(t *testing.T) {
	assert.Equal(t, models.ChallengeTypeNone, models.TierNone.ChallengeType())
	assert.Equal(t, models.ChallengeTypeArithmetic, models.TierLight.ChallengeType())
	assert.Equal(t, models.ChallengeTypeProofOfWork, models.TierModerate.ChallengeType())
	assert.Equal(t, models.ChallengeTypeProofOfWorkExtended, models.TierElevated.ChallengeType())
	assert.Equal(t, models.ChallengeTypeProofOfWorkExtended, models.TierHigh.ChallengeType())
	assert.Equal(t, models.ChallengeTypeProofOfWorkExtended, models.TierSevere.ChallengeType())
	assert.Equal(t, models.ChallengeTypeNone, models.TierBlockedShort.ChallengeType())
}

func TestDifficultyForCount_ModerateBandScales(t *testing.T) {
	assert.Equal(t, 3, models.DifficultyForCount(5))
	assert.Equal(t, 4, models.DifficultyForCount(6))
	assert.Equal(t, 5, models.DifficultyForCount(7))
	assert.Equal(t, 6, models.DifficultyForCount(8))
	assert.Equal(t, 6, models.DifficultyForCount(9)) // capped

	// Extended bands are fixed
	assert.Equal(t, 3, models.DifficultyForCount(12))
	assert.Equal(t, 4, models.DifficultyForCount(17))
	assert.Equal(t, 5, models.DifficultyForCount(25))
}

func TestDifficultyForCount_ModerateStaysInBounds(t *testing.T) {
	for count := 5; count <= 9; count++ {
		d := models.DifficultyForCount(count)
		assert.GreaterOrEqual(t, d, 3)
		assert.LessOrEqual(t, d, 6)
	}
}

func TestIdentityKey_Composition(t *testing.T) {
	bare := models.Identity{IPAddress: "10.0.0.1"}
	assert.Equal(t, "ip:10.0.0.1", bare.Key())

	full := models.Identity{IPAddress: "10.0.0.1", Account: "User@Example.com", Fingerprint: "fp-abc"}
	assert.Contains(t, full.Key(), "ip:10.0.0.1")
	assert.Contains(t, full.Key(), "fp:fp-abc")
	assert.NotContains(t, full.Key(), "User@Example.com", "raw account must never appear in the key")

	// Account hashing is case-insensitive
	a := models.Identity{IPAddress: "10.0.0.1", Account: "user@example.com"}
	b := models.Identity{IPAddress: "10.0.0.1", Account: "USER@EXAMPLE.COM"}
	assert.Equal(t, a.Key(), b.Key())
}
