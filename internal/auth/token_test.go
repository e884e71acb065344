package auth_test

import (
	"testing"
	"time"

	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

func TestMintAndValidateClearance(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 2*time.Minute)

	token, expiresAt, err := tm.MintClearance("ip:10.0.0.1", "challenge-123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := tm.ValidateClearance(token, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "ip:10.0.0.1", claims.IdentityKey)
	assert.Equal(t, "challenge-123", claims.ChallengeID)
	assert.Equal(t, "gauntlet", claims.Issuer)
}

func TestValidateClearance_WrongIdentity(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 2*time.Minute)

	token, _, err := tm.MintClearance("ip:10.0.0.1", "challenge-123")
	require.NoError(t, err)

	_, err = tm.ValidateClearance(token, "ip:10.0.0.2")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateClearance_WrongSecret(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 2*time.Minute)
	other := auth.NewTokenManager("another-secret-32-characters-ok!", 2*time.Minute)

	token, _, err := tm.MintClearance("ip:10.0.0.1", "challenge-123")
	require.NoError(t, err)

	_, err = other.ValidateClearance(token, "ip:10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateClearance_Expired(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, -1*time.Minute)

	token, _, err := tm.MintClearance("ip:10.0.0.1", "challenge-123")
	require.NoError(t, err)

	_, err = tm.ValidateClearance(token, "ip:10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestValidateClearance_Garbage(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, 2*time.Minute)

	_, err := tm.ValidateClearance("not-a-token", "ip:10.0.0.1")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
