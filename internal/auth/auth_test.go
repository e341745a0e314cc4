package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagami-ai/kagami/internal/auth"
)

func TestIssueAndValidateToken(t *testing.T) {
	m, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, exp, err := m.IssueToken()
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner", claims.Subject)
	assert.Equal(t, "kagami", claims.Issuer)
	assert.Equal(t, "api_key", claims.IssuedVia)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	_, err = m.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	issuer, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	verifier, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.IssueToken()
	require.NoError(t, err)

	// A token signed by a different key pair fails validation.
	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m, err := auth.NewJWTManager("", "", -time.Minute)
	require.NoError(t, err)

	token, _, err := m.IssueToken()
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("sk-kagami-test-key")
	require.NoError(t, err)
	assert.Contains(t, hash, "$")

	ok, err := auth.VerifyAPIKey("sk-kagami-test-key", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashAPIKeyUniqueSalts(t *testing.T) {
	h1, err := auth.HashAPIKey("same-key")
	require.NoError(t, err)
	h2, err := auth.HashAPIKey("same-key")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyAPIKeyMalformedHash(t *testing.T) {
	_, err := auth.VerifyAPIKey("key", "no-dollar-separator")
	assert.Error(t, err)

	_, err = auth.VerifyAPIKey("key", "!!!$###")
	assert.Error(t, err)
}
