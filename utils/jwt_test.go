package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTokenRoundTrip(t *testing.T) {
	validator := NewJWTValidator("test-secret")

	token, err := validator.GenerateToken(42, "tester", time.Hour)
	require.NoError(t, err)

	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "tester", claims.Username)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTValidator("secret-a").GenerateToken(42, "tester", time.Hour)
	require.NoError(t, err)

	_, err = NewJWTValidator("secret-b").ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	validator := NewJWTValidator("test-secret")

	token, err := validator.GenerateToken(42, "tester", -time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, err := NewJWTValidator("test-secret").ValidateToken("not.a.jwt")
	assert.Error(t, err)
}
