package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	s := NewJWTService("gateway-secret", 12)
	tok, err := s.Generate("ab123")
	require.NoError(t, err)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "ab123", claims.CRSid())
}

func TestJWT_RejectsOtherSecret(t *testing.T) {
	tok, err := NewJWTService("one", 1).Generate("ab123")
	require.NoError(t, err)
	_, err = NewJWTService("two", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_Expired(t *testing.T) {
	s := NewJWTService("gateway-secret", 1)
	tok, err := s.Generate("ab123")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWT_EmptyPrincipal(t *testing.T) {
	_, err := NewJWTService("gateway-secret", 1).Generate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = NewJWTService("gateway-secret", 1).Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
