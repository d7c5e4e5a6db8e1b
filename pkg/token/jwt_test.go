package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)

	tok, err := m.GenerateToken(Subject{UserID: 7, Username: "anna", Role: "user", Organization: "Klinikum"})
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "anna", claims.Username)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "Klinikum", claims.Organization)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.InDelta(t, time.Hour.Seconds(), m.RemainingTTL(claims).Seconds(), 5)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	tok, err := NewJWTManager("one", 1, 1).GenerateToken(Subject{UserID: 1})
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1, 1).VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 1, 1)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := m.GenerateToken(Subject{UserID: 1})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherIssuer(t *testing.T) {
	claims := CustomClaims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager("secret", 1, 1).VerifyToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
