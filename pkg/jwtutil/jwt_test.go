package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "k", ExpirationHours: 1})

	token, err := util.GenerateToken("a@b.com", 7, "admin")
	require.NoError(t, err)

	claims, err := util.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, uint(7), claims.UserID)
	assert.True(t, claims.IsAdmin())
}

func TestValidateToken_Rejects(t *testing.T) {
	util := NewJWTUtil(&JWTConfig{SigningKey: "k", ExpirationHours: 1})

	other, err := NewJWTUtil(&JWTConfig{SigningKey: "other", ExpirationHours: 1}).GenerateToken("a@b.com", 1, "user")
	require.NoError(t, err)

	expired := NewJWTUtil(&JWTConfig{SigningKey: "k", ExpirationHours: 1})
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := expired.GenerateToken("a@b.com", 1, "user")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, UserClaims{Email: "a@b.com"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong key", other},
		{"expired", stale},
		{"none algorithm", none},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := util.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestMissingConfig(t *testing.T) {
	util := NewJWTUtil(nil)
	_, err := util.GenerateToken("a@b.com", 1, "user")
	assert.Error(t, err)
	_, err = util.ValidateToken("x")
	assert.Error(t, err)
}
