package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-validation-32-chars!"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(sub string) Claims {
	now := time.Now()
	return Claims{
		Email: "user@example.test",
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    "auth.example.test",
			Subject:   sub,
			ExpiresAt: gojwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  gojwt.NewNumericDate(now),
		},
	}
}

func TestValidateToken(t *testing.T) {
	t.Run("合法令牌返回声明", func(t *testing.T) {
		m := NewManager(testSecret, "auth.example.test")
		token := signToken(t, testSecret, validClaims("user-1"))

		claims, err := m.ValidateToken(token)

		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "user@example.test", claims.Email)
	})

	t.Run("签名密钥不匹配被拒绝", func(t *testing.T) {
		m := NewManager(testSecret, "")
		token := signToken(t, "another-secret-key-32-chars-long-xxxx", validClaims("user-1"))

		_, err := m.ValidateToken(token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌被拒绝", func(t *testing.T) {
		m := NewManager(testSecret, "")
		claims := validClaims("user-1")
		claims.ExpiresAt = gojwt.NewNumericDate(time.Now().Add(-time.Hour))
		token := signToken(t, testSecret, claims)

		_, err := m.ValidateToken(token)

		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("缺少用户标识被拒绝", func(t *testing.T) {
		m := NewManager(testSecret, "")
		token := signToken(t, testSecret, validClaims(""))

		_, err := m.ValidateToken(token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签发者不匹配被拒绝", func(t *testing.T) {
		m := NewManager(testSecret, "expected-issuer")
		token := signToken(t, testSecret, validClaims("user-1"))

		_, err := m.ValidateToken(token)

		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("垃圾字符串被拒绝", func(t *testing.T) {
		m := NewManager(testSecret, "")

		_, err := m.ValidateToken("not-a-jwt")

		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
