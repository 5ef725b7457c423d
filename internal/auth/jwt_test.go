package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "identity-secret-32-chars-long!!!!"

func TestVerifier_IssueAndValidate(t *testing.T) {
	v := NewVerifier(testSecret, "https://id.example.com", "admin")

	t.Run("issue and validate session token", func(t *testing.T) {
		token, err := v.Issue("user_123", "", 15*time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		claims, err := v.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "user_123", claims.UserID())
		assert.False(t, v.IsAdmin(claims))
	})

	t.Run("admin role", func(t *testing.T) {
		token, err := v.Issue("user_admin", "admin", 15*time.Minute)
		require.NoError(t, err)

		claims, err := v.Validate(token)
		require.NoError(t, err)
		assert.True(t, v.IsAdmin(claims))
	})

	t.Run("invalid token fails validation", func(t *testing.T) {
		_, err := v.Validate("invalid-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret fails", func(t *testing.T) {
		other := NewVerifier("another-secret-that-is-32-chars!!", "https://id.example.com", "admin")
		token, err := other.Issue("user_1", "", time.Minute)
		require.NoError(t, err)

		_, err = v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong issuer fails", func(t *testing.T) {
		other := NewVerifier(testSecret, "https://evil.example.com", "admin")
		token, err := other.Issue("user_1", "", time.Minute)
		require.NoError(t, err)

		_, err = v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		token, err := v.Issue("user_exp", "", -1*time.Second)
		require.NoError(t, err)

		_, err = v.Validate(token)
		assert.Error(t, err)
	})

	t.Run("empty subject fails", func(t *testing.T) {
		token, err := v.Issue("", "", time.Minute)
		require.NoError(t, err)

		_, err = v.Validate(token)
		assert.Error(t, err)
	})
}
