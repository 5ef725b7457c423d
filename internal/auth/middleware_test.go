package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examprep/practice-api/internal/api"
)

func protected(v *Verifier, inner http.Handler) http.Handler {
	return Middleware(v)(inner)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier(testSecret, "", "admin")

	var gotUser string
	var gotAdmin bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserClaims(r.Context()).UserID()
		gotAdmin = IsAdmin(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		protected(v, inner).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not bearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		rec := httptest.NewRecorder()
		protected(v, inner).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Issue("user_42", "admin", time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected(v, inner).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user_42", gotUser)
		assert.True(t, gotAdmin)
	})
}

func TestRequireAdmin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	claims := &SessionClaims{}
	claims.Subject = "user_1"

	cases := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"no claims", context.Background(), http.StatusUnauthorized},
		{"not admin", WithClaims(context.Background(), claims, false), http.StatusForbidden},
		{"admin", WithClaims(context.Background(), claims, true), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("DELETE", "/api/v1/retake-limit", nil).WithContext(tc.ctx)
			rec := httptest.NewRecorder()
			RequireAdmin(inner).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestResolveUserID(t *testing.T) {
	claims := &SessionClaims{}
	claims.Subject = "user_1"

	_, err := ResolveUserID(context.Background(), "")
	assert.ErrorIs(t, err, api.ErrUnauthorized)

	user := WithClaims(context.Background(), claims, false)
	id, err := ResolveUserID(user, "")
	require.NoError(t, err)
	assert.Equal(t, "user_1", id)

	id, err = ResolveUserID(user, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", id)

	_, err = ResolveUserID(user, "user_2")
	assert.ErrorIs(t, err, api.ErrForbidden)

	admin := WithClaims(context.Background(), claims, true)
	id, err = ResolveUserID(admin, "user_2")
	require.NoError(t, err)
	assert.Equal(t, "user_2", id)
}
