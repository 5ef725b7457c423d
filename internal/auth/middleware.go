package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/examprep/practice-api/internal/api"
)

type contextKey string

const (
	UserClaimsKey contextKey = "user_claims"
	adminKey      contextKey = "is_admin"
)

func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := v.Validate(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), UserClaimsKey, claims)
			ctx = context.WithValue(ctx, adminKey, v.IsAdmin(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests whose session does not carry the admin role.
// It must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserClaims(r.Context())
		if claims == nil {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		if !IsAdmin(r.Context()) {
			slog.Warn("admin route denied",
				"requester", claims.UserID(),
				"path", r.URL.Path,
				"method", r.Method,
			)
			api.HandleError(w, api.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserClaims(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(UserClaimsKey).(*SessionClaims)
	return claims
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}

// WithClaims returns ctx carrying claims, as Middleware would.
func WithClaims(ctx context.Context, claims *SessionClaims, admin bool) context.Context {
	ctx = context.WithValue(ctx, UserClaimsKey, claims)
	return context.WithValue(ctx, adminKey, admin)
}

// ResolveUserID returns the user a request acts on: the caller when
// requested is empty or equal to the caller, any user for admins.
func ResolveUserID(ctx context.Context, requested string) (string, error) {
	claims := GetUserClaims(ctx)
	if claims == nil {
		return "", api.ErrUnauthorized
	}
	if requested == "" || requested == claims.UserID() {
		return claims.UserID(), nil
	}
	if IsAdmin(ctx) {
		return requested, nil
	}
	return "", api.ErrForbidden
}
