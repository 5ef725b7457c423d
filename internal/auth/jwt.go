package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by session tokens minted by the
// identity provider. Subject is the user id.
type SessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// Verifier validates HS256 session tokens with the secret shared with the
// identity provider.
type Verifier struct {
	secret    []byte
	issuer    string
	adminRole string
}

func NewVerifier(secret, issuer, adminRole string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		issuer:    issuer,
		adminRole: adminRole,
	}
}

// Issue signs a session token. The identity provider mints tokens in
// production; this is used by tests and local tooling.
func (v *Verifier) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

func (v *Verifier) Validate(tokenStr string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session token has no subject")
	}

	return claims, nil
}

// IsAdmin reports whether claims carry the configured admin role.
func (v *Verifier) IsAdmin(claims *SessionClaims) bool {
	return claims != nil && v.adminRole != "" && claims.Role == v.adminRole
}
