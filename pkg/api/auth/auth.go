// Package auth issues and verifies the bearer credentials that carry an
// actor's identity and client scope, and resolves what that scope lets
// the actor see and mutate.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clientads/adserver/pkg/api/store"
)

// Sentinel errors mapped to HTTP statuses at the request boundary.
var (
	// ErrUnauthenticated covers missing, malformed, and expired
	// credentials. There is no refresh; the caller re-authenticates.
	ErrUnauthenticated = errors.New("invalid or expired credential")

	// ErrForbidden covers authenticated callers outside their scope.
	ErrForbidden = errors.New("client id outside allowed scope")
)

// AuthContext is the verified identity attached to a request. It is
// reconstructed from the credential on every request and never persisted.
type AuthContext struct {
	Username         string
	Role             string
	AllowedClientIDs []string
}

// IsAdmin reports whether the actor holds the admin role.
func (c *AuthContext) IsAdmin() bool {
	return c.Role == store.RoleAdmin
}

// CanAccessClient is the sole authorization predicate: admins may operate
// on any client id, developers only on members of their allowed set.
func (c *AuthContext) CanAccessClient(clientID string) bool {
	if c.IsAdmin() {
		return true
	}

	for _, id := range c.AllowedClientIDs {
		if id == clientID {
			return true
		}
	}

	return false
}

// ListScope resolves the client ids a list query may return. A nil slice
// means unrestricted. Admins may optionally narrow to a requested id;
// developers requesting an id outside their scope get ErrForbidden, and
// without a requested id they see their full allowed set.
func (c *AuthContext) ListScope(requestedClientID string) ([]string, error) {
	if c.IsAdmin() {
		if requestedClientID != "" {
			return []string{requestedClientID}, nil
		}

		return nil, nil
	}

	if requestedClientID != "" {
		if !c.CanAccessClient(requestedClientID) {
			return nil, ErrForbidden
		}

		return []string{requestedClientID}, nil
	}

	// Non-nil even when empty so an unscoped developer matches nothing.
	scope := make([]string, 0, len(c.AllowedClientIDs))
	scope = append(scope, c.AllowedClientIDs...)

	return scope, nil
}

// claims is the JWT payload for issued credentials.
type claims struct {
	jwt.RegisteredClaims
	Role      string   `json:"role"`
	ClientIDs []string `json:"client_ids"`
}

// Issuer signs and verifies bearer credentials with a fixed lifetime.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer with the given HMAC secret and token
// lifetime. A nil now defaults to time.Now; tests inject a fixed clock.
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    now,
	}
}

// Issue signs a credential embedding the user's identity and scope.
func (i *Issuer) Issue(user *store.User) (string, error) {
	now := i.now().UTC()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Role:      user.Role,
		ClientIDs: user.AllowedClientIDs,
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}

	return signed, nil
}

// Verify validates signature and expiry and reconstructs the AuthContext
// embedded at issuance. Any failure maps to ErrUnauthenticated.
func (i *Issuer) Verify(tokenString string) (*AuthContext, error) {
	if tokenString == "" {
		return nil, ErrUnauthenticated
	}

	var parsed claims

	token, err := jwt.ParseWithClaims(
		tokenString,
		&parsed,
		func(_ *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}

	if parsed.Subject == "" || parsed.Role == "" {
		return nil, ErrUnauthenticated
	}

	return &AuthContext{
		Username:         parsed.Subject,
		Role:             parsed.Role,
		AllowedClientIDs: parsed.ClientIDs,
	}, nil
}
