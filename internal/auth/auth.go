// Package auth authenticates callers with HS256 bearer tokens and carries the
// resulting Identity through the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Role is the caller's authority level.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller has global authority.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Tokens signs and verifies bearer tokens with a shared secret.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens constructs a Tokens. The secret must not be empty.
func NewTokens(secret, issuer string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth secret is not set")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for id.
func (t *Tokens) Issue(id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	if !id.Role.Valid() {
		return "", fmt.Errorf("unknown role %q", id.Role)
	}

	now := t.now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(t.ttl).Unix(),
	}
	if t.issuer != "" {
		claims["iss"] = t.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses tokenString and returns the identity it carries.
func (t *Tokens) Verify(tokenString string) (Identity, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	if t.issuer != "" && !claims.VerifyIssuer(t.issuer, true) {
		return Identity{}, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}
	if _, hasExp := claims["exp"]; !hasExp {
		return Identity{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	id := Identity{UserID: sub, Role: Role(role)}
	if id.UserID == "" || !id.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: missing subject or role", ErrInvalidToken)
	}
	return id, nil
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
