// Package auth resolves bearer tokens into the identity the lifecycle engine
// authorizes against. Credentials themselves are issued elsewhere.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/leave-engine/leave"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the role next to the standard subject.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier turns a raw token into an actor.
type Verifier interface {
	Verify(token string) (leave.Actor, error)
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(tokenString string) (leave.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return leave.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return leave.Actor{}, ErrInvalidToken
	}

	role := leave.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return leave.Actor{}, fmt.Errorf("%w: missing subject or unknown role %q", ErrInvalidToken, claims.Role)
	}
	return leave.Actor{ID: claims.Subject, Role: role}, nil
}

// GenerateToken signs a token for the actor. Used by tooling and tests.
func GenerateToken(secret, issuer string, actor leave.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// =============================================================================
// CONTEXT
// =============================================================================

type ctxKey struct{}

func WithActor(ctx context.Context, a leave.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFromContext(ctx context.Context) (leave.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(leave.Actor)
	return a, ok
}
