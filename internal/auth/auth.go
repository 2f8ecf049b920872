// Package auth verifies bearer tokens and exposes the caller's identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rankwell/rankwell/internal/agency"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrMissingUser  = errors.New("auth: token has no user id")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string      `json:"userId"`
	Role   agency.Role `json:"role"`
}

// Claims are the JWT claims issued by the identity service. The user id is
// read from uid, falling back to sub.
type Claims struct {
	UID  string `json:"uid,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses the token and returns the identity it carries.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.UID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, ErrMissingUser
	}
	role := agency.Role(claims.Role)
	if role == "" {
		role = agency.RoleAgency
	}
	return Identity{UserID: userID, Role: role}, nil
}

// Sign issues a token for id. Used by tooling and tests; production tokens
// come from the identity service.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:  id.UserID,
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
