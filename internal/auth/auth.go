// Package auth verifies bearer tokens issued by the external auth provider
// and describes the resolved caller passed into every core operation.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Charlsz/localmarket/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Caller is the authenticated identity of a request. Role is empty until the
// user has created a profile.
type Caller struct {
	ID    uuid.UUID
	Email string
	Role  models.Role
}

func (c Caller) HasProfile() bool {
	return c.Role != ""
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

func (c Caller) IsProvider() bool {
	return c.Role == models.RoleProvider
}

// Claims mirrors the access tokens of the auth provider: the subject is the
// user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SignToken creates an HS256 access token for userID.
func SignToken(secret string, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates signature and expiry and returns the caller identity
// carried by the token.
func ParseToken(secret, tokenString string) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return Caller{ID: id, Email: claims.Email}, nil
}
