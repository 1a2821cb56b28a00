package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the driver a trip or recommendation belongs to.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var ErrMissingSubject = errors.New("token has no user_id")

// SignToken issues an HS256 token for userID. Tokens are minted by the
// account service; this is used by tooling and tests.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
