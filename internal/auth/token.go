// Package auth is the authentication capability boundary: current
// identity, identity-change notification, and token retrieval with an
// explicit force-refresh knob. A local HS256 issuer stands in for the
// hosted identity provider.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token expiration time
const tokenExpiration = 24 * time.Hour

// Claims are the JWT claims carried by engine tokens. Admin is the
// derived authority claim: synchronized from the whitelist collection by
// trigger, cached in the token until the client refreshes.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Admin  bool      `json:"admin"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed token for the given user with the given
// admin claim.
func GenerateToken(secret string, userID uuid.UUID, admin bool) (string, error) {
	expirationTime := time.Now().Add(tokenExpiration)

	claims := &Claims{
		UserID: userID,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "bayou-engine",
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a token, returning its claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
