// Package identity mints and validates the bearer tokens that stand in
// for the platform's sender stamp at the HTTP edge. A token binds one
// address; the middleware turns it back into the sender identity the
// factory trusts.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

// Claims carries the sender address alongside the registered set.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// TokenService signs and validates sender tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
}

// NewTokenService builds a token service around an HMAC signing key.
func NewTokenService(signingKey string, issuer string) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// Issue signs a token binding the given address for the given lifetime.
func (s *TokenService) Issue(address spawn.Address, expiresIn time.Duration) (string, error) {
	if address.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "address is required")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Address: string(address),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Validate parses a token and returns the address it binds.
func (s *TokenService) Validate(tokenString string) (spawn.Address, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Address == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return spawn.Address(claims.Address), nil
}
