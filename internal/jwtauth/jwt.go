package jwtauth

import (
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"vaultbridge/internal/platform/middleware"
	id "vaultbridge/pkg/domain"
	dErrors "vaultbridge/pkg/domain-errors"
)

// Claims are the JWT claims for operator and admin access tokens.
type Claims struct {
	Actor string `json:"actor"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Service signs and validates actor access tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

// NewService derives the HMAC key from the configured secret with
// HKDF-SHA256, salted by the issuer. Short or structured secrets still
// sign with a uniform 256-bit key, and tokens never verify across issuers
// sharing a secret.
func NewService(secret, issuer string) *Service {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(issuer), []byte("access-token"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		panic(err) // a single SHA-256 block read cannot fail
	}
	return &Service{
		signingKey: key,
		issuer:     issuer,
	}
}

// GenerateToken issues a signed token for an actor address.
func (s *Service) GenerateToken(actor id.Address, admin bool, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Actor: actor.String(),
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken implements middleware.TokenValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.ActorClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return &middleware.ActorClaims{
		Actor: id.Address(claims.Actor),
		Admin: claims.Admin,
	}, nil
}
