// Package auth verifies identity tokens issued by the external identity provider.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds the identity provider's JWT claims. The subject is the identity id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// JWTService validates identity tokens.
type JWTService struct {
	secret    []byte
	issuer    string
	audiences []string
}

// NewJWTService creates a JWT service. Empty issuer or audiences are not checked.
func NewJWTService(secret, issuer string, audiences []string) *JWTService {
	return &JWTService{
		secret:    []byte(secret),
		issuer:    issuer,
		audiences: audiences,
	}
}

// Generate signs a token for the identity. Used by local tooling and tests;
// production tokens come from the identity provider.
func (s *JWTService) Generate(id uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	if len(s.audiences) > 0 {
		claims.Audience = jwt.ClaimStrings{s.audiences[0]}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning the identity or ErrInvalidToken.
func (s *JWTService) Validate(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !s.audienceAllowed(claims.Audience) {
		return nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return &Identity{ID: id, Email: claims.Email}, nil
}

func (s *JWTService) audienceAllowed(aud jwt.ClaimStrings) bool {
	if len(s.audiences) == 0 {
		return true
	}
	for _, want := range s.audiences {
		for _, got := range aud {
			if got == want {
				return true
			}
		}
	}
	return false
}
