package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestValidateRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "https://idp.example", []string{"authenticated"})
	id := uuid.New()

	tok, err := svc.Generate(id, "pilot@example.com", time.Hour)
	require.NoError(t, err)

	got, err := svc.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "pilot@example.com", got.Email)
}

func TestValidateRejects(t *testing.T) {
	svc := NewJWTService("secret", "", []string{"authenticated"})
	id := uuid.New()

	expired, err := svc.Generate(id, "", -time.Minute)
	require.NoError(t, err)
	_, err = svc.Validate(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTService("other-secret", "", []string{"authenticated"})
	forged, err := other.Generate(id, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.Validate(forged)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongAud := NewJWTService("secret", "", []string{"anon"})
	tok, err := wrongAud.Generate(id, "", time.Hour)
	require.NoError(t, err)
	_, err = svc.Validate(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRequiresUUIDSubject(t *testing.T) {
	svc := NewJWTService("secret", "", nil)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "service-account",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	svc := NewJWTService("secret", "", nil)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
}
