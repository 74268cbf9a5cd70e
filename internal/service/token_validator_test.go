package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-billing-api/internal/models"
	appErrors "github.com/noah-isme/course-billing-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTokenValidatorAcceptsValidToken(t *testing.T) {
	v := NewTokenValidator(TokenConfig{Secret: "s3cret", Issuer: "backoffice"})
	token := signToken(t, "s3cret", &models.JWTClaims{
		UserID: "admin-1",
		Role:   models.RoleFinance,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "backoffice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "admin-1", Role: models.RoleFinance}, claims.Actor())
}

func TestTokenValidatorRejects(t *testing.T) {
	v := NewTokenValidator(TokenConfig{Secret: "s3cret", Issuer: "backoffice"})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"wrong secret": signToken(t, "other", &models.JWTClaims{UserID: "a", RegisteredClaims: jwt.RegisteredClaims{Issuer: "backoffice", ExpiresAt: future}}),
		"expired":      signToken(t, "s3cret", &models.JWTClaims{UserID: "a", RegisteredClaims: jwt.RegisteredClaims{Issuer: "backoffice", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}),
		"wrong issuer": signToken(t, "s3cret", &models.JWTClaims{UserID: "a", RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: future}}),
		"no subject":   signToken(t, "s3cret", &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "backoffice", ExpiresAt: future}}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
		})
	}
}
