package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/training-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/training-enrollment-api/pkg/errors"
)

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "identity", Audience: []string{"training-api"}})

	token, err := svc.Sign(models.JWTClaims{UserID: "user-1", Role: models.RoleParticipant, ParticipantID: "p-1"}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "p-1", claims.ParticipantID)
	assert.Equal(t, models.RoleParticipant, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "identity", Audience: []string{"training-api"}})

	cases := map[string]func() string{
		"expired": func() string {
			token, _ := svc.Sign(models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}, -time.Minute)
			return token
		},
		"wrong secret": func() string {
			other := NewTokenService(TokenConfig{Secret: "other", Issuer: "identity", Audience: []string{"training-api"}})
			token, _ := other.Sign(models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}, time.Hour)
			return token
		},
		"wrong audience": func() string {
			other := NewTokenService(TokenConfig{Secret: "secret", Issuer: "identity", Audience: []string{"billing"}})
			token, _ := other.Sign(models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}, time.Hour)
			return token
		},
		"participant without id": func() string {
			token, _ := svc.Sign(models.JWTClaims{UserID: "user-1", Role: models.RoleParticipant}, time.Hour)
			return token
		},
		"unsigned": func() string {
			token := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})
			signed, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
			return signed
		},
		"garbage": func() string { return "not-a-token" },
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(build())
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
