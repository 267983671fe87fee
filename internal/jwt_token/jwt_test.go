package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "udyam/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")
var registrationID = uuid.New()
var aadhaar = "234567890123"
var expiresIn = time.Hour

func Test_GenerateSessionToken(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(registrationID, aadhaar, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, registrationID.String(), claims.RegistrationID)
	assert.Equal(t, aadhaar, claims.AadhaarNumber)
	assert.Equal(t, 1, claims.Step)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(registrationID, aadhaar, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	de, ok := dErrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "token has expired", de.Message)
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("other-key", "test-issuer")
	token, err := other.GenerateSessionToken(registrationID, aadhaar, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_WrongIssuer(t *testing.T) {
	other := NewJWTService("test-signing-key", "someone-else")
	token, err := other.GenerateSessionToken(registrationID, aadhaar, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegistrationID: registrationID.String()})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(signed)
	assert.Error(t, err)
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateSessionToken(registrationID, aadhaar, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, registrationID, claims.RegistrationID)
	assert.Equal(t, aadhaar, claims.AadhaarNumber)

	id, err := jwtService.ExtractRegistrationID(token)
	require.NoError(t, err)
	assert.Equal(t, registrationID, id)
}
