package jwttoken

import (
	"github.com/google/uuid"

	"udyam/internal/platform/middleware"
)

func ToMiddlewareClaims(claims *Claims) *middleware.SessionClaims {
	// ValidateToken already rejected unparsable ids.
	regID, _ := uuid.Parse(claims.RegistrationID)
	return &middleware.SessionClaims{
		RegistrationID: regID,
		AadhaarNumber:  claims.AadhaarNumber,
	}
}

// JWTServiceAdapter satisfies middleware.SessionValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.SessionClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims), nil
}
