package jwttoken

import (
	"enrolld/pkg/platform/middleware/auth"
)

// MiddlewareAdapter exposes JWTService through the middleware's
// TokenValidator interface.
type MiddlewareAdapter struct {
	svc *JWTService
}

func NewMiddlewareAdapter(svc *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{svc: svc}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*auth.ValidatedToken, error) {
	claims, err := a.svc.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	subject := claims.Subject
	if subject == "" {
		subject = claims.RegisteredClaims.Subject
	}
	return &auth.ValidatedToken{Subject: subject}, nil
}
