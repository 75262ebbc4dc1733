// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package fido2

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTIssuer mints HMAC-signed JWTs for authenticated users.
type JWTIssuer struct {
	signingKey []byte
	issuer     string
	audience   []string
	expiresIn  time.Duration
}

// JWTIssuerConfig contains configuration for the JWT issuer.
type JWTIssuerConfig struct {
	// SigningKey is the HMAC secret used to sign tokens (required).
	SigningKey []byte

	// Issuer is the JWT issuer claim (default: "go-fido2-server").
	Issuer string

	// Audience is the JWT audience claim (default: ["go-fido2-server"]).
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour).
	ExpiresIn time.Duration
}

// NewJWTIssuer creates a new JWT issuer with the given configuration.
func NewJWTIssuer(config *JWTIssuerConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.SigningKey) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "go-fido2-server"
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{"go-fido2-server"}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &JWTIssuer{
		signingKey: config.SigningKey,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
	}, nil
}

// IssueToken creates a signed token with the username as subject.
func (g *JWTIssuer) IssueToken(ctx context.Context, username string) (string, error) {
	now := time.Now().UTC()

	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    g.issuer,
		Audience:  jwt.ClaimStrings(g.audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.expiresIn)),
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses a token and returns the subject claim. Used by callers that
// accept the issued tokens back, e.g. for session validation.
func (g *JWTIssuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.signingKey, nil
	}, jwt.WithIssuer(g.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}
