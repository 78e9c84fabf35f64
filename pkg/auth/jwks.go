package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a raw JWT and returns its claims.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// JWKSConfig configures token verification.
type JWKSConfig struct {
	// JWKSEndpoints maps each accepted issuer to its JWKS URL. Tokens from
	// any other issuer are rejected.
	JWKSEndpoints map[string]string
	// Audience, when set, must appear in the token's aud claim.
	Audience string
}

// JWKSClient verifies RS256 tokens with keys published by each issuer.
type JWKSClient struct {
	issuers  map[string]keyfunc.Keyfunc
	audience string
}

var _ TokenVerifier = (*JWKSClient)(nil)

// NewJWKSClient fetches the key set of every configured issuer. keyfunc keeps
// the sets refreshed in the background until ctx is done.
func NewJWKSClient(ctx context.Context, cfg *JWKSConfig) (*JWKSClient, error) {
	if len(cfg.JWKSEndpoints) == 0 {
		return nil, errors.New("at least one JWKS endpoint is required")
	}
	issuers := make(map[string]keyfunc.Keyfunc, len(cfg.JWKSEndpoints))
	for issuer, jwksURL := range cfg.JWKSEndpoints {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		issuers[issuer] = k
	}
	return NewJWKSClientWithKeys(issuers, cfg.Audience), nil
}

// NewJWKSClientWithKeys builds a client from already loaded key sets.
func NewJWKSClientWithKeys(issuers map[string]keyfunc.Keyfunc, audience string) *JWKSClient {
	return &JWKSClient{issuers: issuers, audience: audience}
}

// ValidateToken checks the signature, expiry, issuer and audience.
func (c *JWKSClient) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, errors.New("invalid claims type")
		}
		keys, ok := c.issuers[claims.Issuer]
		if !ok {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return keys.KeyfuncCtx(ctx)(token)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}
