package loopback

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// idTokenClaims are the claims read from the provider's id token.
type idTokenClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// verifyIDToken checks the signature, expiry, issuer, audience and nonce of
// raw and maps it to an Identity.
func verifyIDToken(raw, nonce string, cfg Config) (*domain.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}

	if claims.Nonce != nonce {
		return nil, errors.New("invalid id token: nonce mismatch")
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid id token: missing subject")
	}

	return &domain.Identity{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}
