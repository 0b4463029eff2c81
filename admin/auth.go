package admin

import (
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Claims are the claims of an admin token.
type Claims struct {
	gojwt.RegisteredClaims
}

// TokenService issues and verifies HS256 admin tokens.
type TokenService struct {
	cfg AuthConfig
}

// NewTokenService returns a service for cfg. cfg.Secret must be set.
func NewTokenService(cfg AuthConfig) (*TokenService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("admin: auth secret is not configured")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &TokenService{cfg: cfg}, nil
}

// Issue signs a token for subject, valid for the configured TTL.
func (s *TokenService) Issue(subject string) (string, error) {
	now := time.Now()
	claims := &Claims{RegisteredClaims: gojwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		NotBefore: gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}}
	if s.cfg.Audience != "" {
		claims.Audience = gojwt.ClaimStrings{s.cfg.Audience}
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("admin: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its claims.
func (s *TokenService) Parse(token string) (*Claims, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, gojwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, gojwt.WithAudience(s.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := gojwt.ParseWithClaims(token, claims, func(*gojwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("admin: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("admin: invalid token")
	}
	return claims, nil
}
