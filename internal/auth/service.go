package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lgulliver/filestore/pkg/auth"
	"github.com/lgulliver/filestore/pkg/config"
	"github.com/lgulliver/filestore/pkg/types"
)

const tokenIssuer = "filestore"

var (
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidAPIKey is returned for malformed or unknown API keys
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// Service validates gateway credentials against static configuration
type Service struct {
	config    *config.AuthConfig
	keyHashes map[string]struct{}
}

// NewService creates a new authentication service
func NewService(cfg *config.AuthConfig) *Service {
	hashes := make(map[string]struct{}, len(cfg.APIKeyHashes))
	for _, h := range cfg.APIKeyHashes {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hashes[h] = struct{}{}
		}
	}
	return &Service{
		config:    cfg,
		keyHashes: hashes,
	}
}

// Enabled reports whether any credential source is configured
func (s *Service) Enabled() bool {
	return s.config.JWTSecret != "" || len(s.keyHashes) > 0
}

// IssueToken signs an HS256 token for subject. A zero ttl uses the configured expiration.
func (s *Service) IssueToken(subject string, ttl time.Duration) (string, error) {
	if s.config.JWTSecret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = s.config.JWTExpiration
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    tokenIssuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken validates a JWT and returns its subject as a principal
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*types.Principal, error) {
	if s.config.JWTSecret == "" {
		return nil, ErrInvalidToken
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &types.Principal{Subject: claims.Subject, Method: "jwt"}, nil
}

// ValidateAPIKey checks the key's format and looks up its hash
func (s *Service) ValidateAPIKey(ctx context.Context, key string) (*types.Principal, error) {
	if !auth.ValidateAPIKeyFormat(key) {
		return nil, fmt.Errorf("%w: malformed key", ErrInvalidAPIKey)
	}
	if _, ok := s.keyHashes[auth.HashAPIKey(key)]; !ok {
		return nil, ErrInvalidAPIKey
	}
	return &types.Principal{Subject: auth.MaskAPIKey(key), Method: "api_key"}, nil
}
