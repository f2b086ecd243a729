package middleware

import (
	"context"

	"github.com/lgulliver/filestore/pkg/types"
)

// AuthServiceInterface defines the contract for authentication services
type AuthServiceInterface interface {
	ValidateToken(ctx context.Context, token string) (*types.Principal, error)
	ValidateAPIKey(ctx context.Context, apiKey string) (*types.Principal, error)
}
