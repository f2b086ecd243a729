package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lgulliver/filestore/pkg/types"
)

const principalKey = "principal"

// AuthMiddleware accepts a Bearer JWT in the Authorization header or an
// API key in the X-API-Key header
func AuthMiddleware(authService AuthServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token := strings.TrimPrefix(header, "Bearer ")
			principal, err := authService.ValidateToken(ctx, token)
			if err == nil {
				c.Set(principalKey, principal)
				c.Next()
				return
			}
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected bearer token")
		}

		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			principal, err := authService.ValidateAPIKey(ctx, apiKey)
			if err == nil {
				c.Set(principalKey, principal)
				c.Next()
				return
			}
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected api key")
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, types.APIResponse{
			Success: false,
			Error:   "unauthorized",
		})
	}
}

// GetPrincipalFromContext extracts the authenticated caller from gin context
func GetPrincipalFromContext(c *gin.Context) (*types.Principal, bool) {
	principal, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	typed, ok := principal.(*types.Principal)
	return typed, ok
}
