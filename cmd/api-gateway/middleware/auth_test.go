package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lgulliver/filestore/pkg/types"
)

// MockAuthService mocks the auth service for testing
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*types.Principal, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Principal), args.Error(1)
}

func (m *MockAuthService) ValidateAPIKey(ctx context.Context, apiKey string) (*types.Principal, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Principal), args.Error(1)
}

func newAuthRouter(authService AuthServiceInterface, captured **types.Principal) *gin.Engine {
	router := gin.New()
	router.Use(AuthMiddleware(authService))
	router.GET("/test", func(c *gin.Context) {
		if principal, ok := GetPrincipalFromContext(c); ok {
			*captured = principal
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	return router
}

func TestAuthMiddleware_ValidBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockAuth := new(MockAuthService)
	principal := &types.Principal{Subject: "deploy-bot", Method: "jwt"}
	mockAuth.On("ValidateToken", mock.Anything, "valid-token").Return(principal, nil)

	var captured *types.Principal
	router := newAuthRouter(mockAuth, &captured)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, principal, captured)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_ValidAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockAuth := new(MockAuthService)
	principal := &types.Principal{Subject: "fsk_abcd...", Method: "api_key"}
	mockAuth.On("ValidateAPIKey", mock.Anything, "fsk_key").Return(principal, nil)

	var captured *types.Principal
	router := newAuthRouter(mockAuth, &captured)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "fsk_key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, principal, captured)
	mockAuth.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_FallsBackToAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockAuth := new(MockAuthService)
	principal := &types.Principal{Subject: "ci", Method: "api_key"}
	mockAuth.On("ValidateToken", mock.Anything, "expired").Return(nil, errors.New("token expired"))
	mockAuth.On("ValidateAPIKey", mock.Anything, "fsk_key").Return(principal, nil)

	var captured *types.Principal
	router := newAuthRouter(mockAuth, &captured)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer expired")
	req.Header.Set("X-API-Key", "fsk_key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, principal, captured)
	mockAuth.AssertExpectations(t)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{name: "no credentials"},
		{name: "basic auth is not supported", headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}},
		{name: "invalid token", headers: map[string]string{"Authorization": "Bearer bad"}},
		{name: "invalid api key", headers: map[string]string{"X-API-Key": "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := new(MockAuthService)
			mockAuth.On("ValidateToken", mock.Anything, "bad").Return(nil, errors.New("invalid token"))
			mockAuth.On("ValidateAPIKey", mock.Anything, "bad").Return(nil, errors.New("invalid api key"))

			var captured *types.Principal
			router := newAuthRouter(mockAuth, &captured)

			req := httptest.NewRequest("GET", "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "unauthorized")
			assert.Nil(t, captured)
		})
	}
}
