package types

import (
	"time"
)

// FileItem describes a stored file as of the most recent metadata fetch
type FileItem struct {
	Name         string     `json:"name"`
	Container    string     `json:"container"`
	URI          string     `json:"uri"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Length       int64      `json:"length"`
	ContentType  string     `json:"content_type"`
}

// Principal identifies the caller of the HTTP gateway
type Principal struct {
	Subject string `json:"subject"`
	Method  string `json:"method"` // jwt, api_key
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
