// Package auth provides API key utilities for the HTTP gateway
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	apiKeyPrefix   = "fsk"
	apiKeyBodySize = 20 // bytes, 160 bits of entropy
	checksumLength = 6  // hex characters
)

var apiKeyPattern = regexp.MustCompile(`^fsk_([a-f0-9]{40})_([a-f0-9]{6})$`)

// GenerateAPIKey generates an API key of the form fsk_<40 hex>_<6 hex checksum>.
// The checksum lets clients and the gateway reject mistyped keys without a lookup.
func GenerateAPIKey() (string, error) {
	body := make([]byte, apiKeyBodySize)
	if _, err := rand.Read(body); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := hex.EncodeToString(body)
	return fmt.Sprintf("%s_%s_%s", apiKeyPrefix, encoded, checksum(encoded)), nil
}

// ValidateAPIKeyFormat reports whether apiKey is well formed and its checksum matches
func ValidateAPIKeyFormat(apiKey string) bool {
	m := apiKeyPattern.FindStringSubmatch(apiKey)
	if m == nil {
		return false
	}
	return checksum(m[1]) == m[2]
}

// HashAPIKey hashes an API key for storage in configuration
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// MaskAPIKey returns a form of the key that is safe to log
func MaskAPIKey(key string) string {
	if !strings.HasPrefix(key, apiKeyPrefix+"_") || len(key) < 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

func checksum(body string) string {
	sum := sha256.Sum256([]byte(apiKeyPrefix + body))
	return hex.EncodeToString(sum[:])[:checksumLength]
}
