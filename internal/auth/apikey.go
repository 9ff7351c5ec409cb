// Package auth provides authentication primitives for the registry's operator
// endpoints: a static admin API key stored only as a bcrypt hash, and short
// lived JWTs minted for operators.
// See internal/middleware/auth.go for the request-time logic that uses them.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of the API key in bytes
	APIKeyLength = 32

	// APIKeyPrefix starts every generated admin key.
	APIKeyPrefix = "mrk"

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12
)

// GenerateAPIKey creates a new random admin key.
// Returns: full key (to show once) and its bcrypt hash (to put in auth.admin_key_hash).
func GenerateAPIKey() (key string, hash string, err error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := fmt.Sprintf("%s_%s", APIKeyPrefix, base64.RawURLEncoding.EncodeToString(randomBytes))

	hash, err = HashAPIKey(fullKey)
	if err != nil {
		return "", "", err
	}
	return fullKey, hash, nil
}

// HashAPIKey hashes a key with bcrypt.
func HashAPIKey(key string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hashBytes), nil
}

// ValidateAPIKey checks if a provided key matches the stored hash. An empty
// hash never matches.
func ValidateAPIKey(providedKey, storedHash string) bool {
	if storedHash == "" || providedKey == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey))
	return err == nil
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	key := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if key == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return key, nil
}
