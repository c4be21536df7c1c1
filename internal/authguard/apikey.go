package authguard

import (
	"errors"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidAPIKey is returned when a presented operator API key doesn't
// match the configured hash.
var ErrInvalidAPIKey = errors.New("authguard: invalid api key")

// APIKeyVerifier checks a presented operator API key against a bcrypt hash:
// a local operator must prove they hold the key before the token-minting
// CLI will issue them a bearer token at all.
type APIKeyVerifier struct {
	hash []byte
}

// NewAPIKeyVerifier reads the bcrypt hash from XRAYCORE_API_KEY_HASH.
func NewAPIKeyVerifier() (*APIKeyVerifier, error) {
	hash := os.Getenv("XRAYCORE_API_KEY_HASH")
	if hash == "" {
		return nil, errors.New("authguard: XRAYCORE_API_KEY_HASH is not set")
	}
	return &APIKeyVerifier{hash: []byte(hash)}, nil
}

// Verify reports whether presented matches the configured hash.
func (v *APIKeyVerifier) Verify(presented string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(presented)); err != nil {
		return ErrInvalidAPIKey
	}
	return nil
}

// HashAPIKey produces a bcrypt hash suitable for XRAYCORE_API_KEY_HASH,
// used by the operator-facing CLI when provisioning a new key.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
