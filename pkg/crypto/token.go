package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// SessionTokenBytes is the entropy of a session token (160 bits).
	SessionTokenBytes = 20
)

var (
	ErrEmptyToken = errors.New("token and hash cannot be empty")
)

var sessionTokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSessionToken returns a random session token encoded as
// lowercase base32 without padding.
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, SessionTokenBytes)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return strings.ToLower(sessionTokenEncoding.EncodeToString(bytes)), nil
}

// HashToken is the storage key for a token: lowercase hex SHA-256.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func VerifyToken(token, storedHash string) (bool, error) {
	if token == "" || storedHash == "" {
		return false, ErrEmptyToken
	}

	tokenHash := HashToken(token)

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(storedHash)) == 1, nil
}
