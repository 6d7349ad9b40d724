// Package auth implements password hashing and session-ID generation.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// HashPassword returns the lowercase-hex SHA-256 digest of password,
// matching the reference server's hash_password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword reports whether password hashes to the stored digest.
func VerifyPassword(password, storedHash string) bool {
	return HashPassword(password) == storedHash
}

// sessionIDBytes is the number of cryptographically random bytes a
// session ID is derived from; hex-encoding doubles it to 128 chars.
const sessionIDBytes = 64

// GenerateSessionID returns a fresh 128-hex-char session ID drawn from
// 64 cryptographically random bytes.
func GenerateSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
