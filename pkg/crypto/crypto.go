package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether candidate matches the stored hash.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateToken draws size random bytes and encodes them URL-safe.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}

	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// TokenDigest returns the hex encoded SHA-256 digest of a token. Only digests
// are persisted so a database leak does not expose live invitation links.
func TokenDigest(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}
