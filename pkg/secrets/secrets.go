// Package secrets generates and compares opaque credentials.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	dErrors "afenda/pkg/domain-errors"
)

// GenerateToken returns a random URL-safe token of exactly length characters.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token length must be positive")
	}
	buf := make([]byte, base64.RawURLEncoding.DecodedLen(length)+1)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashToken is the at-rest form of an issued token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// HashEmail is the stable lookup key for per-email secrets. The address is
// lowercased first so casing never yields a second key.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
