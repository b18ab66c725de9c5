package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

// User represents an authenticated principal returned to handlers.
// PasswordHash and Salt never cross the JSON boundary.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Salt         string     `json:"-"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	// Unknown username and password mismatch are deliberately
	// indistinguishable so login errors cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrNotFound marks a business-level miss on a lookup.
	ErrNotFound = errors.New("not found")
)

// HashPassword derives the stored credential digest: hex(SHA-256(password || salt)).
// A single pass, no stretching. Seeding and verification must agree on this.
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a plaintext password against the stored hash and salt.
// A mismatch is false, never an error. The comparison is constant-time in the
// digest content.
func VerifyPassword(password, storedHash, salt string) bool {
	digest := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(digest), []byte(storedHash)) == 1
}

// GenerateSalt returns a random per-user salt, hex-encoded.
func GenerateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
