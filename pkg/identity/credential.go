package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Iterations can only go up: lowering them would make
// freshly hashed passwords weaker than existing ones.
const (
	// Pbkdf2Iterations is the PBKDF2 iteration count for new hashes.
	Pbkdf2Iterations = 100_000

	// SaltLength is the random salt size in bytes.
	SaltLength = 16

	// KeyLength is the derived key size in bytes.
	KeyLength = 32
)

// ErrInvalidCredentials is returned when credentials are invalid.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrPasswordTooShort is returned when a password is too short.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// MinPasswordLength is the minimum required password length.
const MinPasswordLength = 8

// GenerateSalt returns a fresh random salt of SaltLength bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// HashPassword derives a PBKDF2-SHA256 key from the password and a fresh
// random salt. Both values are returned base64-encoded, ready for storage.
//
// Returns ErrPasswordTooShort if the password does not meet the minimum
// length requirement.
func HashPassword(password string) (hash, salt string, err error) {
	if err := ValidatePassword(password); err != nil {
		return "", "", err
	}

	rawSalt, err := GenerateSalt()
	if err != nil {
		return "", "", err
	}

	key := pbkdf2.Key([]byte(password), rawSalt, Pbkdf2Iterations, KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(rawSalt), nil
}

// VerifyPassword checks a password against a stored hash and salt using a
// constant-time comparison. Malformed stored values verify as false rather
// than erroring, so a corrupt record behaves like a wrong password.
func VerifyPassword(password, hash, salt string) bool {
	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}
	rawHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil || len(rawHash) == 0 {
		return false
	}

	derived := pbkdf2.Key([]byte(password), rawSalt, Pbkdf2Iterations, len(rawHash), sha256.New)
	return subtle.ConstantTimeCompare(derived, rawHash) == 1
}

// ValidatePassword checks if a password meets the minimum requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// GeneratePassword returns a random URL-safe password of n bytes of entropy,
// used when bootstrapping the default admin account.
func GeneratePassword(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
