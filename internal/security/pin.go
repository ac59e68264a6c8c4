package security

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost defines the bcrypt work factor.
const bcryptCost = 12

// GeneratePIN returns a cryptographically random numeric PIN of the given length.
// PINs are independent of serials and of each other; they exist only until the
// issuance response is returned.
func GeneratePIN(length int) (string, error) {
	if length < 4 || length > 12 {
		return "", fmt.Errorf("security: pin length must be between 4 and 12, got %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("security: generate pin: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = '0' + b%10
	}
	return string(out), nil
}

// HashPIN hashes a raw PIN using bcrypt. Only the hash is ever persisted.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("security: hash pin: %w", err)
	}
	return string(hash), nil
}

// CheckPIN compares a stored PIN hash with a raw PIN.
func CheckPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// HashPassword hashes a plaintext admin password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a bcrypt hash with a plaintext password.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MaskHash returns a short display form of a stored hash for admin views,
// showing only the first and last few characters.
func MaskHash(hash string) string {
	if len(hash) > 12 {
		return hash[:6] + "..." + hash[len(hash)-4:]
	} else if len(hash) > 4 {
		return hash[:2] + "..." + hash[len(hash)-2:]
	}
	return hash
}
