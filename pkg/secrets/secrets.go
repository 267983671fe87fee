// Package secrets generates one-time codes and hashes them for storage.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "udyam/pkg/domain-errors"
)

// GenerateDigits returns a uniformly random numeric code of length n with no
// leading zero.
func GenerateDigits(n int) (string, error) {
	if n <= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "code length must be positive")
	}
	var b strings.Builder
	b.Grow(n)
	for i := range n {
		upper := int64(10)
		if i == 0 {
			upper = 9
		}
		d, err := rand.Int(rand.Reader, big.NewInt(upper))
		if err != nil {
			return "", fmt.Errorf("could not generate code: %w", err)
		}
		digit := d.Int64()
		if i == 0 {
			digit++
		}
		b.WriteByte(byte('0' + digit))
	}
	return b.String(), nil
}

// Hash creates a bcrypt hash of the provided secret.
func Hash(secret string) (string, error) {
	return HashWithCost(secret, bcrypt.DefaultCost)
}

// HashWithCost is Hash with an explicit bcrypt cost. Tests use bcrypt.MinCost.
func HashWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "secret is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks if a plaintext secret matches a bcrypt hash.
func Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid secret")
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}
