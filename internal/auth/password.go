package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Operator passwords are bcrypt-hashed at cost 12. Hashes are provisioned
// through configuration; nothing in this service stores plaintext.
const (
	passwordHashCost  = 12
	passwordMinLength = 8
)

var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// HashPassword produces the bcrypt hash stored for an operator credential
func HashPassword(password string) (string, error) {
	if len(password) < passwordMinLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
