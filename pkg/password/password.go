// Package password hashes account passwords with bcrypt and enforces the
// sign-up password policy.
package password

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"commhub-backend/pkg/constants"
)

// maxBytes is the longest input bcrypt accepts
const maxBytes = 72

// Cost is the bcrypt work factor; tests lower it
var Cost = bcrypt.DefaultCost

// common is matched case-insensitively against the whole password
var common = map[string]struct{}{
	"password": {}, "password1": {}, "12345678": {}, "123456789": {},
	"qwertyuiop": {}, "iloveyou": {}, "sunshine": {}, "11111111": {},
	"baseball": {}, "football": {}, "letmein1": {}, "welcome1": {},
	"trustno1": {}, "abcd1234": {}, "qwerty123": {}, "admin123": {},
}

// Validate checks a new password against the policy
func Validate(pw string) error {
	if len(pw) < constants.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", constants.MinPasswordLength)
	}
	if len(pw) > maxBytes {
		return fmt.Errorf("password must be at most %d bytes", maxBytes)
	}
	if _, ok := common[strings.ToLower(pw)]; ok {
		return fmt.Errorf("password is too common")
	}
	if repeated(pw) {
		return fmt.Errorf("password must not repeat a single character")
	}
	return nil
}

// Hash returns the bcrypt hash of pw
func Hash(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Matches reports whether pw matches hash
func Matches(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func repeated(pw string) bool {
	first := []rune(pw)[0]
	for _, r := range pw {
		if unicode.ToLower(r) != unicode.ToLower(first) {
			return false
		}
	}
	return true
}
