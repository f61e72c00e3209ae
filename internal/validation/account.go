package validation

import (
	"errors"
	"regexp"
	"unicode"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.]*[a-zA-Z0-9]$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything past 72 bytes
	minUsernameLen = 3
	maxUsernameLen = 30
	maxEmailLen    = 254
)

// ValidatePassword checks length and requires at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return errors.New("password must be at least 8 characters long")
	}
	if len(password) > maxPasswordLen {
		return errors.New("password must not exceed 72 bytes")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return errors.New("password must contain at least one letter and one digit")
	}
	return nil
}

// ValidateUsername allows letters, digits, underscores and dots, not at either end.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen {
		return errors.New("username must be at least 3 characters long")
	}
	if len(username) > maxUsernameLen {
		return errors.New("username must not exceed 30 characters")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username can only contain letters, numbers, underscores and dots, and must start and end with a letter or number")
	}
	return nil
}

// ValidateEmail checks basic email format.
func ValidateEmail(email string) error {
	if len(email) > maxEmailLen {
		return errors.New("email must not exceed 254 characters")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}
