package model

import (
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 4
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

var ErrCredentialsRequired = errors.New("username and password are required")
var ErrUsernameLength = fmt.Errorf("username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only letters, digits, underscores, or hyphens")
var ErrUsernameReserved = errors.New("username is reserved")
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
var ErrPasswordTooLong = fmt.Errorf("password must not exceed %d bytes", MaxPasswordBytes)

// User represents a registered user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ValidateUsername checks that a username is 3-20 letters, digits, underscores
// or hyphens and is not the reserved system sender. Length is counted in
// characters, not bytes.
func ValidateUsername(name string) error {
	if name == "" {
		return ErrCredentialsRequired
	}
	n := utf8.RuneCountInString(name)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return ErrUsernameLength
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	if IsReserved(name) {
		return ErrUsernameReserved
	}
	return nil
}

// ValidatePassword checks the minimum password length.
func ValidatePassword(password string) error {
	if password == "" {
		return ErrCredentialsRequired
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
