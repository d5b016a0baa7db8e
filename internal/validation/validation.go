// Package validation checks account input before it reaches the database
// and the cluster nodes.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrPasswordTooShort indicates password is less than minimum length.
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrPasswordNoDigit indicates password has no digit.
	ErrPasswordNoDigit = errors.New("password must contain at least one digit")
	// ErrPasswordCommon indicates password is too common.
	ErrPasswordCommon = errors.New("password is too common, please choose a stronger password")
	// ErrInvalidUsername indicates a name that cannot be a node account.
	ErrInvalidUsername = errors.New("username must start with a lowercase letter or underscore and contain only lowercase letters, digits, '_' and '-'")
	// ErrInputTooLong indicates input exceeds maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
)

// MaxUsernameLength is the longest account name useradd accepts.
const MaxUsernameLength = 32

var usernamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)

// PasswordPolicy defines password requirements.
type PasswordPolicy struct {
	MinLength    int
	RequireDigit bool
	CheckCommon  bool
}

// Common passwords that should be rejected
var commonPasswords = map[string]bool{
	"password":    true,
	"123456":      true,
	"12345678":    true,
	"qwerty":      true,
	"abc123":      true,
	"password1":   true,
	"password123": true,
	"admin":       true,
	"letmein":     true,
	"welcome":     true,
	"changeme":    true,
	"passw0rd":    true,
	"iloveyou":    true,
}

// ValidatePassword validates a password against the policy.
func ValidatePassword(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return ErrPasswordTooShort
	}

	if policy.RequireDigit && !strings.ContainsFunc(password, unicode.IsDigit) {
		return ErrPasswordNoDigit
	}

	if policy.CheckCommon && commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}

	return nil
}

// ValidateUsername checks that username is usable as a POSIX account name,
// since console accounts are mirrored onto the nodes.
func ValidateUsername(username string) error {
	if len(username) > MaxUsernameLength {
		return ErrInputTooLong
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}
