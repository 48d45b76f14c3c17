// Package validate holds input validation for the admin registry surface.
// Everything user-entered passes through here before it reaches a store.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field validation errors.
var (
	ErrEmpty             = errors.New("value is empty")
	ErrTooLong           = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
	ErrInvalidEmail      = errors.New("invalid email format")
)

// Field length limits. External IDs are what the scanner decodes off a
// credential, so they stay short and machine-friendly.
const (
	MaxExternalIDLength = 64
	MaxNameLength       = 120
	MaxCourseLength     = 120
	MaxEmailLength      = 254
)

// externalIDPattern restricts credentials to the characters the decoder
// can actually produce.
var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-\.]+$`)

// emailPattern covers the common shapes; delivery-level checks are the
// mail system's job.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ExternalID validates and trims a credential external ID.
func ExternalID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("externalId: %w", ErrEmpty)
	}
	if utf8.RuneCountInString(s) > MaxExternalIDLength {
		return "", fmt.Errorf("externalId: %w (max %d)", ErrTooLong, MaxExternalIDLength)
	}
	if !externalIDPattern.MatchString(s) {
		return "", fmt.Errorf("externalId: %w (letters, digits, dash, underscore, period)", ErrInvalidCharacters)
	}
	return s, nil
}

// Name validates and trims a display name.
func Name(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("name: %w", ErrEmpty)
	}
	if utf8.RuneCountInString(s) > MaxNameLength {
		return "", fmt.Errorf("name: %w (max %d)", ErrTooLong, MaxNameLength)
	}
	return s, nil
}

// Course validates and trims a course label. Empty is allowed.
func Course(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if utf8.RuneCountInString(s) > MaxCourseLength {
		return "", fmt.Errorf("course: %w (max %d)", ErrTooLong, MaxCourseLength)
	}
	return s, nil
}

// Email validates, trims, and lowercases an email address. Empty is
// allowed; the registry stores email for notifications only.
func Email(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	if len(s) > MaxEmailLength {
		return "", fmt.Errorf("email: %w (max %d)", ErrTooLong, MaxEmailLength)
	}
	if !emailPattern.MatchString(s) {
		return "", fmt.Errorf("email: %w", ErrInvalidEmail)
	}
	local := s[:strings.Index(s, "@")]
	if len(local) > 64 {
		return "", fmt.Errorf("email: %w (local part max 64)", ErrTooLong)
	}
	return s, nil
}
