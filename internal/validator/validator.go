// Package validator provides input validation and sanitization functions
// for the mailstore security layer.
package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation errors
var (
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidMailboxName = errors.New("invalid mailbox name")
	ErrInputTooLong       = errors.New("input exceeds maximum length")
	ErrInvalidCharacter   = errors.New("input contains invalid characters")
	ErrEmptyInput         = errors.New("input cannot be empty")
)

// Regex patterns for validation
var (
	// Username regex: allows lowercase alphanumeric, dots, underscores,
	// hyphens and a single @domain suffix. Must start with alphanumeric.
	usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}(@[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*)?$`)
)

// MaxMailboxNameLength is the maximum accepted length of a single mailbox
// path, hierarchy delimiters included.
const MaxMailboxNameLength = 255

// ValidateUsername validates a mailbox owner identifier. Usernames are
// either a bare local part or a full address with domain.
// Returns nil if valid, or an appropriate error.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(strings.ToLower(username))

	if username == "" {
		return ErrEmptyInput
	}

	if utf8.RuneCountInString(username) > 254 {
		return ErrInputTooLong
	}

	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}

	return nil
}

// ValidateMailboxName validates a user-supplied mailbox name. The name may
// contain hierarchy delimiters but no empty path segments, no control
// characters, and no leading or trailing delimiter.
// Returns nil if valid, or an appropriate error.
func ValidateMailboxName(name, delimiter string) error {
	if name == "" {
		return ErrEmptyInput
	}

	if utf8.RuneCountInString(name) > MaxMailboxNameLength {
		return ErrInputTooLong
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidCharacter
		}
	}

	if delimiter != "" {
		if strings.HasPrefix(name, delimiter) || strings.HasSuffix(name, delimiter) {
			return ErrInvalidMailboxName
		}
		for _, segment := range strings.Split(name, delimiter) {
			if strings.TrimSpace(segment) == "" {
				return ErrInvalidMailboxName
			}
		}
	}

	return nil
}
