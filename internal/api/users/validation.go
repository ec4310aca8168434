// Package users provides user management API endpoints.
package users

import (
	"regexp"
	"strings"

	"github.com/good-yellow-bee/alertboard/internal/models"
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{2,31}$`)
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateUsername validates a username.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return &ValidationError{Field: "username", Message: "username is required"}
	case len(username) < 3:
		return &ValidationError{Field: "username", Message: "username must be at least 3 characters"}
	case len(username) > 32:
		return &ValidationError{Field: "username", Message: "username must be at most 32 characters"}
	case !usernameRegex.MatchString(username):
		return &ValidationError{Field: "username", Message: "username must start with a letter and contain only letters, numbers, underscores, or hyphens"}
	}
	return nil
}

// ValidateEmail validates an email address. Alerts are attributed by email,
// so every account needs a usable one.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return &ValidationError{Field: "email", Message: "email is required"}
	case len(email) > 255:
		return &ValidationError{Field: "email", Message: "email must be at most 255 characters"}
	case !emailRegex.MatchString(email):
		return &ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidateRole parses a role string.
func ValidateRole(role string) (models.Role, error) {
	r := models.Role(strings.TrimSpace(strings.ToLower(role)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Message: "role must be one of: admin, operator, viewer"}
	}
	return r, nil
}
