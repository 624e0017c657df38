package authapi

import (
	"errors"
	"regexp"
	"strings"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

var (
	ErrMissingFields    = errors.New("all fields are required")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrInvalidEmail     = errors.New("invalid email format")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RegisterRequest is what the user fills in to create an account.
type RegisterRequest struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

type registerBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ValidateRegistration checks the form before anything is sent.
func ValidateRegistration(req RegisterRequest) error {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)

	switch {
	case name == "" || email == "" || req.Password == "" || req.PasswordConfirm == "":
		return ErrMissingFields
	case len(req.Password) < MinPasswordLength:
		return ErrPasswordTooShort
	case req.Password != req.PasswordConfirm:
		return ErrPasswordMismatch
	case !IsValidEmail(email):
		return ErrInvalidEmail
	}

	return nil
}

// IsValidEmail applies the same loose shape check as the sign-up form.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SplitName splits a full name into the first word and the remainder.
func SplitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return strings.TrimSpace(name), ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
