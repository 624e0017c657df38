package session

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultDisplayName is used whenever no usable name can be derived.
const DefaultDisplayName = "User"

// MaxDisplayNameLength matches the limit enforced by the room API.
const MaxDisplayNameLength = 50

// UserID is a user identifier. The auth service may send it as a JSON
// string or number; both decode to the same string form.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

// AuthUser is the user record inside a login or register response.
type AuthUser struct {
	ID            UserID `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
}

// AuthResponse is the payload returned by login and register.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	User        *AuthUser `json:"user"`
}

// User is the normalized identity record kept in durable storage.
type User struct {
	ID            UserID  `json:"id"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	DisplayName   string  `json:"display_name"`
}

// DeriveDisplayName builds a display name from first and last name, falling
// back to the local part of the email and finally to DefaultDisplayName.
func DeriveDisplayName(firstName, lastName, email string) string {
	parts := make([]string, 0, 2)
	if firstName != "" {
		parts = append(parts, firstName)
	}
	if lastName != "" {
		parts = append(parts, lastName)
	}
	name := strings.TrimSpace(strings.Join(parts, " "))

	if name == "" && email != "" {
		local, _, _ := strings.Cut(email, "@")
		name = strings.TrimSpace(local)
	}

	if name == "" {
		return DefaultDisplayName
	}
	return name
}

// NormalizeDisplayName trims name, substitutes DefaultDisplayName for blank
// input and truncates to MaxDisplayNameLength characters.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultDisplayName
	}

	runes := []rune(name)
	if len(runes) > MaxDisplayNameLength {
		name = string(runes[:MaxDisplayNameLength])
	}
	return name
}

// newUser validates an auth payload user and converts it to the stored form.
func newUser(u *AuthUser) (User, bool) {
	if u == nil || u.ID == "" {
		return User{}, false
	}

	return User{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		FirstName:     optional(u.FirstName),
		LastName:      optional(u.LastName),
		DisplayName:   DeriveDisplayName(u.FirstName, u.LastName, u.Email),
	}, true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
