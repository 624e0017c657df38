package session

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

// Storage keys shared with the rest of the client.
const (
	KeyAccessToken = "accessToken"
	KeyUser        = "user"
	KeyDisplayName = "display_name"
)

// ErrNoAccessToken is returned when a token is required but none is stored.
var ErrNoAccessToken = errors.New("no access token")

// Store keeps the access token and normalized user record in durable
// storage. The refresh credential is never seen here; it lives in the
// HTTP cookie jar.
type Store struct {
	storage storage.Storage

	// mu serializes writers so readers never observe a partial session.
	mu sync.RWMutex
}

// NewStore creates a token store over durable storage.
func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

// IsValid reports whether a session exists: a non-empty access token and a
// stored user with an id.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.accessToken() == "" {
		return false
	}

	user := SafeParseJSON(s.storage, KeyUser, User{})
	return user.ID != ""
}

// Save validates an auth payload and persists it. It returns false without
// touching storage when the payload has no token or no usable user id.
func (s *Store) Save(resp *AuthResponse) bool {
	if resp == nil {
		log.Error().Msg("invalid auth data received: missing access_token")
		return false
	}
	token := strings.TrimSpace(resp.AccessToken)
	if token == "" {
		log.Error().Msg("invalid auth data received: missing access_token")
		return false
	}

	user, ok := newUser(resp.User)
	if !ok {
		log.Error().Msg("invalid user data in auth response")
		return false
	}

	data, err := json.Marshal(user)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode user")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.storage.SetAll(map[string]string{
		KeyAccessToken: token,
		KeyUser:        string(data),
		KeyDisplayName: user.DisplayName,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist session")
		return false
	}

	log.Debug().Str("user_id", string(user.ID)).Msg("session saved")

	return true
}

// Clear removes the access token, user and display name.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.Remove(KeyAccessToken, KeyUser, KeyDisplayName)
}

// AccessToken returns the stored access token, or "" when absent.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accessToken()
}

// SetAccessToken replaces the access token after a refresh.
func (s *Store) SetAccessToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoAccessToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.Set(KeyAccessToken, token)
}

// User returns the stored user record.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := SafeParseJSON(s.storage, KeyUser, User{})
	if user.ID == "" {
		return User{}, false
	}
	return user, true
}

// DisplayName returns the normalized display name and writes the normalized
// value back when it differs from what was stored.
func (s *Store) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, _ := s.storage.Get(KeyDisplayName)
	name := NormalizeDisplayName(stored)

	if stored != name {
		if err := s.storage.Set(KeyDisplayName, name); err != nil {
			log.Warn().Err(err).Msg("failed to store display name")
		}
	}

	return name
}

// SetDisplayName stores a user-chosen display name.
func (s *Store) SetDisplayName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.storage.Set(KeyDisplayName, NormalizeDisplayName(name))
}

func (s *Store) accessToken() string {
	token, _ := s.storage.Get(KeyAccessToken)
	return strings.TrimSpace(token)
}

// SafeParseJSON decodes the JSON stored under key. Missing values, the
// literals "undefined" and "null", and malformed JSON yield def.
func SafeParseJSON[T any](s storage.Storage, key string, def T) T {
	value, ok := s.Get(key)
	if !ok || value == "" || value == "undefined" || value == "null" {
		return def
	}

	var v T
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("stored value is not valid JSON")
		return def
	}

	return v
}
