package room

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/navigation"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

const (
	// StorageKey holds the current room id in both storage scopes.
	StorageKey = "current_room_id"

	// QueryParam carries the room id in the address bar.
	QueryParam = "room"
)

// Surfaces keeps the room id consistent across durable storage,
// session-scoped storage and the address bar.
type Surfaces struct {
	durable  storage.Storage
	session  storage.Storage
	location *navigation.Location
}

func NewSurfaces(durable, session storage.Storage, location *navigation.Location) *Surfaces {
	return &Surfaces{durable: durable, session: session, location: location}
}

// FromURL returns the room id in the address bar, if any.
func (s *Surfaces) FromURL() string {
	return s.location.Query(QueryParam)
}

// Saved returns the persisted room id, preferring durable storage.
func (s *Surfaces) Saved() string {
	if id, ok := s.durable.Get(StorageKey); ok && id != "" {
		return id
	}
	if id, ok := s.session.Get(StorageKey); ok && id != "" {
		return id
	}
	return ""
}

// Current returns the room id the client considers active, URL first.
func (s *Surfaces) Current() string {
	if id := s.FromURL(); id != "" {
		return id
	}
	return s.Saved()
}

// Persist writes id to every surface. The address bar is only rewritten
// when it does not already hold id, and never gains a history entry.
func (s *Surfaces) Persist(id string) error {
	if id == "" {
		return ErrNoRoom
	}

	if err := s.durable.Set(StorageKey, id); err != nil {
		return fmt.Errorf("failed to persist room id: %w", err)
	}
	if err := s.session.Set(StorageKey, id); err != nil {
		return fmt.Errorf("failed to persist room id: %w", err)
	}

	if s.location.SetQuery(QueryParam, id) {
		log.Debug().Str("room_id", id).Msg("address bar updated")
	}

	return nil
}

// Clear removes the room id from every surface.
func (s *Surfaces) Clear() error {
	errDurable := s.durable.Remove(StorageKey)
	errSession := s.session.Remove(StorageKey)
	s.location.DeleteQuery(QueryParam)

	return errors.Join(errDurable, errSession)
}
