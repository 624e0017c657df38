// Package participant manages the anonymous per-installation participant id
// sent to the room API alongside the bearer token.
package participant

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

// StorageKey is the durable storage key holding the participant id.
const StorageKey = "participant_id"

// newRandom is swapped in tests to exercise the fallback path.
var newRandom = uuid.NewRandom

// Generate returns a new version 4 UUID. When the secure source fails it
// falls back to a pseudo-random id with the same layout.
func Generate() string {
	id, err := newRandom()
	if err != nil {
		log.Warn().Err(err).Msg("secure uuid generation failed, using fallback")
		return fallback()
	}
	return id.String()
}

func fallback() string {
	var b [16]byte
	for i := range b {
		b[i] = byte(rand.UintN(256))
	}

	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10xx

	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// Get returns the persisted participant id, generating and storing one on
// first use. The id is reused across rooms and sessions.
func Get(s storage.Storage) string {
	if id, ok := s.Get(StorageKey); ok && id != "" {
		return id
	}

	id := Generate()
	if err := s.Set(StorageKey, id); err != nil {
		log.Warn().Err(err).Msg("failed to persist participant id")
	}
	return id
}

// Provider adapts Get for callers that want a func() string.
func Provider(s storage.Storage) func() string {
	return func() string { return Get(s) }
}
