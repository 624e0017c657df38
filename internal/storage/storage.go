package storage

import "errors"

// ErrInvalidKey is returned when an empty key is written.
var ErrInvalidKey = errors.New("invalid storage key")

// Storage is a string key/value store. Durable storage survives restarts,
// session storage lives as long as the process.
type Storage interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool)
	// Set stores a single value.
	Set(key, value string) error
	// Remove deletes keys. Missing keys are ignored.
	Remove(keys ...string) error
	// SetAll stores every value in a single write.
	SetAll(values map[string]string) error
	// Keys lists the stored keys.
	Keys() []string
}

func validate(values map[string]string) error {
	for k := range values {
		if k == "" {
			return ErrInvalidKey
		}
	}
	return nil
}
