package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultAwaitAttempts = 100
	DefaultAwaitInterval = 100 * time.Millisecond
)

// Registry is the injection point for media capabilities. Adapters register
// a factory by name; consumers look one up, optionally waiting for it to
// appear.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory

	attempts uint
	interval time.Duration
}

type RegistryOption func(*Registry)

// WithPolling sets how long Await waits for a capability.
func WithPolling(attempts uint, interval time.Duration) RegistryOption {
	return func(r *Registry) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if interval > 0 {
			r.interval = interval
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		attempts:  DefaultAwaitAttempts,
		interval:  DefaultAwaitInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs f under name, replacing any previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = f
	log.Debug().Str("capability", name).Msg("media capability registered")
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Names lists the registered capabilities.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Await polls for name at a fixed interval until it is registered, the
// attempts run out or ctx is done.
func (r *Registry) Await(ctx context.Context, name string) (Factory, error) {
	started := time.Now()

	f, err := backoff.Retry(ctx, func() (Factory, error) {
		if f, ok := r.Lookup(name); ok {
			return f, nil
		}
		return nil, ErrCapabilityUnavailable
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(r.interval)),
		backoff.WithMaxTries(r.attempts),
	)

	found := err == nil
	telemetry.GetMetrics().CapabilityWaitDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.String("capability", name), attribute.Bool("found", found)))

	if err != nil {
		log.Error().Err(err).Str("capability", name).Strs("registered", r.Names()).Msg("media capability did not load")
		return nil, fmt.Errorf("%w: %s: %w", ErrCapabilityUnavailable, name, err)
	}

	return f, nil
}
