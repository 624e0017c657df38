package navigation

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Default navigation targets, relative to the application origin.
const (
	LoginPath = "/index.html"
	RootPath  = "/"
)

// Notifier presents messages to the user. Alert blocks until acknowledged
// in a browser; Notify is a short-lived, non-blocking message.
type Notifier interface {
	Alert(message string)
	Notify(message string)
}

// Redirector performs every navigation triggered by failure paths. All of
// them go through one Guard so overlapping failures navigate at most once.
type Redirector struct {
	location *Location
	guard    *Guard
	notifier Notifier

	mu     sync.Mutex
	target string
	reason string
}

func NewRedirector(location *Location, notifier Notifier) *Redirector {
	return &Redirector{
		location: location,
		guard:    &Guard{},
		notifier: notifier,
	}
}

// ToLogin sends the user to the login entry point.
func (r *Redirector) ToLogin(ctx context.Context, reason string) bool {
	return r.redirect(ctx, LoginPath, reason, "")
}

// ToRoot alerts with message, when non-empty, and sends the user to the
// application root.
func (r *Redirector) ToRoot(ctx context.Context, reason, message string) bool {
	return r.redirect(ctx, RootPath, reason, message)
}

// Navigate assigns ref without the guard. It is used for ordinary, user
// initiated navigation such as leaving a room.
func (r *Redirector) Navigate(ref string) error {
	u, err := r.location.Resolve(ref)
	if err != nil {
		return err
	}
	r.location.Assign(u)
	return nil
}

// Target reports where the guarded redirect went, or "" if none happened.
func (r *Redirector) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.target
}

// Reason reports why the guarded redirect happened.
func (r *Redirector) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reason
}

// Redirecting reports whether a guarded redirect has already been issued.
func (r *Redirector) Redirecting() bool {
	return r.guard.Held()
}

func (r *Redirector) redirect(ctx context.Context, path, reason, message string) bool {
	metrics := telemetry.GetMetrics()

	if !r.guard.TryAcquire() {
		log.Debug().Str("target", path).Str("reason", reason).Msg("redirect already in progress, ignoring")
		metrics.RedirectsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("target", path)))
		return false
	}

	u, err := r.location.Resolve(path)
	if err != nil {
		log.Error().Err(err).Str("target", path).Msg("failed to resolve redirect target")
		return false
	}

	if message != "" && r.notifier != nil {
		r.notifier.Alert(message)
	}

	r.mu.Lock()
	r.target = u.Path
	r.reason = reason
	r.mu.Unlock()

	r.location.Assign(u)

	log.Info().Str("target", u.Path).Str("reason", reason).Msg("redirecting")
	metrics.RedirectsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("target", path)))

	return true
}
