// Package gateway sends authenticated requests to the room API. It attaches
// the bearer token and participant id, and turns a 401 into at most one
// refresh-and-retry before forcing the user back to login.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/session"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
)

// ParticipantHeader carries the anonymous participant id.
const ParticipantHeader = "X-Participant-ID"

// ErrAuthRequired is returned once the session has been cleared and the
// login redirect issued. Callers stop what they were doing.
var ErrAuthRequired = errors.New("authentication required")

// Refresher exchanges the refresh credential for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// LoginRedirector sends the user to the login entry point. Only the first
// call in a process wins.
type LoginRedirector interface {
	ToLogin(ctx context.Context, reason string) bool
}

// Gateway wraps an http.Client with credential handling.
type Gateway struct {
	http          *http.Client
	store         *session.Store
	refresher     Refresher
	redirector    LoginRedirector
	participantID func() string
}

type Option func(*Gateway)

// WithParticipantID attaches X-Participant-ID to every request.
func WithParticipantID(fn func() string) Option {
	return func(g *Gateway) {
		g.participantID = fn
	}
}

// New creates a gateway.
func New(httpClient *http.Client, store *session.Store, refresher Refresher, redirector LoginRedirector, opts ...Option) *Gateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	g := &Gateway{
		http:       httpClient,
		store:      store,
		refresher:  refresher,
		redirector: redirector,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do sends req with the current credentials. Any status other than 401 is
// returned untouched for the caller to interpret. A 401 triggers exactly one
// refresh; if that fails, or the retried request is also rejected, the
// session is cleared, the login redirect issued and ErrAuthRequired
// returned. Concurrent callers each run their own bounded cycle.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	metrics := telemetry.GetMetrics()
	started := time.Now()

	defer func() {
		metrics.RequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()))
	}()

	if g.store.AccessToken() == "" {
		return nil, g.forceLogin(ctx, "no access token")
	}

	if err := bufferBody(req); err != nil {
		return nil, err
	}

	resp, err := g.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	discard(resp)

	log.Debug().Str("path", req.URL.Path).Msg("access token rejected, refreshing")
	metrics.RefreshAttemptsTotal.Add(ctx, 1)

	fresh, err := g.refresher.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed")
		metrics.RefreshFailuresTotal.Add(ctx, 1)
		return nil, g.forceLogin(ctx, "refresh failed")
	}

	if err := g.store.SetAccessToken(fresh); err != nil {
		log.Error().Err(err).Msg("failed to store refreshed token")
		metrics.RefreshFailuresTotal.Add(ctx, 1)
		return nil, g.forceLogin(ctx, "refresh failed")
	}

	resp, err = g.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		return nil, g.forceLogin(ctx, "unauthorized after refresh")
	}

	return resp, nil
}

// Fire sends req once with whatever credentials are stored. There is no
// refresh and no redirect; it suits best-effort calls such as leaving a room
// during shutdown.
func (g *Gateway) Fire(req *http.Request) (*http.Response, error) {
	if g.store.AccessToken() == "" {
		return nil, session.ErrNoAccessToken
	}
	return g.send(req)
}

// send issues one attempt using the token currently in the store.
func (g *Gateway) send(orig *http.Request) (*http.Response, error) {
	token := g.store.AccessToken()
	if token == "" {
		return nil, g.forceLogin(orig.Context(), "no access token")
	}

	req := orig.Clone(orig.Context())
	if orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		req.Body = body
	}

	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)

	if g.participantID != nil {
		if id := g.participantID(); id != "" {
			req.Header.Set(ParticipantHeader, id)
		}
	}
	if req.Body != nil && req.Body != http.NoBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)

	telemetry.GetMetrics().RequestsTotal.Add(orig.Context(), 1,
		metric.WithAttributes(attribute.String("method", orig.Method), attribute.Int("status", statusOf(resp))))

	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", orig.Method, orig.URL.Path, err)
	}
	return resp, nil
}

func (g *Gateway) forceLogin(ctx context.Context, reason string) error {
	if err := g.store.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear session")
	}

	telemetry.GetMetrics().ForcedLoginsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))

	if g.redirector != nil {
		g.redirector.ToLogin(ctx, reason)
	}

	return fmt.Errorf("%w: %s", ErrAuthRequired, reason)
}

// bufferBody makes the body replayable so the retry sends the same bytes.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
