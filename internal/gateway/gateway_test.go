package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vibemeet/internal/navigation"
	"github.com/wolfeidau/vibemeet/internal/session"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

type fakeRefresher struct {
	calls atomic.Int32
	token string
	err   error
}

func (f *fakeRefresher) Refresh(context.Context) (string, error) {
	f.calls.Add(1)
	return f.token, f.err
}

type fixture struct {
	store      *session.Store
	location   *navigation.Location
	redirector *navigation.Redirector
	refresher  *fakeRefresher
	gateway    *Gateway
}

func newFixture(t *testing.T, refresher *fakeRefresher) *fixture {
	t.Helper()

	store := session.NewStore(storage.NewMemoryStore())
	require.True(t, store.Save(&session.AuthResponse{
		AccessToken: "stale",
		User:        &session.AuthUser{ID: "1", Email: "ann@example.com"},
	}))

	loc, err := navigation.NewLocation("https://meet.example.com/room.html?room=abc")
	require.NoError(t, err)
	redirector := navigation.NewRedirector(loc, nil)

	return &fixture{
		store:      store,
		location:   loc,
		redirector: redirector,
		refresher:  refresher,
		gateway:    New(nil, store, refresher, redirector, WithParticipantID(func() string { return "p-1" })),
	}
}

func newRequest(t *testing.T, url, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, r)
	require.NoError(t, err)
	return req
}

func TestGateway_AttachesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
		assert.Equal(t, "p-1", r.Header.Get(ParticipantHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{})

	resp, err := f.gateway.Do(newRequest(t, srv.URL, `{"display_name":"Ann"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, f.refresher.calls.Load())
}

func TestGateway_RefreshesOnceAndRetriesWithNewToken(t *testing.T) {
	var tokens []string
	var bodies []string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		tokens = append(tokens, r.Header.Get("Authorization"))
		bodies = append(bodies, string(body))
		mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{token: "fresh"})

	resp, err := f.gateway.Do(newRequest(t, srv.URL, `{"x":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), f.refresher.calls.Load())
	assert.Equal(t, []string{"Bearer stale", "Bearer fresh"}, tokens)
	assert.Equal(t, []string{`{"x":1}`, `{"x":1}`}, bodies)
	assert.Equal(t, "fresh", f.store.AccessToken())
	assert.True(t, f.store.IsValid())
	assert.False(t, f.redirector.Redirecting())
}

func TestGateway_SecondUnauthorizedForcesLogin(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{token: "fresh"})

	_, err := f.gateway.Do(newRequest(t, srv.URL, ""))
	require.ErrorIs(t, err, ErrAuthRequired)

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), f.refresher.calls.Load())
	assert.False(t, f.store.IsValid())
	assert.Empty(t, f.store.AccessToken())
	assert.Equal(t, navigation.LoginPath, f.redirector.Target())
}

func TestGateway_RefreshFailureForcesLogin(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{err: errors.New("refresh rejected")})

	_, err := f.gateway.Do(newRequest(t, srv.URL, ""))
	require.ErrorIs(t, err, ErrAuthRequired)

	assert.Equal(t, int32(1), hits.Load())
	assert.False(t, f.store.IsValid())
	assert.Equal(t, navigation.LoginPath, f.redirector.Target())
}

func TestGateway_ConcurrentFailuresRedirectOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{err: errors.New("refresh rejected")})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gateway.Do(newRequest(t, srv.URL, ""))
			assert.ErrorIs(t, err, ErrAuthRequired)
		}()
	}
	wg.Wait()

	// One entry for the starting page, one for the single redirect.
	assert.Len(t, f.location.History(), 2)
	assert.Equal(t, navigation.LoginPath, f.redirector.Target())
	assert.LessOrEqual(t, f.refresher.calls.Load(), int32(10))
}

func TestGateway_NoTokenFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{})
	require.NoError(t, f.store.Clear())

	_, err := f.gateway.Do(newRequest(t, srv.URL, ""))
	require.ErrorIs(t, err, ErrAuthRequired)

	assert.Zero(t, hits.Load())
	assert.Zero(t, f.refresher.calls.Load())
	assert.Equal(t, navigation.LoginPath, f.redirector.Target())
}

func TestGateway_PassesThroughOtherStatuses(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusBadRequest, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":"room not found"}`))
			}))
			defer srv.Close()

			f := newFixture(t, &fakeRefresher{})

			resp, err := f.gateway.Do(newRequest(t, srv.URL, ""))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, status, resp.StatusCode)
			assert.Zero(t, f.refresher.calls.Load())
			assert.True(t, f.store.IsValid())
			assert.False(t, f.redirector.Redirecting())
		})
	}
}

func TestGateway_FireDoesNotRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, &fakeRefresher{token: "fresh"})

	resp, err := f.gateway.Fire(newRequest(t, srv.URL, ""))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.refresher.calls.Load())
	assert.True(t, f.store.IsValid())
	assert.False(t, f.redirector.Redirecting())
}
