package room

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vibemeet/internal/gateway"
	"github.com/wolfeidau/vibemeet/internal/navigation"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

type fakeAPI struct {
	mu       sync.Mutex
	rooms    map[string]bool
	joinErr  error
	created  []roomapi.CreateRoomRequest
	joined   []string
	left     []string
	leaveErr error
	next     int
}

func newFakeAPI(existing ...string) *fakeAPI {
	f := &fakeAPI{rooms: make(map[string]bool)}
	for _, id := range existing {
		f.rooms[id] = true
	}
	return f
}

func (f *fakeAPI) CreateRoom(_ context.Context, req roomapi.CreateRoomRequest) (*roomapi.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	id := fmt.Sprintf("new-%d", f.next)
	f.rooms[id] = true
	f.created = append(f.created, req)
	return &roomapi.Room{ID: id, Title: req.Title}, nil
}

func (f *fakeAPI) JoinRoom(_ context.Context, id, displayName string) (*roomapi.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.joined = append(f.joined, id)
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	if !f.rooms[id] {
		return nil, &roomapi.APIError{Status: http.StatusNotFound, Message: "room not found"}
	}
	return &roomapi.Room{ID: id, Participant: &roomapi.Participant{
		ID:            roomapi.ID("m-" + id),
		RoomID:        id,
		ParticipantID: "p-1",
		DisplayName:   displayName,
		Role:          roomapi.RoleParticipant,
	}}, nil
}

func (f *fakeAPI) LeaveRoom(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.left = append(f.left, id)
	return f.leaveErr
}

type staticName string

func (n staticName) DisplayName() string { return string(n) }

type page struct {
	durable    *storage.MemoryStore
	session    *storage.MemoryStore
	location   *navigation.Location
	redirector *navigation.Redirector
	surfaces   *Surfaces
}

func openPage(t *testing.T, durable *storage.MemoryStore, rawURL string) *page {
	t.Helper()

	loc, err := navigation.NewLocation(rawURL)
	require.NoError(t, err)

	p := &page{
		durable:    durable,
		session:    storage.NewMemoryStore(),
		location:   loc,
		redirector: navigation.NewRedirector(loc, nil),
	}
	p.surfaces = NewSurfaces(p.durable, p.session, loc)
	return p
}

func (p *page) resolver(api API, name string) *Resolver {
	return NewResolver(api, p.surfaces, staticName(name), p.redirector)
}

func TestResolve_URLWinsOverPersisted(t *testing.T) {
	durable := storage.NewMemoryStore()
	require.NoError(t, durable.Set(StorageKey, "xyz"))

	p := openPage(t, durable, "https://meet.example.com/room.html?room=abc")
	api := newFakeAPI("abc", "xyz")

	res, err := p.resolver(api, "Ann").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Joined, res.Outcome)
	assert.Equal(t, "abc", res.RoomID)
	assert.Equal(t, SourceURL, res.Source)
	require.NotNil(t, res.Room)
	assert.Equal(t, "abc", res.Room.ID)
	require.NotNil(t, res.Room.Participant)
	assert.Equal(t, "Ann", res.Room.Participant.DisplayName)
	assert.Equal(t, []string{"abc"}, api.joined)

	v, _ := p.durable.Get(StorageKey)
	assert.Equal(t, "abc", v)
	v, _ = p.session.Get(StorageKey)
	assert.Equal(t, "abc", v)

	assert.Equal(t, "https://meet.example.com/room.html?room=abc", p.location.String())
	assert.Len(t, p.location.History(), 1)
}

func TestResolve_PersistedIDUsedWithoutURL(t *testing.T) {
	durable := storage.NewMemoryStore()
	require.NoError(t, durable.Set(StorageKey, "xyz"))

	p := openPage(t, durable, "https://meet.example.com/room.html")
	res, err := p.resolver(newFakeAPI("xyz"), "Ann").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Joined, res.Outcome)
	assert.Equal(t, SourceStorage, res.Source)
	assert.Equal(t, "xyz", p.location.Query(QueryParam))
	assert.Len(t, p.location.History(), 1)
}

func TestResolve_SessionScopeFallback(t *testing.T) {
	p := openPage(t, storage.NewMemoryStore(), "https://meet.example.com/room.html")
	require.NoError(t, p.session.Set(StorageKey, "sess"))

	res, err := p.resolver(newFakeAPI("sess"), "Ann").Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess", res.RoomID)
}

func TestResolve_CreateThenReloadRejoins(t *testing.T) {
	durable := storage.NewMemoryStore()
	api := newFakeAPI()

	p := openPage(t, durable, "https://meet.example.com/room.html")
	res, err := p.resolver(api, "   ").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Created, res.Outcome)
	assert.True(t, res.NewlyCreated)
	require.Len(t, api.created, 1)
	assert.Equal(t, roomapi.CreateRoomRequest{Title: roomapi.DefaultRoomTitle, MaxParticipants: 10, DisplayName: "User"}, api.created[0])
	assert.Equal(t, res.RoomID, p.location.Query(QueryParam))

	// A reload without the query parameter and a fresh session scope.
	reloaded := openPage(t, durable, "https://meet.example.com/room.html")
	again, err := reloaded.resolver(api, "Ann").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Joined, again.Outcome)
	assert.Equal(t, res.RoomID, again.RoomID)
	assert.False(t, again.NewlyCreated)
	assert.Len(t, api.created, 1)
}

func TestResolve_NotFoundClearsEverySurface(t *testing.T) {
	durable := storage.NewMemoryStore()
	require.NoError(t, durable.Set(StorageKey, "gone"))

	p := openPage(t, durable, "https://meet.example.com/room.html?room=gone")
	require.NoError(t, p.session.Set(StorageKey, "gone"))

	res, err := p.resolver(newFakeAPI(), "Ann").Resolve(context.Background())
	require.NoError(t, err)

	assert.Equal(t, FailedRedirected, res.Outcome)

	_, ok := p.durable.Get(StorageKey)
	assert.False(t, ok)
	_, ok = p.session.Get(StorageKey)
	assert.False(t, ok)
	assert.Empty(t, p.location.Query(QueryParam))
	assert.Equal(t, navigation.RootPath, p.redirector.Target())
	assert.Equal(t, "https://meet.example.com/", p.location.String())
}

func TestResolve_OtherJoinErrorsPropagate(t *testing.T) {
	durable := storage.NewMemoryStore()
	require.NoError(t, durable.Set(StorageKey, "abc"))

	p := openPage(t, durable, "https://meet.example.com/room.html")
	api := newFakeAPI("abc")
	api.joinErr = &roomapi.APIError{Status: http.StatusInternalServerError, Message: "database unavailable"}

	res, err := p.resolver(api, "Ann").Resolve(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)

	var apiErr *roomapi.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Len(t, api.joined, 1)

	v, _ := p.durable.Get(StorageKey)
	assert.Equal(t, "abc", v)
	assert.False(t, p.redirector.Redirecting())
}

func TestResolve_AuthRequiredPassesThrough(t *testing.T) {
	p := openPage(t, storage.NewMemoryStore(), "https://meet.example.com/room.html?room=abc")
	api := newFakeAPI("abc")
	api.joinErr = fmt.Errorf("%w: refresh failed", gateway.ErrAuthRequired)

	_, err := p.resolver(api, "Ann").Resolve(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuthRequired)
}

func TestLeave_ClearsAndNavigatesRoot(t *testing.T) {
	durable := storage.NewMemoryStore()
	p := openPage(t, durable, "https://meet.example.com/room.html?room=abc")
	require.NoError(t, p.surfaces.Persist("abc"))

	api := newFakeAPI("abc")
	api.leaveErr = errors.New("network down")

	require.NoError(t, p.resolver(api, "Ann").Leave(context.Background(), ""))

	assert.Equal(t, []string{"abc"}, api.left)
	assert.Empty(t, p.surfaces.Current())
	assert.Equal(t, "https://meet.example.com/", p.location.String())
}
