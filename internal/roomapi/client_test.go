package roomapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/vibemeet/internal/gateway"
	"github.com/wolfeidau/vibemeet/internal/session"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context) (string, error) {
	return "", errors.New("no refresh in tests")
}

func newClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := session.NewStore(storage.NewMemoryStore())
	require.True(t, store.Save(&session.AuthResponse{AccessToken: "tok", User: &session.AuthUser{ID: "1"}}))

	gw := gateway.New(srv.Client(), store, noRefresh{}, nil, gateway.WithParticipantID(func() string { return "p-1" }))
	return New(srv.URL, gw, srv.Client())
}

func TestClient_CreateRoom(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rooms", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, CreateRoomRequest{Title: DefaultRoomTitle, MaxParticipants: 10, DisplayName: "Ann"}, body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"room-1","title":"New room","max_participants":10}`))
	})
	c := newClient(t, mux)

	room, err := c.CreateRoom(context.Background(), CreateRoomRequest{Title: DefaultRoomTitle, MaxParticipants: DefaultMaxParticipants, DisplayName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "room-1", room.ID)
}

func TestClient_JoinRoom(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rooms/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "gone":
			w.WriteHeader(http.StatusNotFound)
		case "closed":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Room is not active"}`))
		case "full":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"room is full"}`))
		case "moved":
			_, _ = w.Write([]byte(`{"id":"11111111-2222-4333-8444-555555555555","room_id":"elsewhere","participant_id":"p-1","display_name":"Ann","role":"participant"}`))
		default:
			_, _ = fmt.Fprintf(w, `{"id":"11111111-2222-4333-8444-555555555555","room_id":%q,"participant_id":"p-1","display_name":"Ann","role":"participant","joined_at":"2026-01-02T03:04:05Z"}`, r.PathValue("id"))
		}
	})
	c := newClient(t, mux)
	ctx := context.Background()

	roomID := "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee"
	room, err := c.JoinRoom(ctx, roomID, "Ann")
	require.NoError(t, err)
	assert.Equal(t, roomID, room.ID)
	require.NotNil(t, room.Participant)
	assert.Equal(t, ID("11111111-2222-4333-8444-555555555555"), room.Participant.ID)
	assert.Equal(t, roomID, room.Participant.RoomID)
	assert.True(t, room.Participant.Is("p-1"))
	assert.Equal(t, RoleParticipant, room.Participant.Role)

	_, err = c.JoinRoom(ctx, "moved", "Ann")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = c.JoinRoom(ctx, "gone", "Ann")
	assert.True(t, IsNotFound(err))

	_, err = c.JoinRoom(ctx, "closed", "Ann")
	assert.True(t, IsNotFound(err))

	_, err = c.JoinRoom(ctx, "full", "Ann")
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "room is full", apiErr.Message)
}

func TestClient_MediaTokenAndLeave(t *testing.T) {
	var left atomic.Bool

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rooms/r1/media/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p-1", r.Header.Get(gateway.ParticipantHeader))
		_, _ = w.Write([]byte(`{"token":"media-tok","url":"ws://10.0.0.5:7880"}`))
	})
	mux.HandleFunc("POST /api/v1/rooms/r1/leave", func(w http.ResponseWriter, r *http.Request) {
		left.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	c := newClient(t, mux)

	tok, err := c.MediaToken(context.Background(), "r1", "Ann")
	require.NoError(t, err)
	assert.Equal(t, &MediaToken{Token: "media-tok", URL: "ws://10.0.0.5:7880"}, tok)

	require.NoError(t, c.LeaveRoom(context.Background(), "r1"))
	assert.True(t, left.Load())
}

func TestClient_ParticipantsAndChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/rooms/r1/participants", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"m-1","participant_id":"p-1","display_name":"Ann","role":"host"},{"id":"m-2","participant_id":"p-2","display_name":"Bob","role":"participant"}]`))
	})
	mux.HandleFunc("POST /api/v1/rooms/r1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"content": "hi", "display_name": "Ann"}, body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /api/v1/rooms/r1/chat/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":17,"content":"hi","display_name":"Ann","message_type":"user"}]`))
	})
	c := newClient(t, mux)
	ctx := context.Background()

	participants, err := c.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.True(t, participants[0].IsHost())
	assert.False(t, participants[1].IsHost())
	assert.True(t, participants[0].Is("p-1"))
	assert.False(t, participants[1].Is("p-1"))

	require.NoError(t, c.SendChatMessage(ctx, "r1", ChatMessage{Content: "hi", DisplayName: "Ann"}))

	history, err := c.ChatMessages(ctx, "r1", 20)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, ID("17"), history[0].ID)
}

func TestClient_ServerInfoCached(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server-info", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"host_ip":"10.0.0.5","livekit_port":"7880","livekit_url":"ws://10.0.0.5:7880"}`))
	})
	c := newClient(t, mux)

	first := c.ServerInfo(context.Background())
	second := c.ServerInfo(context.Background())

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "10.0.0.5", first.HostIP)
	assert.Equal(t, "7880", first.LiveKitPort.String())
}

func TestClient_ServerInfoFallback(t *testing.T) {
	c := newClient(t, http.NewServeMux())

	info := c.ServerInfo(context.Background())
	assert.Equal(t, "127.0.0.1", info.HostIP)
	assert.Equal(t, "7880", info.LiveKitPort.String())
	assert.Equal(t, "ws://127.0.0.1:7880", info.LiveKitURL)

	secure := fallbackServerInfo("https://meet.example.com")
	assert.Equal(t, "wss://meet.example.com", secure.LiveKitURL)
	assert.Equal(t, "443", secure.LiveKitPort.String())
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("room not found")))
	assert.True(t, IsNotFound(&APIError{Status: http.StatusNotFound}))
	assert.True(t, IsNotFound(&APIError{Status: http.StatusBadRequest, Message: "Room Not Found"}))
	assert.False(t, IsNotFound(&APIError{Status: http.StatusInternalServerError, Message: "boom"}))
}
