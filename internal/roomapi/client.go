// Package roomapi is a client for the room/media API under /api/v1.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	// BasePath prefixes every room API route.
	BasePath = "/api/v1"

	// DefaultRoomTitle and DefaultMaxParticipants are used when a room is
	// created implicitly.
	DefaultRoomTitle       = "New room"
	DefaultMaxParticipants = 10

	// DefaultMediaPort is where the media service listens without TLS.
	DefaultMediaPort = "7880"
)

// Doer sends a request. The gateway satisfies it for authenticated calls.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BestEffortDoer sends a request once without refresh handling.
type BestEffortDoer interface {
	Fire(req *http.Request) (*http.Response, error)
}

type Gateway interface {
	Doer
	BestEffortDoer
}

// Client talks to the room API.
type Client struct {
	serverURL string
	baseURL   string
	gateway   Gateway
	public    *http.Client

	mu         sync.Mutex
	serverInfo *ServerInfo
}

// New creates a room API client. Authenticated calls go through gateway;
// unauthenticated GETs use public, normally a caching client.
func New(serverURL string, gateway Gateway, public *http.Client) *Client {
	if public == nil {
		public = http.DefaultClient
	}
	serverURL = strings.TrimRight(serverURL, "/")
	return &Client{
		serverURL: serverURL,
		baseURL:   serverURL + BasePath,
		gateway:   gateway,
		public:    public,
	}
}

// CreateRoom creates a room.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	var room Room
	if err := c.call(ctx, http.MethodPost, "/rooms", req, "failed to create room", &room); err != nil {
		return nil, err
	}
	if room.ID == "" {
		return nil, fmt.Errorf("%w: created room has no id", ErrInvalidResponse)
	}
	return &room, nil
}

// JoinRoom joins the room with the given display name. The server answers
// with the membership record, so the returned Room carries only the
// requested id and that Participant.
func (c *Client) JoinRoom(ctx context.Context, roomID, displayName string) (*Room, error) {
	var p Participant
	err := c.call(ctx, http.MethodPost, roomPath(roomID, "join"), displayNameBody{DisplayName: displayName}, "failed to join room", &p)
	if err != nil {
		return nil, err
	}
	if p.RoomID != "" && !strings.EqualFold(p.RoomID, roomID) {
		return nil, fmt.Errorf("%w: joined room %q, asked for %q", ErrInvalidResponse, p.RoomID, roomID)
	}
	return &Room{ID: roomID, Participant: &p}, nil
}

// LeaveRoom tells the server the participant left. It sends once with the
// stored credentials and never triggers a refresh or redirect.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+roomPath(roomID, "leave"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.gateway.Fire(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, "failed to leave room")
	}
	return nil
}

// MediaToken obtains a credential for the real-time media service.
func (c *Client) MediaToken(ctx context.Context, roomID, displayName string) (*MediaToken, error) {
	var token MediaToken
	err := c.call(ctx, http.MethodPost, roomPath(roomID, "media", "token"), displayNameBody{DisplayName: displayName}, "failed to get media token", &token)
	if err != nil {
		return nil, err
	}
	if token.Token == "" {
		return nil, fmt.Errorf("%w: media token is empty", ErrInvalidResponse)
	}
	return &token, nil
}

// Participants lists the room members. The route is public.
func (c *Client) Participants(ctx context.Context, roomID string) ([]Participant, error) {
	var out []Participant
	if err := c.get(ctx, c.baseURL+roomPath(roomID, "participants"), "failed to fetch participants", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendChatMessage posts a chat message to the room.
func (c *Client) SendChatMessage(ctx context.Context, roomID string, msg ChatMessage) error {
	body := struct {
		Content     string `json:"content"`
		DisplayName string `json:"display_name"`
	}{Content: msg.Content, DisplayName: msg.DisplayName}

	return c.call(ctx, http.MethodPost, roomPath(roomID, "chat", "messages"), body, "failed to send message", nil)
}

// ChatMessages returns up to limit recent messages. The server caps limit
// at 100 and uses 50 when it is zero.
func (c *Client) ChatMessages(ctx context.Context, roomID string, limit int) ([]ChatMessage, error) {
	u := c.baseURL + roomPath(roomID, "chat", "messages")
	if limit > 0 {
		u += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}

	var out []ChatMessage
	if err := c.get(ctx, u, "failed to fetch messages", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ServerInfo returns the media server location. The first answer, or the
// fallback derived from the server URL when the endpoint is unavailable, is
// cached for the life of the client.
func (c *Client) ServerInfo(ctx context.Context) *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.serverInfo != nil {
		return c.serverInfo
	}

	var info ServerInfo
	if err := c.get(ctx, c.serverURL+"/server-info", "failed to fetch server info", &info); err != nil {
		log.Warn().Err(err).Msg("server info unavailable, using fallback")
		c.serverInfo = fallbackServerInfo(c.serverURL)
		return c.serverInfo
	}

	log.Debug().Str("host_ip", info.HostIP).Str("livekit_url", info.LiveKitURL).Msg("server info")
	c.serverInfo = &info
	return c.serverInfo
}

// ServerURL is the application origin the client was created with.
func (c *Client) ServerURL() string {
	return c.serverURL
}

func fallbackServerInfo(serverURL string) *ServerInfo {
	u, err := url.Parse(serverURL)
	host := "localhost"
	secure := false
	if err == nil && u.Hostname() != "" {
		host = u.Hostname()
		secure = u.Scheme == "https"
	}

	if secure {
		return &ServerInfo{HostIP: host, LiveKitPort: "443", LiveKitURL: "wss://" + host}
	}
	return &ServerInfo{HostIP: host, LiveKitPort: DefaultMediaPort, LiveKitURL: "ws://" + host + ":" + DefaultMediaPort}
}

func (c *Client) call(ctx context.Context, method, path string, in any, fallback string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.gateway.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, fallback, out)
}

func (c *Client) get(ctx context.Context, rawURL, fallback string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.public.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, fallback, out)
}

func decodeResponse(resp *http.Response, fallback string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, fallback)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func roomPath(roomID string, parts ...string) string {
	segments := append([]string{"rooms", url.PathEscape(roomID)}, parts...)
	return "/" + strings.Join(segments, "/")
}
