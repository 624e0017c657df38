package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	readLimit    = 1 << 20
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ErrStreamClosed is returned by Send after the stream has stopped.
var ErrStreamClosed = errors.New("chat stream closed")

// StreamURL derives the websocket address for a room's chat stream from the
// API server URL.
func StreamURL(serverURL, roomID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/chat/" + url.PathEscape(roomID)
	u.RawQuery = ""

	return u.String(), nil
}

// Stream is a live chat websocket connection.
type Stream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial opens the chat stream. The header is sent with the handshake.
func Dial(ctx context.Context, rawURL string, header http.Header) (*Stream, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open chat stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}

	return &Stream{conn: conn, done: make(chan struct{})}, nil
}

// Send writes a chat payload to the stream.
func (s *Stream) Send(text string) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(DataPayload{Type: DataType, Message: text})
}

// Listen reads frames and hands each to fn until ctx is cancelled or the
// peer closes. A ping is sent on an interval to keep the connection alive.
func (s *Stream) Listen(ctx context.Context, fn func([]byte)) error {
	defer s.Close()

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.keepalive(ctx)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-s.done:
				return nil
			default:
			}
			return fmt.Errorf("chat stream read failed: %w", err)
		}
		fn(data)
	}
}

func (s *Stream) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("chat stream ping failed")
				return
			}
		}
	}
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
