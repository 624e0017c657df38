// Package chat sends and receives room chat messages over the REST API, the
// media session data channel and the chat websocket.
package chat

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/media"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DataType marks a data channel payload as a chat message.
const DataType = "chat"

// DefaultHistoryLimit matches the server default page size.
const DefaultHistoryLimit = 50

// API is the part of the room API chat needs.
type API interface {
	SendChatMessage(ctx context.Context, roomID string, msg roomapi.ChatMessage) error
	ChatMessages(ctx context.Context, roomID string, limit int) ([]roomapi.ChatMessage, error)
}

// DisplayNamer supplies the name messages are sent under.
type DisplayNamer interface {
	DisplayName() string
}

// DataPayload is the data channel envelope.
type DataPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Service sends chat messages for the current participant.
type Service struct {
	api     API
	names   DisplayNamer
	session media.Session
}

func NewService(api API, names DisplayNamer) *Service {
	return &Service{api: api, names: names}
}

// Attach sets the media session messages are mirrored onto. A nil session
// detaches.
func (s *Service) Attach(session media.Session) {
	s.session = session
}

// Send posts text to the room. Blank text is ignored. When a media session
// is attached the message is also published on its data channel; failures
// there are logged and do not affect the result. Without a room id the
// message only goes to the attached session.
func (s *Service) Send(ctx context.Context, roomID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var err error
	if roomID != "" {
		err = s.api.SendChatMessage(ctx, roomID, roomapi.ChatMessage{
			Content:     text,
			DisplayName: s.names.DisplayName(),
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("chat message failed")
		} else {
			record(ctx, "api")
		}
	}

	if s.session != nil {
		s.publish(ctx, text)
	}

	return err
}

func (s *Service) publish(ctx context.Context, text string) {
	payload, err := json.Marshal(DataPayload{Type: DataType, Message: text})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode chat payload")
		return
	}

	if err := s.session.PublishData(ctx, payload); err != nil {
		log.Warn().Err(err).Msg("failed to publish chat over media session")
		return
	}
	record(ctx, "data")
}

// History returns recent messages, oldest first as the server orders them.
func (s *Service) History(ctx context.Context, roomID string, limit int) ([]roomapi.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.api.ChatMessages(ctx, roomID, limit)
}

// ParseData extracts the chat text from a data channel message. Payloads of
// other types or that fail to decode report false.
func ParseData(msg media.DataMessage) (string, bool) {
	var payload DataPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return "", false
	}
	if payload.Type != DataType {
		return "", false
	}
	return payload.Message, true
}

func record(ctx context.Context, channel string) {
	telemetry.GetMetrics().ChatMessagesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("channel", channel)))
}
