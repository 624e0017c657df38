package roomapi

import (
	"bytes"
	"encoding/json"
	"time"
)

// ID is an identifier the API may encode as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Room statuses.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Room is the room descriptor returned by create and join.
type Room struct {
	ID              string       `json:"id"`
	LiveKitRoomName string       `json:"livekit_room_name,omitempty"`
	Title           string       `json:"title,omitempty"`
	Status          string       `json:"status,omitempty"`
	MaxParticipants int          `json:"max_participants,omitempty"`
	CreatedAt       time.Time    `json:"created_at,omitzero"`
	Participant     *Participant `json:"participant,omitempty"`
}

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	Title           string `json:"title"`
	MaxParticipants int    `json:"max_participants"`
	DisplayName     string `json:"display_name"`
}

type displayNameBody struct {
	DisplayName string `json:"display_name"`
}

// MediaToken is the credential for the real-time media service.
type MediaToken struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Participant roles.
const (
	RoleHost        = "host"
	RoleParticipant = "participant"
)

// Participant is a member of a room. ParticipantID is the client's
// anonymous id; ID is the server's membership record.
type Participant struct {
	ID            ID        `json:"id"`
	RoomID        string    `json:"room_id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	JoinedAt      time.Time `json:"joined_at,omitzero"`
}

// IsHost reports whether the participant created the room.
func (p Participant) IsHost() bool {
	return p.Role == RoleHost
}

// Is reports whether the record belongs to the given client participant id.
func (p Participant) Is(participantID string) bool {
	if participantID == "" {
		return false
	}
	return p.ParticipantID == participantID || string(p.ID) == participantID
}

// ChatMessage is a persisted chat message.
type ChatMessage struct {
	ID            ID        `json:"id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	MessageType   string    `json:"message_type,omitempty"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// ServerInfo describes where the media service is reachable.
type ServerInfo struct {
	HostIP      string      `json:"host_ip"`
	LiveKitPort json.Number `json:"livekit_port"`
	LiveKitURL  string      `json:"livekit_url"`
	APIBase     string      `json:"api_base,omitempty"`
}
