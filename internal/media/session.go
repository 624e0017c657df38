// Package media defines the capability the room core needs from a
// real-time media service and provides ways to obtain and address one.
package media

import (
	"context"
	"errors"
)

var (
	ErrNotConnected          = errors.New("media session not connected")
	ErrAlreadyConnected      = errors.New("media session already connected")
	ErrCapabilityUnavailable = errors.New("media capability unavailable")
	ErrRenegotiationRequired = errors.New("tracks cannot be changed after connect")
)

// TrackKind is the media type of a track.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// LocalTrack describes a track the client offers to the room.
type LocalTrack struct {
	ID     string
	Kind   TrackKind
	Source string

	// DeviceID is the selected capture device. It is passed through as is.
	DeviceID string
}

// RemoteTrack is a track published by another participant.
type RemoteTrack struct {
	ID            string
	ParticipantID string
	Kind          TrackKind
	Source        string
}

// ParticipantEvent reports a participant arriving or leaving.
type ParticipantEvent struct {
	ParticipantID string
	Name          string
	Joined        bool
}

// DataMessage is a payload received on the session's data channel.
type DataMessage struct {
	ParticipantID string
	Payload       []byte
}

// Session is the capability set the room core uses. Adapters over concrete
// media SDKs implement it.
type Session interface {
	Connect(ctx context.Context, url, token string) error
	PublishLocal(ctx context.Context, track LocalTrack) error
	Unpublish(trackID string) error
	PublishData(ctx context.Context, payload []byte) error
	OnRemoteTrack(fn func(RemoteTrack))
	OnParticipantChange(fn func(ParticipantEvent))
	OnData(fn func(DataMessage))
	Disconnect() error
}

// Factory creates an unconnected session.
type Factory func() (Session, error)
