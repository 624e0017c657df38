// Package room decides which room the client is in and keeps that decision
// consistent everywhere it is recorded.
package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/gateway"
	"github.com/wolfeidau/vibemeet/internal/navigation"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
	"github.com/wolfeidau/vibemeet/internal/session"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// ErrNoRoom is returned when an operation needs a room id and none is known.
var ErrNoRoom = errors.New("no room")

// NotFoundMessage is shown before returning to the root after a join for a
// room that no longer exists.
const NotFoundMessage = "Room not found or no longer active. Check the room ID."

// Outcome is the terminal state of a resolution.
type Outcome int

const (
	Joined Outcome = iota + 1
	Created
	FailedRedirected
)

func (o Outcome) String() string {
	switch o {
	case Joined:
		return "joined"
	case Created:
		return "created"
	case FailedRedirected:
		return "failed_redirected"
	default:
		return "unknown"
	}
}

// Source records where the room id came from.
type Source string

const (
	SourceURL     Source = "url"
	SourceStorage Source = "storage"
	SourceNone    Source = "none"
)

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome Outcome
	RoomID  string
	Source  Source
	Room    *roomapi.Room

	// NewlyCreated marks a room created by this resolution, so the caller
	// can offer to share its id once.
	NewlyCreated bool
}

// API is the subset of the room API the resolver needs.
type API interface {
	CreateRoom(ctx context.Context, req roomapi.CreateRoomRequest) (*roomapi.Room, error)
	JoinRoom(ctx context.Context, roomID, displayName string) (*roomapi.Room, error)
	LeaveRoom(ctx context.Context, roomID string) error
}

// DisplayNamer provides the normalized display name.
type DisplayNamer interface {
	DisplayName() string
}

// Navigator is the part of the redirector the resolver drives.
type Navigator interface {
	ToRoot(ctx context.Context, reason, message string) bool
	Navigate(ref string) error
}

// Resolver picks the room to enter, joins or creates it, and records the
// result on every surface.
type Resolver struct {
	api       API
	surfaces  *Surfaces
	names     DisplayNamer
	navigator Navigator
}

func NewResolver(api API, surfaces *Surfaces, names DisplayNamer, navigator Navigator) *Resolver {
	return &Resolver{api: api, surfaces: surfaces, names: names, navigator: navigator}
}

// Resolve runs the resolution. The URL parameter beats any persisted id. A
// room that is missing or inactive clears every surface and returns to the
// application root with a nil error; any other join failure is returned and
// nothing is retried or cleared.
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "room.Resolve")
	defer span.End()

	res, err := r.resolve(ctx)

	outcome := "error"
	if res != nil {
		outcome = res.Outcome.String()
		span.SetAttributes(attribute.String("room.id", res.RoomID), attribute.String("room.source", string(res.Source)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("room.outcome", outcome))
	telemetry.GetMetrics().RoomResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return res, err
}

func (r *Resolver) resolve(ctx context.Context) (*Resolution, error) {
	id, source := r.surfaces.FromURL(), SourceURL
	if id == "" {
		id, source = r.surfaces.Saved(), SourceStorage
	}

	displayName := session.NormalizeDisplayName(r.names.DisplayName())

	if id == "" {
		return r.create(ctx, displayName)
	}

	log.Debug().Str("room_id", id).Str("source", string(source)).Msg("joining room")

	room, err := r.api.JoinRoom(ctx, id, displayName)
	if err != nil {
		if errors.Is(err, gateway.ErrAuthRequired) {
			return nil, err
		}

		if roomapi.IsNotFound(err) {
			log.Warn().Err(err).Str("room_id", id).Msg("room not found, clearing saved room")

			if cerr := r.surfaces.Clear(); cerr != nil {
				log.Error().Err(cerr).Msg("failed to clear saved room")
			}
			r.navigator.ToRoot(ctx, "room not found", NotFoundMessage)

			return &Resolution{Outcome: FailedRedirected, RoomID: id, Source: source}, nil
		}

		return nil, fmt.Errorf("failed to join room %s: %w", id, err)
	}

	if err := r.surfaces.Persist(id); err != nil {
		return nil, err
	}

	log.Info().Str("room_id", id).Msg("joined room")

	return &Resolution{Outcome: Joined, RoomID: id, Source: source, Room: room}, nil
}

func (r *Resolver) create(ctx context.Context, displayName string) (*Resolution, error) {
	room, err := r.api.CreateRoom(ctx, roomapi.CreateRoomRequest{
		Title:           roomapi.DefaultRoomTitle,
		MaxParticipants: roomapi.DefaultMaxParticipants,
		DisplayName:     displayName,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrAuthRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if err := r.surfaces.Persist(room.ID); err != nil {
		return nil, err
	}

	log.Info().Str("room_id", room.ID).Msg("created room")

	return &Resolution{Outcome: Created, RoomID: room.ID, Source: SourceNone, Room: room, NewlyCreated: true}, nil
}

// Leave tells the server the participant left, clears every surface and
// navigates to the application root. The server call is best effort.
func (r *Resolver) Leave(ctx context.Context, roomID string) error {
	if roomID == "" {
		roomID = r.surfaces.Current()
	}

	if roomID != "" {
		if err := r.api.LeaveRoom(ctx, roomID); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("failed to notify server of leave")
		}
		telemetry.GetMetrics().RoomLeavesTotal.Add(ctx, 1)
	}

	if err := r.surfaces.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear saved room")
	}

	return r.navigator.Navigate(navigation.RootPath)
}

// Surfaces exposes the room id surfaces.
func (r *Resolver) Surfaces() *Surfaces {
	return r.surfaces
}
