package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/vibemeet/internal/room"
)

var errRoomUnavailable = errors.New("room unavailable")

type RoomCmd struct {
	Enter        RoomEnterCmd        `cmd:"" help:"Join a room, or create one when none is known"`
	Leave        RoomLeaveCmd        `cmd:"" help:"Leave the current room"`
	Participants RoomParticipantsCmd `cmd:"" help:"List the participants of a room"`
}

type RoomEnterCmd struct {
	Room string `arg:"" optional:"" help:"Room id; defaults to the last room entered"`
	Name string `help:"Display name to join with"`
}

func (c *RoomEnterCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	if err := app.requireSession(ctx); err != nil {
		return err
	}

	if c.Name != "" {
		if err := app.session.SetDisplayName(c.Name); err != nil {
			return fmt.Errorf("failed to save display name: %w", err)
		}
	}

	res, err := app.resolver().Resolve(ctx)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case room.FailedRedirected:
		return fmt.Errorf("%w: %s", errRoomUnavailable, res.RoomID)
	case room.Created:
		fmt.Fprintf(app.out, "Created room %s\n", res.RoomID)
	default:
		fmt.Fprintf(app.out, "Joined room %s\n", res.RoomID)
	}

	if res.Room != nil && res.Room.Title != "" {
		fmt.Fprintf(app.out, "Title: %s\n", res.Room.Title)
	}
	if res.Room != nil && res.Room.Participant != nil {
		fmt.Fprintf(app.out, "Joined as %s (%s)\n", res.Room.Participant.DisplayName, res.Room.Participant.Role)
	}

	if res.NewlyCreated {
		fmt.Fprintf(app.out, "Share this link to invite others: %s\n", app.location.String())
	}

	return nil
}

type RoomLeaveCmd struct {
	Room string `arg:"" optional:"" help:"Room id; defaults to the current room"`
}

func (c *RoomLeaveCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	resolver := app.resolver()
	id := resolver.Surfaces().Current()
	if id == "" {
		fmt.Fprintln(app.out, "Not in a room")
		return nil
	}

	if err := resolver.Leave(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Left room %s\n", id)
	return nil
}

type RoomParticipantsCmd struct {
	Room string `arg:"" optional:"" help:"Room id; defaults to the current room"`
}

func (c *RoomParticipantsCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	id, err := app.currentRoom(c.Room)
	if err != nil {
		return err
	}

	participants, err := app.rooms.Participants(ctx, id)
	if err != nil {
		return err
	}

	if len(participants) == 0 {
		fmt.Fprintln(app.out, "No participants.")
		return nil
	}

	self := app.participantID()
	w := tabwriter.NewWriter(app.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tROLE\tJOINED\tYOU")
	for _, p := range participants {
		joined := "-"
		if !p.JoinedAt.IsZero() {
			joined = p.JoinedAt.Local().Format(time.Kitchen)
		}
		you := ""
		if p.Is(self) {
			you = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.DisplayName, p.Role, joined, you)
	}

	return w.Flush()
}
