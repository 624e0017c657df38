package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/chat"
	"github.com/wolfeidau/vibemeet/internal/media"
	"github.com/wolfeidau/vibemeet/internal/room"
)

// peerCapability is the registry name of the built-in WebRTC session.
const peerCapability = "peer"

type MediaCmd struct {
	Token MediaTokenCmd `cmd:"" help:"Fetch a media token and connection URL for a room"`
}

type MediaTokenCmd struct {
	Room string `arg:"" optional:"" help:"Room id; defaults to the current room"`
}

func (c *MediaTokenCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	if err := app.requireSession(ctx); err != nil {
		return err
	}

	id, err := app.currentRoom(c.Room)
	if err != nil {
		return err
	}

	tok, err := app.rooms.MediaToken(ctx, id, app.session.DisplayName())
	if err != nil {
		return err
	}

	connectURL := media.ConnectURL(tok.URL, app.rooms.ServerInfo(ctx), app.location.URL())

	fmt.Fprintf(app.out, "URL:   %s\n", connectURL)
	fmt.Fprintf(app.out, "Token: %s\n", tok.Token)
	return nil
}

type ScreenCmd struct {
	Watch ScreenWatchCmd `cmd:"" help:"Connect to the server screen share; lines on stdin are sent as chat"`
}

type ScreenWatchCmd struct {
	Room string `help:"Room id chat lines are sent to; defaults to the current room"`
}

func (c *ScreenWatchCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	if err := app.requireSession(ctx); err != nil {
		return err
	}

	roomID, err := app.currentRoom(c.Room)
	switch {
	case errors.Is(err, room.ErrNoRoom):
		fmt.Fprintln(app.errOut, "no room selected, chat lines go to the media session only")
	case err != nil:
		return err
	}

	loadMediaAdapters(app)

	factory, err := app.media.Await(ctx, peerCapability)
	if err != nil {
		return err
	}

	sess, err := factory()
	if err != nil {
		return fmt.Errorf("failed to create media session: %w", err)
	}

	sess.OnRemoteTrack(func(t media.RemoteTrack) {
		fmt.Fprintf(app.errOut, "receiving %s track %s\n", t.Kind, t.ID)
	})
	sess.OnParticipantChange(func(e media.ParticipantEvent) {
		if e.Joined {
			fmt.Fprintf(app.errOut, "%s joined\n", e.Name)
			return
		}
		fmt.Fprintf(app.errOut, "%s left\n", e.Name)
	})
	sess.OnData(func(m media.DataMessage) {
		if text, ok := chat.ParseData(m); ok {
			fmt.Fprintln(app.out, text)
		}
	})

	if err := sess.Connect(ctx, app.cfg.ServerURL, app.session.AccessToken()); err != nil {
		return err
	}
	defer func() {
		if err := sess.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("failed to disconnect media session")
		}
	}()

	svc := chat.NewService(app.rooms, app.session)
	svc.Attach(sess)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := svc.Send(ctx, roomID, line); err != nil {
				fmt.Fprintf(app.errOut, "! message not sent: %v\n", err)
			}
		}
	}
}

// loadMediaAdapters makes the built-in media capabilities available on the
// app's registry. Consumers look them up with Registry.Await, which also
// picks up adapters registered after it started waiting.
func loadMediaAdapters(app *App) {
	app.media.Register(peerCapability, media.PeerFactory(app.clients.HTTP, peerOptions(app)...))
}

func peerOptions(app *App) []media.PeerOption {
	opts := []media.PeerOption{
		media.WithCandidatePolling(app.cfg.Media.CandidatePolls, app.cfg.Media.CandidateInterval),
	}
	if len(app.cfg.Media.ICEServers) > 0 {
		opts = append(opts, media.WithICEServers(webrtc.ICEServer{URLs: app.cfg.Media.ICEServers}))
	}
	return opts
}
