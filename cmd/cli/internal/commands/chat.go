package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfeidau/vibemeet/internal/chat"
	"github.com/wolfeidau/vibemeet/internal/gateway"
	"github.com/wolfeidau/vibemeet/internal/media"
)

type ChatCmd struct {
	Send    ChatSendCmd    `cmd:"" help:"Send a chat message"`
	History ChatHistoryCmd `cmd:"" help:"Show recent chat messages"`
	Follow  ChatFollowCmd  `cmd:"" help:"Stream chat messages as they arrive"`
}

type ChatSendCmd struct {
	Message []string `arg:"" help:"Message text"`
	Room    string   `help:"Room id; defaults to the current room"`
}

func (c *ChatSendCmd) Run(ctx context.Context, globals *Globals) error {
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

	return chat.NewService(app.rooms, app.session).Send(ctx, id, strings.Join(c.Message, " "))
}

type ChatHistoryCmd struct {
	Room  string `help:"Room id; defaults to the current room"`
	Limit int    `help:"Number of messages to show (max 100)" default:"50"`
}

func (c *ChatHistoryCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	id, err := app.currentRoom(c.Room)
	if err != nil {
		return err
	}

	messages, err := chat.NewService(app.rooms, app.session).History(ctx, id, c.Limit)
	if err != nil {
		return err
	}

	for _, m := range messages {
		fmt.Fprintf(app.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.DisplayName, m.Content)
	}
	return nil
}

type ChatFollowCmd struct {
	Room string `help:"Room id; defaults to the current room"`
}

func (c *ChatFollowCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(roomPage(c.Room))
	if err != nil {
		return err
	}

	id, err := app.currentRoom(c.Room)
	if err != nil {
		return err
	}

	wsURL, err := chat.StreamURL(app.cfg.ServerURL, id)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set(gateway.ParticipantHeader, app.participantID())

	stream, err := chat.Dial(ctx, wsURL, header)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.errOut, "Following chat in room %s (Ctrl+C to stop)\n", id)

	return stream.Listen(ctx, func(data []byte) {
		if text, ok := chat.ParseData(media.DataMessage{Payload: data}); ok {
			fmt.Fprintln(app.out, text)
			return
		}
		fmt.Fprintln(app.out, string(data))
	})
}
