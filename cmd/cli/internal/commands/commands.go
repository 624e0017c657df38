package commands

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/authapi"
	"github.com/wolfeidau/vibemeet/internal/client"
	"github.com/wolfeidau/vibemeet/internal/config"
	"github.com/wolfeidau/vibemeet/internal/gateway"
	"github.com/wolfeidau/vibemeet/internal/media"
	"github.com/wolfeidau/vibemeet/internal/navigation"
	"github.com/wolfeidau/vibemeet/internal/participant"
	"github.com/wolfeidau/vibemeet/internal/room"
	"github.com/wolfeidau/vibemeet/internal/roomapi"
	"github.com/wolfeidau/vibemeet/internal/session"
	"github.com/wolfeidau/vibemeet/internal/storage"
)

// Pages the CLI stands in for.
const (
	DashboardPage = "Dashboard.html"
	RoomPage      = "room.html"
)

type Globals struct {
	Config  *config.Config
	Version string

	Stdout io.Writer
	Stderr io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) stderr() io.Writer {
	if g.Stderr == nil {
		return os.Stderr
	}
	return g.Stderr
}

// consoleNotifier shows redirect messages on stderr.
type consoleNotifier struct {
	w io.Writer
}

func (n consoleNotifier) Alert(message string) {
	fmt.Fprintf(n.w, "! %s\n", message)
}

func (n consoleNotifier) Notify(message string) {
	fmt.Fprintln(n.w, message)
}

// App is everything a command needs, wired for one invocation. Durable
// state lives in the state directory; session-scoped state lasts for the
// process.
type App struct {
	cfg    *config.Config
	out    io.Writer
	errOut io.Writer

	durable  *storage.FileStore
	scoped   *storage.MemoryStore
	clients  *client.Clients
	session  *session.Store
	auth     *authapi.Client
	location *navigation.Location
	redirect *navigation.Redirector
	gateway  *gateway.Gateway
	rooms    *roomapi.Client
	media    *media.Registry

	participantID func() string
}

// newApp wires the client for a page, given relative to the server URL,
// for example "room.html?room=abc".
func (g *Globals) newApp(page string) (*App, error) {
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
	}

	durable, err := storage.NewFileStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	clients, err := client.NewClients(client.Config{
		Timeout:  cfg.Timeout,
		StateDir: cfg.StateDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create clients: %w", err)
	}

	location, err := navigation.NewLocation(strings.TrimRight(cfg.ServerURL, "/") + "/" + strings.TrimLeft(page, "/"))
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:           cfg,
		out:           g.stdout(),
		errOut:        g.stderr(),
		durable:       durable,
		scoped:        storage.NewMemoryStore(),
		clients:       clients,
		session:       session.NewStore(durable),
		auth:          authapi.New(cfg.ServerURL, clients.HTTP),
		location:      location,
		participantID: participant.Provider(durable),
	}
	app.redirect = navigation.NewRedirector(location, consoleNotifier{w: app.errOut})
	app.gateway = gateway.New(clients.HTTP, app.session, app.auth, app.redirect,
		gateway.WithParticipantID(app.participantID))
	app.rooms = roomapi.New(cfg.ServerURL, app.gateway, clients.Caching)
	app.media = media.NewRegistry(media.WithPolling(cfg.Media.AwaitAttempts, cfg.Media.AwaitInterval))

	return app, nil
}

// requireSession is the page-load check: without a valid session the
// user is sent to login.
func (a *App) requireSession(ctx context.Context) error {
	if a.session.IsValid() {
		return nil
	}

	log.Debug().Msg("no valid session")
	if err := a.session.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear session")
	}
	a.redirect.ToLogin(ctx, "no valid session")

	return fmt.Errorf("%w: run 'vibemeet login' first", gateway.ErrAuthRequired)
}

func (a *App) resolver() *room.Resolver {
	surfaces := room.NewSurfaces(a.durable, a.scoped, a.location)
	return room.NewResolver(a.rooms, surfaces, a.session, a.redirect)
}

// currentRoom returns id when set, otherwise the saved room.
func (a *App) currentRoom(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	surfaces := room.NewSurfaces(a.durable, a.scoped, a.location)
	if id = surfaces.Current(); id == "" {
		return "", fmt.Errorf("%w: pass a room id or run 'vibemeet room enter'", room.ErrNoRoom)
	}
	return id, nil
}

func roomPage(roomID string) string {
	if roomID == "" {
		return RoomPage
	}
	return RoomPage + "?" + url.Values{room.QueryParam: {roomID}}.Encode()
}
