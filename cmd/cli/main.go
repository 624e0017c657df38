package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/cmd/cli/internal/commands"
	"github.com/wolfeidau/vibemeet/internal/config"
	"github.com/wolfeidau/vibemeet/internal/logger"
	"github.com/wolfeidau/vibemeet/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Log in"`
		Register commands.RegisterCmd `cmd:"" help:"Create an account"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Log out and clear the local session"`
		Whoami   commands.WhoamiCmd   `cmd:"" help:"Show the logged in user"`
		Room     commands.RoomCmd     `cmd:"" help:"Enter, leave and inspect rooms"`
		Chat     commands.ChatCmd     `cmd:"" help:"Room chat"`
		Media    commands.MediaCmd    `cmd:"" help:"Media service credentials"`
		Screen   commands.ScreenCmd   `cmd:"" help:"Server screen share"`

		Config    string `help:"Config file (default ~/.vibemeet/config.yaml)" type:"path"`
		Server    string `help:"Server URL" env:"VIBEMEET_SERVER_URL"`
		StateDir  string `help:"Directory for session state" type:"path" env:"VIBEMEET_STATE_DIR"`
		Debug     bool   `help:"Enable debug mode."`
		Telemetry bool   `help:"Export traces and metrics over OTLP." name:"otel"`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cmd := kong.Parse(&cli,
		kong.Name("vibemeet"),
		kong.Description("Join and manage vibemeet rooms from the terminal."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	cfg, err := loadConfig()
	cmd.FatalIfErrorf(err)

	log.Logger = logger.Setup(cfg.Debug)

	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Enabled:     cfg.Telemetry.Enabled,
	})
	cmd.FatalIfErrorf(err)

	err = cmd.Run(&commands.Globals{Config: cfg, Version: version})

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := shutdown(flushCtx); serr != nil {
		log.Warn().Err(serr).Msg("telemetry shutdown failed")
	}

	cmd.FatalIfErrorf(err)
}

// loadConfig applies flags over the config file and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	if cli.Server != "" {
		cfg.ServerURL = cli.Server
	}
	if cli.StateDir != "" {
		cfg.StateDir = cli.StateDir
	}
	if cli.Debug {
		cfg.Debug = true
	}
	if cli.Telemetry {
		cfg.Telemetry.Enabled = true
	}

	return cfg, cfg.Validate()
}
