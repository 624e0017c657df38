package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/authapi"
	"github.com/wolfeidau/vibemeet/internal/session"
)

var errInvalidAuthResponse = errors.New("server returned an incomplete session")

type LoginCmd struct {
	Email    string `arg:"" help:"Account email"`
	Password string `help:"Account password (read from stdin when omitted)" env:"VIBEMEET_PASSWORD"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(DashboardPage)
	if err != nil {
		return err
	}

	password := c.Password
	if password == "" {
		if password, err = readSecret(os.Stdin, app.errOut, "Password: "); err != nil {
			return err
		}
	}

	resp, err := app.auth.Login(ctx, strings.TrimSpace(c.Email), password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if !app.session.Save(resp) {
		return errInvalidAuthResponse
	}

	fmt.Fprintf(app.out, "Logged in as %s\n", app.session.DisplayName())
	return nil
}

type RegisterCmd struct {
	Name            string `help:"Full name" required:""`
	Email           string `help:"Account email" required:""`
	Password        string `help:"Account password" env:"VIBEMEET_PASSWORD" required:""`
	PasswordConfirm string `help:"Repeat the password" name:"confirm" required:""`
}

func (c *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(DashboardPage)
	if err != nil {
		return err
	}

	resp, err := app.auth.Register(ctx, authapi.RegisterRequest{
		Name:            c.Name,
		Email:           c.Email,
		Password:        c.Password,
		PasswordConfirm: c.PasswordConfirm,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if !app.session.Save(resp) {
		return errInvalidAuthResponse
	}

	fmt.Fprintf(app.out, "Registered and logged in as %s\n", app.session.DisplayName())
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(DashboardPage)
	if err != nil {
		return err
	}

	if app.session.AccessToken() != "" {
		if err := app.auth.Logout(ctx, app.session.TokenSource()); err != nil {
			log.Warn().Err(err).Msg("server logout failed")
		}
	}

	if err := app.session.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	fmt.Fprintln(app.out, "Logged out")
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := globals.newApp(DashboardPage)
	if err != nil {
		return err
	}

	if err := app.requireSession(ctx); err != nil {
		return err
	}

	user, _ := app.session.User()
	fmt.Fprintf(app.out, "%-13s%s\n", "Name:", app.session.DisplayName())
	fmt.Fprintf(app.out, "%-13s%s\n", "Email:", user.Email)
	fmt.Fprintf(app.out, "%-13s%s\n", "User ID:", user.ID)
	fmt.Fprintf(app.out, "%-13s%s\n", "Participant:", app.participantID())

	claims, err := session.ParseClaims(app.session.AccessToken())
	if err != nil {
		log.Debug().Err(err).Msg("access token is not a readable JWT")
		return nil
	}

	if !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(time.Now()) {
			state = "expired, refreshed on next request"
		}
		fmt.Fprintf(app.out, "%-13s%s until %s\n", "Token:", state, claims.ExpiresAt.Format(time.RFC3339))
	}

	return nil
}

func readSecret(r io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}
