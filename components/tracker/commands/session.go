package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// LoginInput carries login credentials for the chosen role.
type LoginInput struct {
	Role     tracker.Role `json:"role"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
}

type sessionService interface {
	Login(ctx context.Context, role tracker.Role, email, password string) (tracker.Session, error)
	Logout(ctx context.Context) error
}

// LoginCommand wraps SessionManager.Login.
type LoginCommand struct {
	service   sessionService
	telemetry Telemetry
}

// NewLoginCommand builds a command instance.
func NewLoginCommand(service sessionService, telemetry Telemetry) *LoginCommand {
	return &LoginCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[LoginInput] = (*LoginCommand)(nil)

// Execute signs in. Failures never reveal which credential was wrong.
func (c *LoginCommand) Execute(ctx context.Context, msg LoginInput) error {
	if c.service == nil {
		return errors.New("login command requires service")
	}
	session, err := c.service.Login(ctx, msg.Role, msg.Email, msg.Password)
	if err != nil {
		c.telemetry.Record(ctx, "tracker.command.login_failed", map[string]any{"role": string(msg.Role)})
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.login", map[string]any{"role": string(session.Role)})
	return nil
}

// LogoutInput ends the current session.
type LogoutInput struct{}

// LogoutCommand wraps SessionManager.Logout.
type LogoutCommand struct {
	service   sessionService
	telemetry Telemetry
}

// NewLogoutCommand builds a command instance.
func NewLogoutCommand(service sessionService, telemetry Telemetry) *LogoutCommand {
	return &LogoutCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[LogoutInput] = (*LogoutCommand)(nil)

// Execute signs out.
func (c *LogoutCommand) Execute(ctx context.Context, _ LogoutInput) error {
	if c.service == nil {
		return errors.New("logout command requires service")
	}
	if err := c.service.Logout(ctx); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.logout", nil)
	return nil
}
