package commands

import (
	"bytes"
	"context"
	"errors"
	"io"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// UpdateSettingsInput changes the token and/or the interval. Nil fields are
// left untouched.
type UpdateSettingsInput struct {
	Actor
	Token       *string  `json:"token,omitempty"`
	IntervalSec *float64 `json:"intervalSec,omitempty"`
}

type settingsService interface {
	SetToken(ctx context.Context, token string) error
	SetIntervalSec(ctx context.Context, sec float64) error
}

// UpdateSettingsCommand wraps Dashboard.SetToken and Dashboard.SetIntervalSec.
type UpdateSettingsCommand struct {
	service   settingsService
	telemetry Telemetry
}

// NewUpdateSettingsCommand builds a command instance.
func NewUpdateSettingsCommand(service settingsService, telemetry Telemetry) *UpdateSettingsCommand {
	return &UpdateSettingsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[UpdateSettingsInput] = (*UpdateSettingsCommand)(nil)

// Execute applies the present settings.
func (c *UpdateSettingsCommand) Execute(ctx context.Context, msg UpdateSettingsInput) error {
	if c.service == nil {
		return errors.New("settings command requires service")
	}
	if !msg.Role.Valid() {
		return tracker.ErrForbidden
	}
	actx := msg.context(ctx)
	if msg.Token != nil {
		if err := c.service.SetToken(actx, *msg.Token); err != nil {
			return err
		}
	}
	if msg.IntervalSec != nil {
		if err := c.service.SetIntervalSec(actx, *msg.IntervalSec); err != nil {
			return err
		}
	}
	c.telemetry.Record(ctx, "tracker.command.settings", map[string]any{
		"token":    msg.Token != nil,
		"interval": msg.IntervalSec != nil,
	})
	return nil
}

// ImportConfigInput carries an exported configuration document.
type ImportConfigInput struct {
	Actor
	Data []byte `json:"data"`
}

type importService interface {
	ImportConfig(ctx context.Context, role tracker.Role, r io.Reader) (tracker.DashboardState, error)
}

// ImportConfigCommand wraps Dashboard.ImportConfig.
type ImportConfigCommand struct {
	service   importService
	telemetry Telemetry
}

// NewImportConfigCommand builds a command instance.
func NewImportConfigCommand(service importService, telemetry Telemetry) *ImportConfigCommand {
	return &ImportConfigCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ImportConfigInput] = (*ImportConfigCommand)(nil)

// Execute imports the document.
func (c *ImportConfigCommand) Execute(ctx context.Context, msg ImportConfigInput) error {
	if c.service == nil {
		return errors.New("import command requires service")
	}
	state, err := c.service.ImportConfig(msg.context(ctx), msg.Role, bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.import", map[string]any{"widgets": len(state.Widgets)})
	return nil
}
