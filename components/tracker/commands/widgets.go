package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// AddWidgetsInput adds the identifiers found in Input.
type AddWidgetsInput struct {
	Actor
	Input string `json:"input"`
	Name  string `json:"name"`
}

type addService interface {
	AddWidgets(ctx context.Context, role tracker.Role, input, name string) ([]tracker.Widget, error)
}

// AddWidgetsCommand wraps Dashboard.AddWidgets.
type AddWidgetsCommand struct {
	service   addService
	telemetry Telemetry
}

// NewAddWidgetsCommand creates a command instance.
func NewAddWidgetsCommand(service addService, telemetry Telemetry) *AddWidgetsCommand {
	return &AddWidgetsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddWidgetsInput] = (*AddWidgetsCommand)(nil)

// Execute adds the widgets.
func (c *AddWidgetsCommand) Execute(ctx context.Context, msg AddWidgetsInput) error {
	if c.service == nil {
		return errors.New("add command requires service")
	}
	widgets, err := c.service.AddWidgets(msg.context(ctx), msg.Role, msg.Input, msg.Name)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.add", map[string]any{
		"input":   msg.Input,
		"widgets": len(widgets),
	})
	return nil
}

// RemoveWidgetInput removes the widget at Index.
type RemoveWidgetInput struct {
	Actor
	Index int `json:"index"`
}

type removeService interface {
	RemoveWidget(ctx context.Context, role tracker.Role, index int) (tracker.Widget, error)
}

// RemoveWidgetCommand wraps Dashboard.RemoveWidget.
type RemoveWidgetCommand struct {
	service   removeService
	telemetry Telemetry
}

// NewRemoveWidgetCommand builds a command instance.
func NewRemoveWidgetCommand(service removeService, telemetry Telemetry) *RemoveWidgetCommand {
	return &RemoveWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RemoveWidgetInput] = (*RemoveWidgetCommand)(nil)

// Execute removes the widget.
func (c *RemoveWidgetCommand) Execute(ctx context.Context, msg RemoveWidgetInput) error {
	if c.service == nil {
		return errors.New("remove command requires service")
	}
	removed, err := c.service.RemoveWidget(msg.context(ctx), msg.Role, msg.Index)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.remove", map[string]any{"widget_id": removed.ID.String()})
	return nil
}

// RenameWidgetInput renames the widget at Index.
type RenameWidgetInput struct {
	Actor
	Index int    `json:"index"`
	Name  string `json:"name"`
}

type renameService interface {
	RenameWidget(ctx context.Context, role tracker.Role, index int, name string) (tracker.Widget, error)
}

// RenameWidgetCommand wraps Dashboard.RenameWidget.
type RenameWidgetCommand struct {
	service   renameService
	telemetry Telemetry
}

// NewRenameWidgetCommand builds a command instance.
func NewRenameWidgetCommand(service renameService, telemetry Telemetry) *RenameWidgetCommand {
	return &RenameWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RenameWidgetInput] = (*RenameWidgetCommand)(nil)

// Execute renames the widget.
func (c *RenameWidgetCommand) Execute(ctx context.Context, msg RenameWidgetInput) error {
	if c.service == nil {
		return errors.New("rename command requires service")
	}
	renamed, err := c.service.RenameWidget(msg.context(ctx), msg.Role, msg.Index, msg.Name)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.rename", map[string]any{"widget_id": renamed.ID.String()})
	return nil
}

// ClearWidgetsInput empties the dashboard for the actor's role.
type ClearWidgetsInput struct {
	Actor
}

type clearService interface {
	ClearWidgets(ctx context.Context, role tracker.Role) error
}

// ClearWidgetsCommand wraps Dashboard.ClearWidgets.
type ClearWidgetsCommand struct {
	service   clearService
	telemetry Telemetry
}

// NewClearWidgetsCommand builds a command instance.
func NewClearWidgetsCommand(service clearService, telemetry Telemetry) *ClearWidgetsCommand {
	return &ClearWidgetsCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ClearWidgetsInput] = (*ClearWidgetsCommand)(nil)

// Execute clears the widget list.
func (c *ClearWidgetsCommand) Execute(ctx context.Context, msg ClearWidgetsInput) error {
	if c.service == nil {
		return errors.New("clear command requires service")
	}
	if err := c.service.ClearWidgets(msg.context(ctx), msg.Role); err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.clear", map[string]any{"role": string(msg.Role)})
	return nil
}
