package httpapi

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
)

// Executor is the transport-neutral API surface shared by HTTP adapters.
type Executor interface {
	AddWidgets(ctx context.Context, input commands.AddWidgetsInput) error
	RemoveWidget(ctx context.Context, input commands.RemoveWidgetInput) error
	RenameWidget(ctx context.Context, input commands.RenameWidgetInput) error
	ClearWidgets(ctx context.Context, input commands.ClearWidgetsInput) error
	UpdateSettings(ctx context.Context, input commands.UpdateSettingsInput) error
	ImportConfig(ctx context.Context, input commands.ImportConfigInput) error
	PollControl(ctx context.Context, input commands.PollControlInput) error
	Login(ctx context.Context, input commands.LoginInput) error
	Logout(ctx context.Context, input commands.LogoutInput) error
}

// CommandExecutor adapts go-command commanders to Executor.
type CommandExecutor struct {
	AddCommander      gocommand.Commander[commands.AddWidgetsInput]
	RemoveCommander   gocommand.Commander[commands.RemoveWidgetInput]
	RenameCommander   gocommand.Commander[commands.RenameWidgetInput]
	ClearCommander    gocommand.Commander[commands.ClearWidgetsInput]
	SettingsCommander gocommand.Commander[commands.UpdateSettingsInput]
	ImportCommander   gocommand.Commander[commands.ImportConfigInput]
	PollCommander     gocommand.Commander[commands.PollControlInput]
	LoginCommander    gocommand.Commander[commands.LoginInput]
	LogoutCommander   gocommand.Commander[commands.LogoutInput]
}

var _ Executor = (*CommandExecutor)(nil)

func (e *CommandExecutor) AddWidgets(ctx context.Context, input commands.AddWidgetsInput) error {
	return execute(ctx, e.AddCommander, input, "add")
}

func (e *CommandExecutor) RemoveWidget(ctx context.Context, input commands.RemoveWidgetInput) error {
	return execute(ctx, e.RemoveCommander, input, "remove")
}

func (e *CommandExecutor) RenameWidget(ctx context.Context, input commands.RenameWidgetInput) error {
	return execute(ctx, e.RenameCommander, input, "rename")
}

func (e *CommandExecutor) ClearWidgets(ctx context.Context, input commands.ClearWidgetsInput) error {
	return execute(ctx, e.ClearCommander, input, "clear")
}

func (e *CommandExecutor) UpdateSettings(ctx context.Context, input commands.UpdateSettingsInput) error {
	return execute(ctx, e.SettingsCommander, input, "settings")
}

func (e *CommandExecutor) ImportConfig(ctx context.Context, input commands.ImportConfigInput) error {
	return execute(ctx, e.ImportCommander, input, "import")
}

func (e *CommandExecutor) PollControl(ctx context.Context, input commands.PollControlInput) error {
	return execute(ctx, e.PollCommander, input, "poll")
}

func (e *CommandExecutor) Login(ctx context.Context, input commands.LoginInput) error {
	return execute(ctx, e.LoginCommander, input, "login")
}

func (e *CommandExecutor) Logout(ctx context.Context, input commands.LogoutInput) error {
	return execute(ctx, e.LogoutCommander, input, "logout")
}

func execute[T any](ctx context.Context, cmd gocommand.Commander[T], input T, name string) error {
	if cmd == nil {
		return errors.New("httpapi: " + name + " commander not configured")
	}
	return cmd.Execute(ctx, input)
}
