package commands

import (
	"context"
	"errors"
	"fmt"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-scptracker/components/tracker"
)

// Poll actions accepted by PollControlCommand.
const (
	PollActionPause   = "pause"
	PollActionResume  = "resume"
	PollActionRefresh = "refresh"
)

// PollControlInput pauses, resumes or refreshes one widget.
type PollControlInput struct {
	Actor
	WidgetID string `json:"widget_id"`
	Action   string `json:"action"`
}

type pollService interface {
	Pause(id tracker.WidgetID) error
	Resume(id tracker.WidgetID) error
	Refresh(id tracker.WidgetID) error
}

// PollControlCommand drives a widget poller.
type PollControlCommand struct {
	service   pollService
	telemetry Telemetry
}

// NewPollControlCommand builds a command instance.
func NewPollControlCommand(service pollService, telemetry Telemetry) *PollControlCommand {
	return &PollControlCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[PollControlInput] = (*PollControlCommand)(nil)

// Execute applies the action.
func (c *PollControlCommand) Execute(ctx context.Context, msg PollControlInput) error {
	if c.service == nil {
		return errors.New("poll command requires service")
	}
	if !msg.Role.Valid() {
		return tracker.ErrForbidden
	}
	id := tracker.ParseWidgetID(msg.WidgetID)
	var err error
	switch msg.Action {
	case PollActionPause:
		err = c.service.Pause(id)
	case PollActionResume:
		err = c.service.Resume(id)
	case PollActionRefresh:
		err = c.service.Refresh(id)
	default:
		return fmt.Errorf("unknown poll action %q", msg.Action)
	}
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, "tracker.command.poll", map[string]any{
		"widget_id": id.String(),
		"action":    msg.Action,
	})
	return nil
}
