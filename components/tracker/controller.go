package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

// DashboardView is the read side of a Dashboard needed to build pages.
type DashboardView interface {
	Title() string
	State() DashboardState
	Widgets() []Widget
	Statuses() []WidgetStatus
}

// ChartRenderer renders the utilization chart of a widget.
type ChartRenderer interface {
	Render(id WidgetID, snapshot StatusSnapshot) (string, error)
}

// ControllerOptions configures the page controller.
type ControllerOptions struct {
	Dashboard DashboardView
	Sessions  *SessionManager
	Charts    ChartRenderer
	Renderer  Renderer
	Template  string
	Clock     Clock
}

// Controller builds the dashboard view model and renders it.
type Controller struct {
	opts ControllerOptions
}

// NewController wires the dashboard into a controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.Template == "" {
		opts.Template = "dashboard.html"
	}
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	return &Controller{opts: opts}
}

// ViewModel assembles the page payload: screen, session, settings and one
// entry per widget in list order.
func (c *Controller) ViewModel(_ context.Context) (map[string]any, error) {
	if c.opts.Dashboard == nil {
		return nil, errors.New("tracker: controller requires a dashboard")
	}
	role := Role("")
	screen := ScreenDashboard
	session := map[string]any{}
	if c.opts.Sessions != nil {
		screen = c.opts.Sessions.Screen()
		if s, ok := c.opts.Sessions.Current(); ok {
			role = s.Role
			session = map[string]any{
				"role":      string(s.Role),
				"email":     s.Email,
				"is_admin":  s.Role.IsAdmin(),
				"logged_in": RelativeTime(s.LoggedInAt, c.opts.Clock.Now()),
			}
		}
	}

	state := c.opts.Dashboard.State()
	widgets := c.opts.Dashboard.Widgets()
	statuses := c.opts.Dashboard.Statuses()

	items := make([]map[string]any, 0, len(widgets))
	for i, w := range widgets {
		status := WidgetStatus{ID: w.ID, State: PollIdle}
		if i < len(statuses) && statuses[i].ID.String() == w.ID.String() {
			status = statuses[i]
		}
		item, err := c.widgetView(i, w, status, role)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return map[string]any{
		"title":   c.opts.Dashboard.Title(),
		"screen":  string(screen),
		"session": session,
		"settings": map[string]any{
			"has_token":    state.Token != "",
			"interval_sec": state.IntervalSec,
			"effective":    EffectiveInterval(state.IntervalSec).String(),
		},
		"can_import":  role.IsAdmin(),
		"can_rename":  role.IsAdmin(),
		"export_name": ExportFileName(c.opts.Dashboard.Title()),
		"widgets":     items,
	}, nil
}

func (c *Controller) widgetView(index int, w Widget, status WidgetStatus, role Role) (map[string]any, error) {
	item := map[string]any{
		"index":      index,
		"id":         w.ID.String(),
		"name":       w.Name,
		"locked":     w.Locked,
		"can_remove": !w.Locked || role.IsAdmin(),
		"state":      string(status.State),
		"message":    status.Message,
		"loading":    status.Loading,
		"interval":   status.IntervalSec,
		"updated":    RelativeTime(status.UpdatedAt, c.opts.Clock.Now()),
	}
	if status.Snapshot == nil {
		return item, nil
	}
	snap := *status.Snapshot
	item["scp_number"] = snap.SCPNumber
	item["firmware"] = snap.FirmwareVersion
	item["model"] = snap.Model
	item["mac"] = snap.MAC
	item["capacity"] = humanize.Comma(snap.Capacity)
	item["total"] = humanize.Comma(snap.Total)
	item["available"] = humanize.Comma(snap.Available())
	item["utilization"] = fmt.Sprintf("%.1f", snap.Utilization())
	if c.opts.Charts != nil {
		html, err := c.opts.Charts.Render(w.ID, snap)
		if err != nil {
			return nil, err
		}
		item["chart"] = html
	}
	return item, nil
}

// RenderTemplate renders the view model with the configured template.
func (c *Controller) RenderTemplate(ctx context.Context, out io.Writer) error {
	if c.opts.Renderer == nil {
		return errors.New("tracker: controller requires a renderer")
	}
	data, err := c.ViewModel(ctx)
	if err != nil {
		return err
	}
	_, err = c.opts.Renderer.Render(c.opts.Template, data, out)
	return err
}

// RelativeTime formats t relative to now, e.g. "3 seconds ago".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
