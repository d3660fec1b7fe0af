package tracker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDashboardView struct {
	state    DashboardState
	statuses []WidgetStatus
}

func (s *stubDashboardView) Title() string            { return DefaultTitle }
func (s *stubDashboardView) State() DashboardState    { return s.state }
func (s *stubDashboardView) Widgets() []Widget        { return s.state.Widgets }
func (s *stubDashboardView) Statuses() []WidgetStatus { return s.statuses }

type stubRenderer struct {
	lastTemplate string
	lastPayload  map[string]any
	err          error
}

func (r *stubRenderer) Render(name string, data any, out ...io.Writer) (string, error) {
	r.lastTemplate = name
	if payload, ok := data.(map[string]any); ok {
		r.lastPayload = payload
	}
	if len(out) > 0 && out[0] != nil {
		out[0].Write([]byte("<html></html>"))
	}
	return "<html></html>", r.err
}

type stubCharts struct {
	err error
}

func (s stubCharts) Render(id WidgetID, _ StatusSnapshot) (string, error) {
	return "<div id=\"chart-" + id.String() + "\"></div>", s.err
}

func controllerFixture(t *testing.T, role Role) (*Controller, *stubRenderer, *VirtualClock) {
	t.Helper()
	clock := NewVirtualClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	view := &stubDashboardView{
		state: DashboardState{
			Token:       "abc",
			IntervalSec: 1,
			Widgets: []Widget{
				{ID: NumericID(6533), Name: "Lobby", Locked: true},
				{ID: TextID("gate"), Name: "Gate"},
			},
		},
		statuses: []WidgetStatus{
			{
				ID:          NumericID(6533),
				State:       PollPolling,
				IntervalSec: 2,
				Snapshot:    &StatusSnapshot{SCPNumber: "6533", Capacity: 12000, Total: 3000, Model: "EP4502"},
				UpdatedAt:   clock.Now().Add(-30 * time.Second),
			},
			{ID: TextID("gate"), State: PollError, Message: "HTTP 401 - denied"},
		},
	}
	store := newFlakyStore()
	sessions := newTestSessions(t, store)
	if role != "" {
		email, password := "user@example.com", "user-secret"
		if role == RoleAdmin {
			email, password = "admin@example.com", "admin-secret"
		}
		_, err := sessions.Login(context.Background(), role, email, password)
		require.NoError(t, err)
		require.NoError(t, sessions.OpenDashboard())
	}
	renderer := &stubRenderer{}
	controller := NewController(ControllerOptions{
		Dashboard: view,
		Sessions:  sessions,
		Charts:    stubCharts{},
		Renderer:  renderer,
		Clock:     clock,
	})
	return controller, renderer, clock
}

func TestControllerViewModel(t *testing.T) {
	controller, _, _ := controllerFixture(t, RoleUser)

	vm, err := controller.ViewModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, vm["title"])
	assert.Equal(t, "dashboard", vm["screen"])
	assert.Equal(t, false, vm["can_import"])
	assert.Equal(t, "scp-tracker-config.json", vm["export_name"])

	settings := vm["settings"].(map[string]any)
	assert.Equal(t, true, settings["has_token"])
	assert.Equal(t, "2s", settings["effective"])

	widgets := vm["widgets"].([]map[string]any)
	require.Len(t, widgets, 2)
	lobby := widgets[0]
	assert.Equal(t, "6533", lobby["id"])
	assert.Equal(t, false, lobby["can_remove"])
	assert.Equal(t, "12,000", lobby["capacity"])
	assert.Equal(t, "9,000", lobby["available"])
	assert.Equal(t, "25.0", lobby["utilization"])
	assert.Equal(t, "30 seconds ago", lobby["updated"])
	assert.Equal(t, `<div id="chart-6533"></div>`, lobby["chart"])

	gate := widgets[1]
	assert.Equal(t, true, gate["can_remove"])
	assert.Equal(t, "error", gate["state"])
	assert.Equal(t, "HTTP 401 - denied", gate["message"])
	assert.NotContains(t, gate, "chart")
}

func TestControllerAdminCanRemoveLocked(t *testing.T) {
	controller, _, _ := controllerFixture(t, RoleAdmin)
	vm, err := controller.ViewModel(context.Background())
	require.NoError(t, err)

	assert.Equal(t, true, vm["can_import"])
	widgets := vm["widgets"].([]map[string]any)
	assert.Equal(t, true, widgets[0]["can_remove"])
	session := vm["session"].(map[string]any)
	assert.Equal(t, "admin", session["role"])
}

func TestControllerRenderTemplate(t *testing.T) {
	controller, renderer, _ := controllerFixture(t, RoleUser)

	var buf bytes.Buffer
	require.NoError(t, controller.RenderTemplate(context.Background(), &buf))
	assert.Equal(t, "dashboard.html", renderer.lastTemplate)
	assert.Equal(t, "<html></html>", buf.String())
	assert.Len(t, renderer.lastPayload["widgets"], 2)
}

func TestControllerPropagatesErrors(t *testing.T) {
	boom := errors.New("chart failed")
	controller := NewController(ControllerOptions{
		Dashboard: &stubDashboardView{
			state:    DashboardState{Widgets: []Widget{{ID: NumericID(1), Name: "A"}}},
			statuses: []WidgetStatus{{ID: NumericID(1), Snapshot: &StatusSnapshot{}}},
		},
		Charts:   stubCharts{err: boom},
		Renderer: &stubRenderer{},
	})
	assert.ErrorIs(t, controller.RenderTemplate(context.Background(), io.Discard), boom)

	assert.Error(t, NewController(ControllerOptions{}).RenderTemplate(context.Background(), io.Discard))
}
