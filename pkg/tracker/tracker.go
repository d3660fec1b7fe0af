package tracker

import (
	core "github.com/goliatone/go-scptracker/components/tracker"
)

// Dashboard exposes the underlying components/tracker.Dashboard type.
type Dashboard = core.Dashboard

// Options re-export for convenience.
type Options = core.Options

// Widget, WidgetID and WidgetStatus are the dashboard read model.
type (
	Widget         = core.Widget
	WidgetID       = core.WidgetID
	WidgetStatus   = core.WidgetStatus
	WidgetEvent    = core.WidgetEvent
	StatusSnapshot = core.StatusSnapshot
	DashboardState = core.DashboardState
	Role           = core.Role
)

// Ports implemented by callers.
type (
	StatusFetcher = core.StatusFetcher
	KeyValueStore = core.KeyValueStore
	Authenticator = core.Authenticator
	RefreshHook   = core.RefreshHook
)

// Roles.
const (
	RoleAdmin = core.RoleAdmin
	RoleUser  = core.RoleUser
)

// NewDashboard proxies to the internal constructor.
func NewDashboard(opts Options) *Dashboard {
	return core.NewDashboard(opts)
}

// ParseWidgetInput splits a comma/whitespace separated list of identifiers.
func ParseWidgetInput(input string) []WidgetID {
	return core.ParseWidgetInput(input)
}
