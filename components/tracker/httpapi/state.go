package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/goliatone/go-scptracker/components/tracker"
)

// StateReader exposes the dashboard read model.
type StateReader interface {
	Title() string
	State() tracker.DashboardState
	Statuses() []tracker.WidgetStatus
	Status(id tracker.WidgetID) (tracker.WidgetStatus, error)
}

// Exporter produces the configuration download.
type Exporter interface {
	ExportConfig(ctx context.Context, includeToken bool) ([]byte, string, error)
}

// StatePayload is the JSON view of the dashboard. The token itself is never
// returned.
type StatePayload struct {
	Title       string                 `json:"title"`
	HasToken    bool                   `json:"has_token"`
	IntervalSec float64                `json:"intervalSec"`
	Effective   string                 `json:"effective_interval"`
	Widgets     []tracker.Widget       `json:"widgets"`
	Statuses    []tracker.WidgetStatus `json:"statuses"`
}

// NewStatePayload snapshots reader.
func NewStatePayload(reader StateReader) StatePayload {
	state := reader.State()
	source := reader.Statuses()
	statuses := make([]tracker.WidgetStatus, len(source))
	for i, status := range source {
		if status.Snapshot != nil {
			snap := *status.Snapshot
			snap.Raw = nil
			status.Snapshot = &snap
		}
		statuses[i] = status
	}
	return StatePayload{
		Title:       reader.Title(),
		HasToken:    state.Token != "",
		IntervalSec: state.IntervalSec,
		Effective:   tracker.EffectiveInterval(state.IntervalSec).String(),
		Widgets:     state.Widgets,
		Statuses:    statuses,
	}
}

// ErrNoSnapshot is returned by RawStatus before the first successful poll.
var ErrNoSnapshot = errors.New("httpapi: widget has no data yet")

// RawStatus returns the last full response document of a widget.
func RawStatus(reader StateReader, widgetID string) (map[string]any, error) {
	status, err := reader.Status(tracker.ParseWidgetID(widgetID))
	if err != nil {
		return nil, err
	}
	if status.Snapshot == nil {
		return nil, ErrNoSnapshot
	}
	raw := status.Snapshot.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// StatusCode maps tracker errors to HTTP status codes.
func StatusCode(err error) int {
	var parseErr *tracker.ParseError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, tracker.ErrInvalidCredentials), errors.Is(err, tracker.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, tracker.ErrForbidden), errors.Is(err, tracker.ErrWidgetLocked):
		return http.StatusForbidden
	case errors.Is(err, tracker.ErrWidgetNotFound), errors.Is(err, tracker.ErrIndexOutOfRange), errors.Is(err, ErrNoSnapshot):
		return http.StatusNotFound
	case errors.As(err, &parseErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
