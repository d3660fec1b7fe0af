package tracker

import (
	"context"
	"time"
)

// StatusFetcher retrieves the live status of a single SCP.
// Implementations must honour ctx cancellation so stale polls can be dropped.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, id WidgetID, token string) (StatusSnapshot, error)
}

// KeyValueStore is the durable persistence port used for dashboard state and
// auth sessions. Values are opaque JSON documents.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Authenticator resolves credentials to a role.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Role, error)
}

// FileSink delivers exported configuration files (download, disk, ...).
type FileSink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// RefreshHook notifies transports (WebSocket/SSE/broker) about widget changes.
type RefreshHook interface {
	WidgetUpdated(ctx context.Context, event WidgetEvent) error
}

// Role identifies the privileges of the signed-in viewer.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// IsAdmin reports whether r carries admin privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Widget is a dashboard tile bound to one SCP identifier.
type Widget struct {
	ID     WidgetID `json:"scp"`
	Name   string   `json:"name"`
	Locked bool     `json:"locked"`
}

// DashboardState is the persisted dashboard record.
type DashboardState struct {
	Token       string   `json:"token"`
	IntervalSec float64  `json:"intervalSec"`
	Widgets     []Widget `json:"widgets"`
}

// StatusSnapshot is the normalised remote status of a SCP.
type StatusSnapshot struct {
	SCPNumber       string         `json:"scp_number"`
	FirmwareVersion string         `json:"firmware_version"`
	Model           string         `json:"model"`
	MAC             string         `json:"mac"`
	Capacity        int64          `json:"capacity"`
	Total           int64          `json:"total"`
	Raw             map[string]any `json:"raw,omitempty"`
}

// Available returns the remaining card slots, never negative.
func (s StatusSnapshot) Available() int64 {
	return max(0, s.Capacity-s.Total)
}

// Utilization returns the used share of the capacity as a percentage.
func (s StatusSnapshot) Utilization() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Capacity) * 100
}

// PollState is the lifecycle state of a widget poller.
type PollState string

const (
	PollIdle    PollState = "idle"
	PollPolling PollState = "polling"
	PollPaused  PollState = "paused"
	PollError   PollState = "error"
)

// WidgetStatus is the transient, per-widget view of a poller.
type WidgetStatus struct {
	ID          WidgetID        `json:"id"`
	State       PollState       `json:"state"`
	Message     string          `json:"message,omitempty"`
	Loading     bool            `json:"loading"`
	IntervalSec int             `json:"interval_sec"`
	Snapshot    *StatusSnapshot `json:"snapshot,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Generation  uint64          `json:"generation"`
}

// WidgetEvent describes changes that transports might care about.
type WidgetEvent struct {
	WidgetID string        `json:"widget_id,omitempty"`
	Reason   string        `json:"reason"`
	Status   *WidgetStatus `json:"status,omitempty"`
	Widgets  []Widget      `json:"widgets,omitempty"`
}

// Event reasons emitted on the RefreshHook.
const (
	ReasonStatus   = "status"
	ReasonAdd      = "add"
	ReasonRemove   = "remove"
	ReasonRename   = "rename"
	ReasonClear    = "clear"
	ReasonSettings = "settings"
	ReasonImport   = "import"
)
