package tracker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goliatone/go-scptracker/pkg/activity"
	"github.com/goliatone/go-scptracker/pkg/kvstore"
	"github.com/sirupsen/logrus"
)

// Options configures the Dashboard. Every collaborator is an interface so
// hosts can swap implementations.
type Options struct {
	Fetcher        StatusFetcher
	Store          KeyValueStore
	Clock          Clock
	RefreshHook    RefreshHook
	Telemetry      Telemetry
	Logger         *logrus.Entry
	ActivityHooks  activity.Hooks
	ActivityConfig activity.Config
	// Title names the dashboard and the export file.
	Title string
}

// Dashboard composes the widget list, its persisted settings and one poller
// per widget.
type Dashboard struct {
	mu       sync.Mutex
	opts     Options
	state    *PersistedState
	widgets  *WidgetStore
	pollers  map[string]*Poller
	paused   map[string]bool
	activity *activity.Emitter

	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// NewDashboard builds a Dashboard with safe defaults.
func NewDashboard(opts Options) *Dashboard {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	if opts.RefreshHook == nil {
		opts.RefreshHook = noopRefreshHook{}
	}
	if opts.Store == nil {
		opts.Store = kvstore.NewMemory()
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	opts.Logger = normalizeLogger(opts.Logger)
	return &Dashboard{
		opts:     opts,
		state:    NewPersistedState(opts.Store, opts.Logger),
		widgets:  NewWidgetStore(),
		pollers:  make(map[string]*Poller),
		paused:   make(map[string]bool),
		activity: activity.NewEmitter(opts.ActivityHooks, opts.ActivityConfig),
	}
}

// Start loads the persisted state and begins polling every widget.
func (d *Dashboard) Start(ctx context.Context) error {
	if d.opts.Fetcher == nil {
		return errMissingFetcher
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	state, err := d.state.Load(ctx)
	if err != nil {
		return err
	}
	d.widgets.Replace(state.Widgets)
	d.baseCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	d.started = true
	d.syncPollersLocked()
	d.opts.Logger.WithFields(logrus.Fields{
		"widgets":      d.widgets.Len(),
		"interval_sec": state.IntervalSec,
	}).Info("dashboard started")
	return nil
}

// Close stops every poller and cancels in-flight requests.
func (d *Dashboard) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	for key, p := range d.pollers {
		p.Stop()
		delete(d.pollers, key)
	}
	d.cancel()
	d.started = false
	return nil
}

// Title returns the configured dashboard title.
func (d *Dashboard) Title() string {
	return d.opts.Title
}

// State returns the persisted settings and widgets.
func (d *Dashboard) State() DashboardState {
	return d.state.State()
}

// Widgets returns the current widget list.
func (d *Dashboard) Widgets() []Widget {
	return d.widgets.Widgets()
}

// Statuses returns the poller status of every widget in list order.
func (d *Dashboard) Statuses() []WidgetStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	widgets := d.widgets.Widgets()
	out := make([]WidgetStatus, 0, len(widgets))
	for _, w := range widgets {
		if p, ok := d.pollers[w.ID.String()]; ok {
			out = append(out, p.Status())
			continue
		}
		out = append(out, WidgetStatus{ID: w.ID, State: PollIdle})
	}
	return out
}

// Status returns the poller status of one widget.
func (d *Dashboard) Status(id WidgetID) (WidgetStatus, error) {
	p, err := d.poller(id)
	if err != nil {
		return WidgetStatus{}, err
	}
	return p.Status(), nil
}

// AddWidgets parses input into identifiers and appends them. Widgets added
// by an admin are locked.
func (d *Dashboard) AddWidgets(ctx context.Context, role Role, input, name string) ([]Widget, error) {
	if !role.Valid() {
		return nil, ErrForbidden
	}
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	prev := d.widgets.Widgets()
	next := d.widgets.Add(input, name, role.IsAdmin())
	if err := d.commitWidgetsLocked(ctx, prev, next); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	added := len(next) - len(prev)
	d.publish(ctx, WidgetEvent{Reason: ReasonAdd, Widgets: next})
	d.record(ctx, "tracker.widget.add", map[string]any{"added": added, "role": string(role)})
	d.emitActivity(ctx, "tracker.widget.add", "widget_list", "", map[string]any{
		"input":  input,
		"added":  added,
		"locked": role.IsAdmin(),
	})
	return next, nil
}

// RemoveWidget removes the widget at index. Locked widgets need an admin.
func (d *Dashboard) RemoveWidget(ctx context.Context, role Role, index int) (Widget, error) {
	if !role.Valid() {
		return Widget{}, ErrForbidden
	}
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	prev := d.widgets.Widgets()
	removed, err := d.widgets.RemoveAt(index, role)
	if err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	next := d.widgets.Widgets()
	if err := d.commitWidgetsLocked(ctx, prev, next); err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	d.mu.Unlock()

	d.publish(ctx, WidgetEvent{WidgetID: removed.ID.String(), Reason: ReasonRemove, Widgets: next})
	d.record(ctx, "tracker.widget.remove", map[string]any{"widget_id": removed.ID.String()})
	d.emitActivity(ctx, "tracker.widget.remove", "widget", removed.ID.String(), map[string]any{
		"name":   removed.Name,
		"locked": removed.Locked,
	})
	return removed, nil
}

// RenameWidget changes a widget's display name. Admin only.
func (d *Dashboard) RenameWidget(ctx context.Context, role Role, index int, name string) (Widget, error) {
	if !role.IsAdmin() {
		return Widget{}, ErrForbidden
	}
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	prev := d.widgets.Widgets()
	renamed, err := d.widgets.RenameAt(index, name)
	if err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	next := d.widgets.Widgets()
	if err := d.commitWidgetsLocked(ctx, prev, next); err != nil {
		d.mu.Unlock()
		return Widget{}, err
	}
	d.mu.Unlock()

	d.publish(ctx, WidgetEvent{WidgetID: renamed.ID.String(), Reason: ReasonRename, Widgets: next})
	d.record(ctx, "tracker.widget.rename", map[string]any{"widget_id": renamed.ID.String()})
	d.emitActivity(ctx, "tracker.widget.rename", "widget", renamed.ID.String(), map[string]any{
		"from": prev[index].Name,
		"to":   name,
	})
	return renamed, nil
}

// ClearWidgets empties the dashboard. Users only clear unlocked widgets.
func (d *Dashboard) ClearWidgets(ctx context.Context, role Role) error {
	if !role.Valid() {
		return ErrForbidden
	}
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	prev := d.widgets.Widgets()
	if role.IsAdmin() {
		d.widgets.Clear()
	} else {
		d.widgets.RetainLocked()
	}
	next := d.widgets.Widgets()
	if err := d.commitWidgetsLocked(ctx, prev, next); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	removed := len(prev) - len(next)
	d.publish(ctx, WidgetEvent{Reason: ReasonClear, Widgets: next})
	d.record(ctx, "tracker.widget.clear", map[string]any{"removed": removed, "role": string(role)})
	d.emitActivity(ctx, "tracker.widget.clear", "widget_list", "", map[string]any{"removed": removed})
	return nil
}

// SetToken stores the Basic token and reconfigures every poller.
func (d *Dashboard) SetToken(ctx context.Context, token string) error {
	if err := d.updateSettings(ctx, func(s *DashboardState) { s.Token = token }); err != nil {
		return err
	}
	d.record(ctx, "tracker.settings.token", map[string]any{"set": token != ""})
	d.emitActivity(ctx, "tracker.settings.token", "settings", "token", nil)
	return nil
}

// SetIntervalSec stores the polling interval and reconfigures every poller.
func (d *Dashboard) SetIntervalSec(ctx context.Context, sec float64) error {
	if err := d.updateSettings(ctx, func(s *DashboardState) { s.IntervalSec = sec }); err != nil {
		return err
	}
	d.record(ctx, "tracker.settings.interval", map[string]any{
		"interval_sec": sec,
		"effective":    EffectiveInterval(sec).String(),
	})
	d.emitActivity(ctx, "tracker.settings.interval", "settings", "interval", map[string]any{"interval_sec": sec})
	return nil
}

func (d *Dashboard) updateSettings(ctx context.Context, mutate func(*DashboardState)) error {
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if err := d.state.Update(ctx, mutate); err != nil {
		d.mu.Unlock()
		return err
	}
	d.syncPollersLocked()
	d.mu.Unlock()
	d.publish(ctx, WidgetEvent{Reason: ReasonSettings})
	return nil
}

// ExportConfig serialises the settings. The token is included on request.
func (d *Dashboard) ExportConfig(ctx context.Context, includeToken bool) ([]byte, string, error) {
	data, err := ExportConfig(d.state.State(), includeToken)
	if err != nil {
		return nil, "", err
	}
	d.record(ctx, "tracker.config.export", map[string]any{"include_token": includeToken})
	return data, ExportFileName(d.opts.Title), nil
}

// ExportTo delivers the exported configuration to sink.
func (d *Dashboard) ExportTo(ctx context.Context, sink FileSink, includeToken bool) (string, error) {
	if sink == nil {
		return "", fmt.Errorf("tracker: export: file sink not configured")
	}
	data, name, err := d.ExportConfig(ctx, includeToken)
	if err != nil {
		return "", err
	}
	if err := sink.Save(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// ImportConfig applies the fields present in r. Admin only. A malformed
// document leaves the dashboard untouched.
func (d *Dashboard) ImportConfig(ctx context.Context, role Role, r io.Reader) (DashboardState, error) {
	if !role.IsAdmin() {
		return DashboardState{}, ErrForbidden
	}
	patch, err := ImportConfig(r)
	if err != nil {
		d.record(ctx, "tracker.config.import_error", map[string]any{"error": err.Error()})
		return DashboardState{}, err
	}
	d.mu.Lock()
	if err := d.requireStartedLocked(); err != nil {
		d.mu.Unlock()
		return DashboardState{}, err
	}
	if err := d.state.Apply(ctx, patch); err != nil {
		d.mu.Unlock()
		return DashboardState{}, err
	}
	state := d.state.State()
	d.widgets.Replace(state.Widgets)
	d.syncPollersLocked()
	d.mu.Unlock()

	d.publish(ctx, WidgetEvent{Reason: ReasonImport, Widgets: state.Widgets})
	d.record(ctx, "tracker.config.import", map[string]any{
		"token":    patch.Token != nil,
		"interval": patch.IntervalSec != nil,
		"widgets":  patch.Widgets != nil,
	})
	d.emitActivity(ctx, "tracker.config.import", "settings", "bundle", map[string]any{"widgets": len(state.Widgets)})
	return state, nil
}

// Pause stops polling one widget and keeps its last snapshot.
func (d *Dashboard) Pause(id WidgetID) error {
	return d.setPaused(id, true)
}

// Resume polls one widget immediately and restarts its interval.
func (d *Dashboard) Resume(id WidgetID) error {
	return d.setPaused(id, false)
}

func (d *Dashboard) setPaused(id WidgetID, paused bool) error {
	d.mu.Lock()
	p, ok := d.pollers[id.String()]
	if !ok {
		d.mu.Unlock()
		return ErrWidgetNotFound
	}
	d.paused[id.String()] = paused
	d.mu.Unlock()
	if paused {
		p.Pause()
	} else {
		p.Resume()
	}
	return nil
}

// Refresh polls one widget now without touching its schedule.
func (d *Dashboard) Refresh(id WidgetID) error {
	p, err := d.poller(id)
	if err != nil {
		return err
	}
	p.Refresh()
	return nil
}

func (d *Dashboard) poller(id WidgetID) (*Poller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pollers[id.String()]
	if !ok {
		return nil, ErrWidgetNotFound
	}
	return p, nil
}

func (d *Dashboard) requireStartedLocked() error {
	if !d.started {
		return errNotStarted
	}
	return nil
}

// commitWidgetsLocked persists next and resyncs pollers. On a storage
// failure the in-memory list is restored to prev.
func (d *Dashboard) commitWidgetsLocked(ctx context.Context, prev, next []Widget) error {
	if err := d.state.SetWidgets(ctx, next); err != nil {
		d.widgets.Replace(prev)
		return err
	}
	d.syncPollersLocked()
	return nil
}

// syncPollersLocked starts pollers for new widgets, stops removed ones and
// reconfigures the rest. Pollers only reschedule when their input changed.
func (d *Dashboard) syncPollersLocked() {
	state := d.state.State()
	widgets := d.widgets.Widgets()
	live := make(map[string]struct{}, len(widgets))
	for _, w := range widgets {
		key := w.ID.String()
		live[key] = struct{}{}
		p, ok := d.pollers[key]
		if !ok {
			p = NewPoller(PollerOptions{
				Fetcher:   d.opts.Fetcher,
				Clock:     d.opts.Clock,
				Telemetry: d.opts.Telemetry,
				Logger:    d.opts.Logger.WithField("widget_id", key),
				OnUpdate:  d.onStatus,
				Context:   d.baseCtx,
			})
			d.pollers[key] = p
		}
		p.Configure(PollConfig{
			ID:          w.ID,
			Token:       state.Token,
			IntervalSec: state.IntervalSec,
			Paused:      d.paused[key],
		})
	}
	for key, p := range d.pollers {
		if _, ok := live[key]; ok {
			continue
		}
		p.Stop()
		delete(d.pollers, key)
		delete(d.paused, key)
	}
}

// onStatus runs on poller transitions and must not take d.mu.
func (d *Dashboard) onStatus(status WidgetStatus) {
	d.publish(d.baseCtx, WidgetEvent{
		WidgetID: status.ID.String(),
		Reason:   ReasonStatus,
		Status:   &status,
	})
}

func (d *Dashboard) publish(ctx context.Context, event WidgetEvent) {
	if err := d.opts.RefreshHook.WidgetUpdated(ctx, event); err != nil {
		d.opts.Logger.WithError(err).WithField("reason", event.Reason).Warn("refresh hook failed")
	}
}

func (d *Dashboard) record(ctx context.Context, event string, payload map[string]any) {
	d.opts.Telemetry.Record(ctx, event, payload)
}

func (d *Dashboard) emitActivity(ctx context.Context, verb, objectType, objectID string, meta map[string]any) {
	if !d.activity.Enabled() {
		return
	}
	actor := activityContextFrom(ctx)
	if meta == nil {
		meta = map[string]any{}
	}
	if actor.Email != "" {
		meta["email"] = actor.Email
	}
	err := d.activity.Emit(ctx, activity.Event{
		Verb:       verb,
		ActorID:    actor.ActorID,
		UserID:     actor.UserID,
		TenantID:   actor.TenantID,
		ObjectType: objectType,
		ObjectID:   objectID,
		Metadata:   meta,
		OccurredAt: d.opts.Clock.Now().UTC(),
	})
	if err != nil {
		d.opts.Logger.WithError(err).WithField("verb", verb).Warn("activity emit failed")
	}
}
