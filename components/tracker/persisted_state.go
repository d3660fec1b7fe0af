package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// StateKey holds the dashboard record.
	StateKey = "scp-tracker-state-v2"
	// LegacyStateKey holds the single-role prototype record ({token, scps, intervalSec}).
	LegacyStateKey = "scp-tracker-state"
	// SessionKey holds the auth session record.
	SessionKey = "scp-tracker-auth"
)

// DefaultDashboardState returns the state used when nothing valid is stored.
func DefaultDashboardState() DashboardState {
	return DashboardState{
		Token:       "",
		IntervalSec: DefaultIntervalSec,
		Widgets:     []Widget{},
	}
}

// PersistedState keeps {token, intervalSec, widgets} in sync with a
// KeyValueStore. It is read once by Load and rewritten in full on every
// mutation; concurrent writers overwrite each other.
type PersistedState struct {
	mu     sync.RWMutex
	store  KeyValueStore
	logger *logrus.Entry
	state  DashboardState
	loaded bool
}

// NewPersistedState binds a state holder to store.
func NewPersistedState(store KeyValueStore, logger *logrus.Entry) *PersistedState {
	return &PersistedState{
		store:  store,
		logger: normalizeLogger(logger),
		state:  DefaultDashboardState(),
	}
}

// Load reads the stored record once. Absent or malformed data yields the
// defaults without an error; only a failing store is reported.
func (p *PersistedState) Load(ctx context.Context) (DashboardState, error) {
	if p.store == nil {
		return DashboardState{}, errMissingKeyValueStore
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded {
		return cloneState(p.state), nil
	}
	raw, ok, err := p.store.Get(ctx, StateKey)
	if err != nil {
		return DashboardState{}, fmt.Errorf("tracker: load state: %w", err)
	}
	state := DefaultDashboardState()
	switch {
	case ok:
		state = decodeState(raw, p.logger)
	default:
		migrated, found, err := p.migrateLegacy(ctx)
		if err != nil {
			return DashboardState{}, err
		}
		if found {
			state = migrated
		}
	}
	p.state = state
	p.loaded = true
	return cloneState(p.state), nil
}

// migrateLegacy converts the prototype record and writes it under StateKey.
// The legacy record itself is left in place. Must be called with p.mu held.
func (p *PersistedState) migrateLegacy(ctx context.Context) (DashboardState, bool, error) {
	raw, ok, err := p.store.Get(ctx, LegacyStateKey)
	if err != nil {
		return DashboardState{}, false, fmt.Errorf("tracker: load legacy state: %w", err)
	}
	if !ok {
		return DashboardState{}, false, nil
	}
	var legacy struct {
		Token       string     `json:"token"`
		SCPs        []WidgetID `json:"scps"`
		IntervalSec float64    `json:"intervalSec"`
	}
	if err := json.Unmarshal(raw, &legacy); err != nil {
		p.logger.WithError(err).Warn("discarding malformed legacy state")
		return DashboardState{}, false, nil
	}
	state := DefaultDashboardState()
	state.Token = legacy.Token
	if legacy.IntervalSec != 0 {
		state.IntervalSec = legacy.IntervalSec
	}
	widgets := make([]Widget, 0, len(legacy.SCPs))
	for _, id := range legacy.SCPs {
		widgets = append(widgets, Widget{ID: id, Name: DefaultWidgetName(id)})
	}
	state.Widgets = dedupeWidgets(widgets)
	if err := p.writeLocked(ctx, state); err != nil {
		return DashboardState{}, false, err
	}
	p.logger.WithField("widgets", len(state.Widgets)).Info("migrated legacy dashboard state")
	return state, true, nil
}

func decodeState(raw []byte, logger *logrus.Entry) DashboardState {
	state := DefaultDashboardState()
	var stored struct {
		Token       *string  `json:"token"`
		IntervalSec *float64 `json:"intervalSec"`
		Widgets     []Widget `json:"widgets"`
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.WithError(err).Warn("discarding malformed dashboard state")
		return state
	}
	if stored.Token != nil {
		state.Token = *stored.Token
	}
	if stored.IntervalSec != nil && *stored.IntervalSec != 0 && !math.IsNaN(*stored.IntervalSec) {
		state.IntervalSec = *stored.IntervalSec
	}
	if stored.Widgets != nil {
		state.Widgets = dedupeWidgets(stored.Widgets)
	}
	return state
}

// State returns a copy of the in-memory record.
func (p *PersistedState) State() DashboardState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneState(p.state)
}

// SetToken stores a new token.
func (p *PersistedState) SetToken(ctx context.Context, token string) error {
	return p.Update(ctx, func(s *DashboardState) { s.Token = token })
}

// SetIntervalSec stores a new polling interval in seconds.
func (p *PersistedState) SetIntervalSec(ctx context.Context, sec float64) error {
	return p.Update(ctx, func(s *DashboardState) { s.IntervalSec = sec })
}

// SetWidgets stores a new widget list.
func (p *PersistedState) SetWidgets(ctx context.Context, widgets []Widget) error {
	return p.Update(ctx, func(s *DashboardState) { s.Widgets = cloneWidgets(widgets) })
}

// Update mutates the record and writes the full triple back.
func (p *PersistedState) Update(ctx context.Context, mutate func(*DashboardState)) error {
	if p.store == nil {
		return errMissingKeyValueStore
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	next := cloneState(p.state)
	mutate(&next)
	if next.Widgets == nil {
		next.Widgets = []Widget{}
	}
	if err := p.writeLocked(ctx, next); err != nil {
		return err
	}
	p.state = next
	return nil
}

func (p *PersistedState) writeLocked(ctx context.Context, state DashboardState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("tracker: encode state: %w", err)
	}
	if err := p.store.Set(ctx, StateKey, data); err != nil {
		return fmt.Errorf("tracker: save state: %w", err)
	}
	return nil
}

func cloneState(s DashboardState) DashboardState {
	s.Widgets = cloneWidgets(s.Widgets)
	return s
}
