package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-scptracker/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// flakyStore wraps a memory store and fails reads or writes on demand.
type flakyStore struct {
	*kvstore.Memory
	failGet bool
	failSet bool
	sets    int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: kvstore.NewMemory()}
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, errStoreDown
	}
	return s.Memory.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return errStoreDown
	}
	s.sets++
	return s.Memory.Set(ctx, key, value)
}

func storedState(t *testing.T, store KeyValueStore) map[string]any {
	t.Helper()
	raw, ok, err := store.Get(context.Background(), StateKey)
	require.NoError(t, err)
	require.True(t, ok, "state record missing")
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestPersistedStateDefaultsWhenAbsent(t *testing.T) {
	store := newFlakyStore()
	state, err := NewPersistedState(store, nil).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultDashboardState(), state)
	assert.Equal(t, 10.0, state.IntervalSec)
	assert.NotNil(t, state.Widgets)
	assert.Zero(t, store.sets, "loading defaults must not write")
}

func TestPersistedStateMalformedFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	for _, raw := range []string{`not json`, `[]`, `{"widgets":"nope"}`} {
		store := newFlakyStore()
		require.NoError(t, store.Memory.Set(ctx, StateKey, []byte(raw)))

		state, err := NewPersistedState(store, nil).Load(ctx)
		require.NoError(t, err, raw)
		assert.Equal(t, DefaultDashboardState(), state, raw)
	}
}

func TestPersistedStatePartialRecordKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Memory.Set(ctx, StateKey, []byte(`{"token":"abc","intervalSec":0}`)))

	state, err := NewPersistedState(store, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", state.Token)
	assert.Equal(t, 10.0, state.IntervalSec)
	assert.Empty(t, state.Widgets)
}

func TestPersistedStateLoadsOnce(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	p := NewPersistedState(store, nil)
	_, err := p.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Memory.Set(ctx, StateKey, []byte(`{"token":"changed"}`)))
	state, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Token)
}

func TestPersistedStateMigratesLegacyRecord(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	legacy := []byte(`{"token":"abc","scps":[6533,"front",6533],"intervalSec":4}`)
	require.NoError(t, store.Memory.Set(ctx, LegacyStateKey, legacy))

	state, err := NewPersistedState(store, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", state.Token)
	assert.Equal(t, 4.0, state.IntervalSec)
	require.Len(t, state.Widgets, 2)
	assert.Equal(t, "SCP 6533", state.Widgets[0].Name)
	assert.Equal(t, "front", state.Widgets[1].ID.String())
	assert.False(t, state.Widgets[0].Locked)

	doc := storedState(t, store)
	assert.Equal(t, "abc", doc["token"])
	assert.Len(t, doc["widgets"], 2)

	raw, ok, err := store.Get(ctx, LegacyStateKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, string(legacy), string(raw))
}

func TestPersistedStatePrefersCurrentRecordOverLegacy(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	require.NoError(t, store.Memory.Set(ctx, LegacyStateKey, []byte(`{"token":"old","scps":[1]}`)))
	require.NoError(t, store.Memory.Set(ctx, StateKey, []byte(`{"token":"new","intervalSec":5,"widgets":[]}`)))

	state, err := NewPersistedState(store, nil).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", state.Token)
	assert.Empty(t, state.Widgets)
}

func TestPersistedStateWritesFullRecord(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	p := NewPersistedState(store, nil)
	_, err := p.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, p.SetToken(ctx, "abc"))
	doc := storedState(t, store)
	assert.Equal(t, "abc", doc["token"])
	assert.Equal(t, 10.0, doc["intervalSec"])
	assert.Equal(t, []any{}, doc["widgets"])

	require.NoError(t, p.SetWidgets(ctx, []Widget{{ID: NumericID(7), Name: "Seven"}}))
	require.NoError(t, p.SetIntervalSec(ctx, 3))
	doc = storedState(t, store)
	assert.Equal(t, "abc", doc["token"])
	assert.Equal(t, 3.0, doc["intervalSec"])
	assert.Len(t, doc["widgets"], 1)
}

func TestPersistedStateReportsStoreFailures(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	store.failGet = true
	_, err := NewPersistedState(store, nil).Load(ctx)
	assert.ErrorIs(t, err, errStoreDown)

	store.failGet = false
	p := NewPersistedState(store, nil)
	_, err = p.Load(ctx)
	require.NoError(t, err)

	store.failSet = true
	assert.ErrorIs(t, p.SetToken(ctx, "abc"), errStoreDown)
	assert.Empty(t, p.State().Token, "failed write must not change memory")
}

func TestPersistedStateRequiresStore(t *testing.T) {
	_, err := NewPersistedState(nil, nil).Load(context.Background())
	assert.Error(t, err)
}
