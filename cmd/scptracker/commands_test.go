package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/pkg/kvstore"
)

type stubFetcher struct {
	calls atomic.Int32
}

func (f *stubFetcher) FetchStatus(_ context.Context, id tracker.WidgetID, _ string) (tracker.StatusSnapshot, error) {
	f.calls.Add(1)
	return tracker.StatusSnapshot{
		SCPNumber:       id.String(),
		FirmwareVersion: "1.2.x",
		Capacity:        12000,
		Total:           2880,
	}, nil
}

func newTestRuntime(t *testing.T) (*runtime, *bytes.Buffer) {
	t.Helper()
	adminHash, err := tracker.HashPassword("admin-secret")
	require.NoError(t, err)
	userHash, err := tracker.HashPassword("user-secret")
	require.NoError(t, err)

	settings := Settings{
		Storage: kvstore.Config{Driver: kvstore.DriverMemory},
		Accounts: []tracker.Account{
			{Email: "admin@example.com", Role: tracker.RoleAdmin, PasswordHash: adminHash},
			{Email: "user@example.com", Role: tracker.RoleUser, PasswordHash: userHash},
		},
		LogLevel: "error",
	}
	settings.applyDefaults()
	settings.ExportDir = t.TempDir()
	require.NoError(t, settings.Validate())

	out := &bytes.Buffer{}
	rt, err := newRuntime(context.Background(), settings, out)
	require.NoError(t, err)
	rt.fetcher = &stubFetcher{}
	t.Cleanup(func() { rt.Close() })
	return rt, out
}

func login(t *testing.T, rt *runtime, role string) {
	t.Helper()
	cmd := &loginCmd{Role: role, Email: role + "@example.com", Password: role + "-secret"}
	require.NoError(t, cmd.Run(context.Background(), rt))
}

func TestCommandsRequireLogin(t *testing.T) {
	rt, _ := newTestRuntime(t)
	err := (&addCmd{IDs: []string{"6533"}}).Run(context.Background(), rt)
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	rt, _ := newTestRuntime(t)
	err := (&loginCmd{Role: "admin", Email: "admin@example.com", Password: "nope"}).Run(context.Background(), rt)
	assert.ErrorIs(t, err, tracker.ErrInvalidCredentials)
}

func TestAdminWidgetLifecycle(t *testing.T) {
	ctx := context.Background()
	rt, out := newTestRuntime(t)
	login(t, rt, "admin")
	assert.Contains(t, out.String(), "Signed in as admin@example.com (admin)")

	require.NoError(t, (&addCmd{IDs: []string{"6533,", "gate"}}).Run(ctx, rt))
	assert.Contains(t, out.String(), "Added 2 widgets")
	assert.Contains(t, out.String(), "SCP 6533")
	assert.Contains(t, out.String(), "[locked]")

	require.NoError(t, (&renameCmd{Position: 2, Name: "Gate"}).Run(ctx, rt))
	assert.Equal(t, "Gate", rt.dashboard.Widgets()[1].Name)

	require.NoError(t, (&removeCmd{Position: 1}).Run(ctx, rt))
	require.Len(t, rt.dashboard.Widgets(), 1)

	require.NoError(t, (&clearCmd{}).Run(ctx, rt))
	assert.Contains(t, out.String(), "Cleared every widget")
	assert.Empty(t, rt.dashboard.Widgets())
}

func TestAddReportsCountAndUserClearKeepsLocked(t *testing.T) {
	ctx := context.Background()
	rt, out := newTestRuntime(t)
	login(t, rt, "admin")

	require.NoError(t, (&addCmd{IDs: []string{"6533"}}).Run(ctx, rt))
	assert.Contains(t, out.String(), "✓ Added 1 widget\n")

	out.Reset()
	require.NoError(t, (&addCmd{IDs: []string{"6533"}}).Run(ctx, rt))
	assert.Contains(t, out.String(), "✓ Added 0 widgets\n")

	require.NoError(t, (&logoutCmd{}).Run(ctx, rt))
	login(t, rt, "user")
	require.NoError(t, (&addCmd{IDs: []string{"7", "8"}}).Run(ctx, rt))
	assert.Contains(t, out.String(), "✓ Added 2 widgets\n")

	out.Reset()
	require.NoError(t, (&clearCmd{}).Run(ctx, rt))
	assert.Contains(t, out.String(), "✓ Cleared, 1 widget stays locked")
	require.Len(t, rt.dashboard.Widgets(), 1)
}

func TestUserCannotRename(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRuntime(t)
	login(t, rt, "user")
	require.NoError(t, (&addCmd{IDs: []string{"7"}}).Run(ctx, rt))

	err := (&renameCmd{Position: 1, Name: "x"}).Run(ctx, rt)
	assert.ErrorIs(t, err, tracker.ErrForbidden)
}

func TestSettingsCommands(t *testing.T) {
	ctx := context.Background()
	rt, out := newTestRuntime(t)
	login(t, rt, "user")

	require.NoError(t, (&tokenCmd{Token: "Basic abc"}).Run(ctx, rt))
	require.NoError(t, (&intervalCmd{Seconds: "1"}).Run(ctx, rt))
	assert.Contains(t, out.String(), "Polling every 2s")

	state := rt.dashboard.State()
	assert.Equal(t, "Basic abc", state.Token)
	assert.Equal(t, 1.0, state.IntervalSec)
}

func TestListReadsStoredState(t *testing.T) {
	ctx := context.Background()
	rt, out := newTestRuntime(t)
	login(t, rt, "admin")
	require.NoError(t, (&addCmd{IDs: []string{"6533"}, Name: "Lobby"}).Run(ctx, rt))
	out.Reset()

	require.NoError(t, (&listCmd{}).Run(ctx, rt))
	assert.Contains(t, out.String(), "Lobby")
	assert.Contains(t, out.String(), "Token not set, polling every 10s")
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	rt, out := newTestRuntime(t)
	login(t, rt, "admin")
	require.NoError(t, (&addCmd{IDs: []string{"6533", "gate"}}).Run(ctx, rt))

	require.NoError(t, (&exportCmd{}).Run(ctx, rt))
	path := filepath.Join(rt.settings.ExportDir, "scp-tracker-config.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "token")
	assert.Contains(t, out.String(), "Exported scp-tracker-config.json")

	require.NoError(t, (&clearCmd{}).Run(ctx, rt))
	require.NoError(t, (&importCmd{File: path}).Run(ctx, rt))
	assert.Len(t, rt.dashboard.Widgets(), 2)
}

func TestWatchOncePrintsEveryWidget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rt, out := newTestRuntime(t)
	state := tracker.NewPersistedState(rt.store, nil)
	_, err := state.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, state.SetToken(ctx, "abc"))
	require.NoError(t, state.SetWidgets(ctx, []tracker.Widget{{ID: tracker.NumericID(6533), Name: "Lobby"}}))

	require.NoError(t, (&watchCmd{Once: true}).Run(ctx, rt))
	assert.Contains(t, out.String(), "Lobby: 2,880 of 12,000 cards used (24.0%), 9,120 available, fw 1.2.x")
}

func TestWatchWithoutWidgets(t *testing.T) {
	rt, out := newTestRuntime(t)
	require.NoError(t, (&watchCmd{Once: true}).Run(context.Background(), rt))
	assert.Contains(t, out.String(), "No widgets configured")
}

func TestFormatStatusError(t *testing.T) {
	line := formatStatus("Gate", tracker.WidgetStatus{State: tracker.PollError, Message: "HTTP 401 - denied"}, time.Now())
	assert.Equal(t, "Gate: HTTP 401 - denied", line)
}
