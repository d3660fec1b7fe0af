package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
)

type stubCommander[T any] struct {
	last  T
	calls int
	err   error
}

func (s *stubCommander[T]) Execute(ctx context.Context, msg T) error {
	s.last = msg
	s.calls++
	return s.err
}

func newStubExecutor() (*CommandExecutor, *stubCommander[commands.AddWidgetsInput], *stubCommander[commands.RemoveWidgetInput]) {
	add := &stubCommander[commands.AddWidgetsInput]{}
	remove := &stubCommander[commands.RemoveWidgetInput]{}
	return &CommandExecutor{
		AddCommander:      add,
		RemoveCommander:   remove,
		RenameCommander:   &stubCommander[commands.RenameWidgetInput]{},
		ClearCommander:    &stubCommander[commands.ClearWidgetsInput]{},
		SettingsCommander: &stubCommander[commands.UpdateSettingsInput]{},
		ImportCommander:   &stubCommander[commands.ImportConfigInput]{},
		PollCommander:     &stubCommander[commands.PollControlInput]{},
		LoginCommander:    &stubCommander[commands.LoginInput]{},
		LogoutCommander:   &stubCommander[commands.LogoutInput]{},
	}, add, remove
}

type stubReader struct {
	state    tracker.DashboardState
	statuses []tracker.WidgetStatus
}

func (s *stubReader) Title() string                        { return tracker.DefaultTitle }
func (s *stubReader) State() tracker.DashboardState        { return s.state }
func (s *stubReader) Statuses() []tracker.WidgetStatus     { return s.statuses }
func (s *stubReader) Status(id tracker.WidgetID) (tracker.WidgetStatus, error) {
	for _, st := range s.statuses {
		if st.ID.String() == id.String() {
			return st, nil
		}
	}
	return tracker.WidgetStatus{}, tracker.ErrWidgetNotFound
}

type stubExporter struct {
	includeToken bool
}

func (s *stubExporter) ExportConfig(_ context.Context, includeToken bool) ([]byte, string, error) {
	s.includeToken = includeToken
	return []byte("{}\n"), "scp-tracker-config.json", nil
}

func adminActor(*http.Request) commands.Actor {
	return commands.Actor{Role: tracker.RoleAdmin, ActorID: "a1"}
}

func TestHandleAddWidgets(t *testing.T) {
	exec, add, _ := newStubExecutor()
	api := &Handlers{API: exec, Actor: adminActor}
	body, _ := json.Marshal(map[string]string{"input": "6533, 5720", "name": "Lobby"})
	req := httptest.NewRequest(http.MethodPost, "/widgets", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.HandleAddWidgets(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if add.calls != 1 || add.last.Input != "6533, 5720" || add.last.Role != tracker.RoleAdmin {
		t.Fatalf("unexpected add input %+v", add.last)
	}
}

func TestHandleRemoveWidgetMapsErrors(t *testing.T) {
	exec, _, remove := newStubExecutor()
	api := &Handlers{API: exec}

	rec := httptest.NewRecorder()
	api.HandleRemoveWidget(rec, httptest.NewRequest(http.MethodDelete, "/widgets/1", nil), "1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if remove.last.Index != 1 {
		t.Fatalf("expected index propagation")
	}

	remove.err = tracker.ErrWidgetLocked
	rec = httptest.NewRecorder()
	api.HandleRemoveWidget(rec, httptest.NewRequest(http.MethodDelete, "/widgets/0", nil), "0")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.HandleRemoveWidget(rec, httptest.NewRequest(http.MethodDelete, "/widgets/x", nil), "x")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleUpdateSettingsUsesResolvedActor(t *testing.T) {
	exec, _, _ := newStubExecutor()
	settings := exec.SettingsCommander.(*stubCommander[commands.UpdateSettingsInput])
	api := &Handlers{API: exec, Actor: adminActor}
	req := httptest.NewRequest(http.MethodPost, "/settings", strings.NewReader(`{"token":"abc","role":"user"}`))
	rec := httptest.NewRecorder()
	api.HandleUpdateSettings(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if settings.last.Token == nil || *settings.last.Token != "abc" || settings.last.IntervalSec != nil {
		t.Fatalf("unexpected settings input %+v", settings.last)
	}
	if settings.last.Role != tracker.RoleAdmin {
		t.Fatalf("role must come from the resolver, got %q", settings.last.Role)
	}
}

func TestHandleImportConfig(t *testing.T) {
	exec, _, _ := newStubExecutor()
	imp := exec.ImportCommander.(*stubCommander[commands.ImportConfigInput])
	api := &Handlers{API: exec, Actor: adminActor}
	rec := httptest.NewRecorder()
	api.HandleImportConfig(rec, httptest.NewRequest(http.MethodPost, "/config/import", strings.NewReader(`{"intervalSec":3}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(imp.last.Data) != `{"intervalSec":3}` {
		t.Fatalf("unexpected import data %q", imp.last.Data)
	}

	imp.err = &tracker.ParseError{Source: "import", Err: errors.New("bad")}
	rec = httptest.NewRecorder()
	api.HandleImportConfig(rec, httptest.NewRequest(http.MethodPost, "/config/import", strings.NewReader(`nope`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleExportConfig(t *testing.T) {
	exporter := &stubExporter{}
	api := &Handlers{Exporter: exporter, Actor: adminActor}
	rec := httptest.NewRecorder()
	api.HandleExportConfig(rec, httptest.NewRequest(http.MethodGet, "/config/export?include_token=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !exporter.includeToken {
		t.Fatalf("expected include_token to propagate")
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="scp-tracker-config.json"` {
		t.Fatalf("unexpected disposition %q", got)
	}
}

func TestHandlersRequireSession(t *testing.T) {
	exporter := &stubExporter{}
	exec, _, _ := newStubExecutor()
	api := &Handlers{API: exec, Reader: &stubReader{}, Exporter: exporter}

	rec := httptest.NewRecorder()
	api.HandleExportConfig(rec, httptest.NewRequest(http.MethodGet, "/config/export?include_token=true", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for export, got %d", rec.Code)
	}
	if exporter.includeToken {
		t.Fatalf("exporter must not run without a session")
	}

	rec = httptest.NewRecorder()
	api.HandleState(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for state, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.HandleRawStatus(rec, httptest.NewRequest(http.MethodGet, "/widgets/1/raw", nil), "1")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for raw status, got %d", rec.Code)
	}

	poll := exec.PollCommander.(*stubCommander[commands.PollControlInput])
	api.Actor = adminActor
	rec = httptest.NewRecorder()
	api.HandlePollControl(rec, httptest.NewRequest(http.MethodPost, "/widgets/1/poll/pause", nil), "1", commands.PollActionPause)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if poll.last.Role != tracker.RoleAdmin {
		t.Fatalf("poll control must carry the resolved actor, got %+v", poll.last)
	}
}

func TestHandleStateHidesToken(t *testing.T) {
	reader := &stubReader{
		state: tracker.DashboardState{Token: "secret", IntervalSec: 0, Widgets: []tracker.Widget{{ID: tracker.NumericID(1), Name: "A"}}},
		statuses: []tracker.WidgetStatus{{
			ID:       tracker.NumericID(1),
			State:    tracker.PollPolling,
			Snapshot: &tracker.StatusSnapshot{Total: 3, Raw: map[string]any{"data": map[string]any{}}},
		}},
	}
	api := &Handlers{Reader: reader, Actor: adminActor}
	rec := httptest.NewRecorder()
	api.HandleState(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "secret") || strings.Contains(body, `"raw"`) {
		t.Fatalf("state leaked token or raw document: %s", body)
	}
	var payload StatePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.HasToken || payload.Effective != "10s" || len(payload.Statuses) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if reader.statuses[0].Snapshot.Raw == nil {
		t.Fatalf("payload must not mutate the reader's snapshot")
	}
}

func TestHandleRawStatus(t *testing.T) {
	reader := &stubReader{statuses: []tracker.WidgetStatus{
		{ID: tracker.NumericID(1), Snapshot: &tracker.StatusSnapshot{Raw: map[string]any{"data": map[string]any{"db_max": 500.0}}}},
		{ID: tracker.TextID("gate")},
	}}
	api := &Handlers{Reader: reader, Actor: adminActor}

	rec := httptest.NewRecorder()
	api.HandleRawStatus(rec, httptest.NewRequest(http.MethodGet, "/widgets/1/raw", nil), "1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"db_max":500`) {
		t.Fatalf("unexpected raw response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	api.HandleRawStatus(rec, httptest.NewRequest(http.MethodGet, "/widgets/gate/raw", nil), "gate")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before first poll, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.HandleRawStatus(rec, httptest.NewRequest(http.MethodGet, "/widgets/9/raw", nil), "9")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown widget, got %d", rec.Code)
	}
}

func TestHandleLoginRejectsBadCredentials(t *testing.T) {
	exec, _, _ := newStubExecutor()
	login := exec.LoginCommander.(*stubCommander[commands.LoginInput])
	login.err = tracker.ErrInvalidCredentials
	api := &Handlers{API: exec}
	rec := httptest.NewRecorder()
	api.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"role":"admin","email":"a@b.c","password":"x"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid credentials") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestCommandExecutorRequiresCommanders(t *testing.T) {
	exec := &CommandExecutor{}
	if err := exec.PollControl(context.Background(), commands.PollControlInput{}); err == nil {
		t.Fatalf("expected error for missing commander")
	}
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		nil:                           http.StatusOK,
		tracker.ErrForbidden:          http.StatusForbidden,
		tracker.ErrIndexOutOfRange:    http.StatusNotFound,
		tracker.ErrInvalidCredentials: http.StatusUnauthorized,
		tracker.ErrUnauthenticated:    http.StatusUnauthorized,
		errors.New("boom"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusCode(err); got != want {
			t.Fatalf("StatusCode(%v) = %d, want %d", err, got, want)
		}
	}
}
