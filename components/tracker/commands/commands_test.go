package commands

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/google/uuid"
)

type stubService struct {
	role        tracker.Role
	input       string
	index       int
	name        string
	token       *string
	interval    *float64
	imported    string
	polled      []string
	addCalls    int
	removeCalls int
	clearCalls  int
	err         error
}

func (s *stubService) AddWidgets(_ context.Context, role tracker.Role, input, name string) ([]tracker.Widget, error) {
	s.addCalls++
	s.role, s.input, s.name = role, input, name
	if s.err != nil {
		return nil, s.err
	}
	return []tracker.Widget{{ID: tracker.NumericID(1), Name: "SCP 1"}}, nil
}

func (s *stubService) RemoveWidget(_ context.Context, role tracker.Role, index int) (tracker.Widget, error) {
	s.removeCalls++
	s.role, s.index = role, index
	return tracker.Widget{ID: tracker.NumericID(1)}, s.err
}

func (s *stubService) RenameWidget(_ context.Context, role tracker.Role, index int, name string) (tracker.Widget, error) {
	s.role, s.index, s.name = role, index, name
	return tracker.Widget{ID: tracker.NumericID(1), Name: name}, s.err
}

func (s *stubService) ClearWidgets(_ context.Context, role tracker.Role) error {
	s.clearCalls++
	s.role = role
	return s.err
}

func (s *stubService) SetToken(_ context.Context, token string) error {
	s.token = &token
	return s.err
}

func (s *stubService) SetIntervalSec(_ context.Context, sec float64) error {
	s.interval = &sec
	return s.err
}

func (s *stubService) ImportConfig(_ context.Context, role tracker.Role, r io.Reader) (tracker.DashboardState, error) {
	data, _ := io.ReadAll(r)
	s.role, s.imported = role, string(data)
	return tracker.DashboardState{}, s.err
}

func (s *stubService) Pause(id tracker.WidgetID) error {
	s.polled = append(s.polled, "pause:"+id.String())
	return s.err
}

func (s *stubService) Resume(id tracker.WidgetID) error {
	s.polled = append(s.polled, "resume:"+id.String())
	return s.err
}

func (s *stubService) Refresh(id tracker.WidgetID) error {
	s.polled = append(s.polled, "refresh:"+id.String())
	return s.err
}

type stubSessions struct {
	session tracker.Session
	err     error
	logouts int
}

func (s *stubSessions) Login(_ context.Context, role tracker.Role, email, _ string) (tracker.Session, error) {
	if s.err != nil {
		return tracker.Session{}, s.err
	}
	s.session = tracker.Session{ID: uuid.New(), Role: role, Email: email}
	return s.session, nil
}

func (s *stubSessions) Logout(context.Context) error {
	s.logouts++
	return s.err
}

type stubTelemetry struct {
	events []string
}

func (s *stubTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	s.events = append(s.events, event)
}

func TestAddWidgetsCommand(t *testing.T) {
	service := &stubService{}
	telemetry := &stubTelemetry{}
	cmd := NewAddWidgetsCommand(service, telemetry)
	msg := AddWidgetsInput{Actor: Actor{Role: tracker.RoleAdmin, ActorID: "a1"}, Input: "6533, 5720", Name: "Lobby"}
	if err := cmd.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if service.addCalls != 1 || service.role != tracker.RoleAdmin || service.input != "6533, 5720" || service.name != "Lobby" {
		t.Fatalf("unexpected add call: %+v", service)
	}
	if len(telemetry.events) != 1 || telemetry.events[0] != "tracker.command.add" {
		t.Fatalf("expected add telemetry, got %v", telemetry.events)
	}
}

func TestAddWidgetsCommandPropagatesErrors(t *testing.T) {
	service := &stubService{err: tracker.ErrForbidden}
	telemetry := &stubTelemetry{}
	err := NewAddWidgetsCommand(service, telemetry).Execute(context.Background(), AddWidgetsInput{Input: "1"})
	if !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(telemetry.events) != 0 {
		t.Fatalf("expected no telemetry on failure")
	}
}

func TestWidgetCommandsRequireService(t *testing.T) {
	ctx := context.Background()
	if err := NewAddWidgetsCommand(nil, nil).Execute(ctx, AddWidgetsInput{}); err == nil {
		t.Fatalf("expected error without service")
	}
	if err := NewRemoveWidgetCommand(nil, nil).Execute(ctx, RemoveWidgetInput{}); err == nil {
		t.Fatalf("expected error without service")
	}
	if err := NewPollControlCommand(nil, nil).Execute(ctx, PollControlInput{}); err == nil {
		t.Fatalf("expected error without service")
	}
}

func TestRemoveRenameClearCommands(t *testing.T) {
	ctx := context.Background()
	service := &stubService{}

	if err := NewRemoveWidgetCommand(service, nil).Execute(ctx, RemoveWidgetInput{Actor: Actor{Role: tracker.RoleUser}, Index: 2}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if service.removeCalls != 1 || service.index != 2 || service.role != tracker.RoleUser {
		t.Fatalf("unexpected remove call: %+v", service)
	}

	if err := NewRenameWidgetCommand(service, nil).Execute(ctx, RenameWidgetInput{Actor: Actor{Role: tracker.RoleAdmin}, Index: 0, Name: "Gate"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if service.name != "Gate" || service.role != tracker.RoleAdmin {
		t.Fatalf("unexpected rename call: %+v", service)
	}

	if err := NewClearWidgetsCommand(service, nil).Execute(ctx, ClearWidgetsInput{Actor: Actor{Role: tracker.RoleUser}}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if service.clearCalls != 1 {
		t.Fatalf("expected clear call")
	}
}

func TestUpdateSettingsCommandAppliesPresentFields(t *testing.T) {
	service := &stubService{}
	cmd := NewUpdateSettingsCommand(service, nil)
	interval := 4.0
	if err := cmd.Execute(context.Background(), UpdateSettingsInput{Actor: Actor{Role: tracker.RoleUser}, IntervalSec: &interval}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if service.token != nil {
		t.Fatalf("token must not change when absent")
	}
	if service.interval == nil || *service.interval != 4 {
		t.Fatalf("expected interval 4, got %v", service.interval)
	}

	if err := cmd.Execute(context.Background(), UpdateSettingsInput{IntervalSec: &interval}); !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected forbidden without role, got %v", err)
	}
}

func TestImportConfigCommand(t *testing.T) {
	service := &stubService{}
	doc := `{"intervalSec": 3}`
	if err := NewImportConfigCommand(service, nil).Execute(context.Background(), ImportConfigInput{Actor: Actor{Role: tracker.RoleAdmin}, Data: []byte(doc)}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if service.imported != doc || service.role != tracker.RoleAdmin {
		t.Fatalf("unexpected import call: %+v", service)
	}
}

func TestPollControlCommand(t *testing.T) {
	service := &stubService{}
	cmd := NewPollControlCommand(service, nil)
	for _, action := range []string{PollActionPause, PollActionResume, PollActionRefresh} {
		if err := cmd.Execute(context.Background(), PollControlInput{Actor: Actor{Role: tracker.RoleUser}, WidgetID: "6533", Action: action}); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}
	want := []string{"pause:6533", "resume:6533", "refresh:6533"}
	for i, got := range service.polled {
		if got != want[i] {
			t.Fatalf("expected %s, got %s", want[i], got)
		}
	}
	if err := cmd.Execute(context.Background(), PollControlInput{Actor: Actor{Role: tracker.RoleUser}, WidgetID: "1", Action: "stop"}); err == nil {
		t.Fatalf("expected unknown action error")
	}
	if err := cmd.Execute(context.Background(), PollControlInput{WidgetID: "6533", Action: PollActionPause}); !errors.Is(err, tracker.ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}
	if len(service.polled) != len(want) {
		t.Fatalf("anonymous poll control reached the service: %v", service.polled)
	}
}

func TestLoginLogoutCommands(t *testing.T) {
	sessions := &stubSessions{}
	telemetry := &stubTelemetry{}
	if err := NewLoginCommand(sessions, telemetry).Execute(context.Background(), LoginInput{Role: tracker.RoleUser, Email: "user@example.com", Password: "x"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if sessions.session.Email != "user@example.com" {
		t.Fatalf("expected session for user@example.com")
	}
	if err := NewLogoutCommand(sessions, telemetry).Execute(context.Background(), LogoutInput{}); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if sessions.logouts != 1 {
		t.Fatalf("expected logout call")
	}

	sessions.err = tracker.ErrInvalidCredentials
	err := NewLoginCommand(sessions, telemetry).Execute(context.Background(), LoginInput{Role: tracker.RoleAdmin})
	if !errors.Is(err, tracker.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if telemetry.events[len(telemetry.events)-1] != "tracker.command.login_failed" {
		t.Fatalf("expected failed login telemetry, got %v", telemetry.events)
	}
}

func TestActorFromSession(t *testing.T) {
	id := uuid.New()
	actor := ActorFromSession(tracker.Session{ID: id, Role: tracker.RoleAdmin, Email: "admin@example.com"})
	if actor.Role != tracker.RoleAdmin || actor.ActorID != id.String() || actor.UserID != id.String() {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
