package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
	"github.com/goliatone/go-scptracker/components/tracker/gorouter"
	"github.com/goliatone/go-scptracker/components/tracker/httpapi"
	"github.com/goliatone/go-scptracker/components/tracker/queries"
)

type watchCmd struct {
	Once bool `help:"Exit after every widget reported once."`
}

func (cmd *watchCmd) Run(ctx context.Context, rt *runtime) error {
	events, cancel := rt.broadcast.Subscribe()
	defer cancel()
	running := rt.dashboard != nil
	dash, err := rt.startDashboard(ctx)
	if err != nil {
		return err
	}
	pending := map[string]bool{}
	for _, w := range dash.Widgets() {
		pending[w.ID.String()] = true
	}
	if len(pending) == 0 {
		fmt.Fprintln(rt.out, "No widgets configured. Add some with `scptracker add`.")
		return nil
	}
	if running {
		settled, err := queries.NewStatusesQuery(dash).Query(ctx, queries.StatusesInput{Settled: true})
		if err != nil {
			return err
		}
		for _, status := range settled {
			fmt.Fprintln(rt.out, formatStatus(nameOf(dash.Widgets(), status.ID), status, time.Now()))
			delete(pending, status.ID.String())
		}
		if cmd.Once && len(pending) == 0 {
			return nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Reason != tracker.ReasonStatus || event.Status == nil || event.Status.Loading {
				continue
			}
			fmt.Fprintln(rt.out, formatStatus(nameOf(dash.Widgets(), event.Status.ID), *event.Status, time.Now()))
			delete(pending, event.WidgetID)
			if cmd.Once && len(pending) == 0 {
				return nil
			}
		}
	}
}

type serveCmd struct {
	Listen   string `help:"Override the listen address."`
	BasePath string `name:"base-path" default:"/scp" help:"Mount point of the dashboard routes."`
}

func (cmd *serveCmd) Run(ctx context.Context, rt *runtime) error {
	dash, err := rt.startDashboard(ctx)
	if err != nil {
		return err
	}
	renderer, err := tracker.NewTemplateRenderer()
	if err != nil {
		return err
	}
	chartOpts := []tracker.ChartOption{
		tracker.WithChartCache(tracker.NewChartCache(rt.settings.Chart.CacheTTL)),
		tracker.WithChartAssetsHost(rt.settings.Chart.AssetsHost),
	}
	if rt.settings.Chart.Theme != "" {
		chartOpts = append(chartOpts, tracker.WithChartTheme(rt.settings.Chart.Theme))
	}
	chart := tracker.NewUtilizationChart(chartOpts...)
	controller := tracker.NewController(tracker.ControllerOptions{
		Dashboard: dash,
		Sessions:  rt.sessions,
		Charts:    chart,
		Renderer:  renderer,
	})
	executor := newExecutor(dash, rt.sessions, rt.telemetry())

	server := router.NewFiberAdapter()
	if err := gorouter.Register(gorouter.Config[*fiber.App]{
		Router:     server.Router(),
		Controller: controller,
		API:        executor,
		Reader:     dash,
		Exporter:   dash,
		Broadcast:  rt.broadcast,
		Sessions:   rt.sessions,
		BasePath:   cmd.BasePath,
	}); err != nil {
		return err
	}

	listen := cmd.Listen
	if listen == "" {
		listen = rt.settings.Listen
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			rt.log.WithError(err).Warn("shutdown")
		}
	}()
	rt.log.WithField("url", "http://localhost"+listen+cmd.BasePath+"/dashboard").Info("dashboard ready")
	return server.Serve(listen)
}

func newExecutor(dash *tracker.Dashboard, sessions *tracker.SessionManager, telemetry commands.Telemetry) *httpapi.CommandExecutor {
	return &httpapi.CommandExecutor{
		AddCommander:      commands.NewAddWidgetsCommand(dash, telemetry),
		RemoveCommander:   commands.NewRemoveWidgetCommand(dash, telemetry),
		RenameCommander:   commands.NewRenameWidgetCommand(dash, telemetry),
		ClearCommander:    commands.NewClearWidgetsCommand(dash, telemetry),
		SettingsCommander: commands.NewUpdateSettingsCommand(dash, telemetry),
		ImportCommander:   commands.NewImportConfigCommand(dash, telemetry),
		PollCommander:     commands.NewPollControlCommand(dash, telemetry),
		LoginCommander:    commands.NewLoginCommand(sessions, telemetry),
		LogoutCommander:   commands.NewLogoutCommand(sessions, telemetry),
	}
}

type loginCmd struct {
	Role     string `required:"" enum:"admin,user" help:"Role to sign in as (admin or user)."`
	Email    string `required:"" help:"Account email."`
	Password string `env:"SCPTRACKER_PASSWORD" help:"Account password."`
}

func (cmd *loginCmd) Run(ctx context.Context, rt *runtime) error {
	input := commands.LoginInput{Role: tracker.Role(cmd.Role), Email: cmd.Email, Password: cmd.Password}
	if err := commands.NewLoginCommand(rt.sessions, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	session, _ := rt.sessions.Current()
	fmt.Fprintf(rt.out, "✓ Signed in as %s (%s)\n", session.Email, session.Role)
	return nil
}

type logoutCmd struct{}

func (cmd *logoutCmd) Run(ctx context.Context, rt *runtime) error {
	if err := commands.NewLogoutCommand(rt.sessions, rt.telemetry()).Execute(ctx, commands.LogoutInput{}); err != nil {
		return err
	}
	fmt.Fprintln(rt.out, "✓ Signed out")
	return nil
}

type listCmd struct{}

func (cmd *listCmd) Run(ctx context.Context, rt *runtime) error {
	state, err := tracker.NewPersistedState(rt.store, rt.logs.Get("state")).Load(ctx)
	if err != nil {
		return err
	}
	printWidgets(rt, state.Widgets)
	token := "not set"
	if state.Token != "" {
		token = "set"
	}
	fmt.Fprintf(rt.out, "Token %s, polling every %s\n", token, tracker.EffectiveInterval(state.IntervalSec))
	return nil
}

type addCmd struct {
	IDs  []string `arg:"" name:"id" help:"SCP identifiers."`
	Name string   `help:"Name for the new widgets (defaults to \"SCP <id>\")."`
}

func (cmd *addCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	before := len(dash.Widgets())
	input := commands.AddWidgetsInput{Actor: actor, Input: strings.Join(cmd.IDs, " "), Name: cmd.Name}
	if err := commands.NewAddWidgetsCommand(dash, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	widgets := dash.Widgets()
	fmt.Fprintf(rt.out, "✓ Added %s\n", english.Plural(len(widgets)-before, "widget", "widgets"))
	printWidgets(rt, widgets)
	return nil
}

type removeCmd struct {
	Position int `arg:"" help:"List position as printed by list (1-based)."`
}

func (cmd *removeCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	input := commands.RemoveWidgetInput{Actor: actor, Index: cmd.Position - 1}
	if err := commands.NewRemoveWidgetCommand(dash, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "✓ Removed widget #%d\n", cmd.Position)
	printWidgets(rt, dash.Widgets())
	return nil
}

type renameCmd struct {
	Position int    `arg:"" help:"List position as printed by list (1-based)."`
	Name     string `arg:"" help:"New widget name."`
}

func (cmd *renameCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	input := commands.RenameWidgetInput{Actor: actor, Index: cmd.Position - 1, Name: cmd.Name}
	if err := commands.NewRenameWidgetCommand(dash, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	printWidgets(rt, dash.Widgets())
	return nil
}

type clearCmd struct{}

func (cmd *clearCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	if err := commands.NewClearWidgetsCommand(dash, rt.telemetry()).Execute(ctx, commands.ClearWidgetsInput{Actor: actor}); err != nil {
		return err
	}
	remaining := dash.Widgets()
	if len(remaining) > 0 {
		fmt.Fprintf(rt.out, "✓ Cleared, %s locked\n", english.Plural(len(remaining), "widget stays", "widgets stay"))
		return nil
	}
	fmt.Fprintln(rt.out, "✓ Cleared every widget")
	return nil
}

type tokenCmd struct {
	Token string `arg:"" help:"Basic token, with or without the \"Basic \" prefix."`
}

func (cmd *tokenCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	input := commands.UpdateSettingsInput{Actor: actor, Token: &cmd.Token}
	if err := commands.NewUpdateSettingsCommand(dash, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	fmt.Fprintln(rt.out, "✓ Token saved")
	return nil
}

type intervalCmd struct {
	Seconds string `arg:"" help:"Polling interval in seconds; values under 2 poll every 2 seconds."`
}

func (cmd *intervalCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	sec := tracker.ParseIntervalSeconds(cmd.Seconds)
	input := commands.UpdateSettingsInput{Actor: actor, IntervalSec: &sec}
	if err := commands.NewUpdateSettingsCommand(dash, rt.telemetry()).Execute(ctx, input); err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "✓ Polling every %s\n", tracker.EffectiveInterval(sec))
	return nil
}

type exportCmd struct {
	Dir          string `type:"path" help:"Output directory (defaults to export_dir)."`
	IncludeToken bool   `name:"include-token" help:"Include the Basic token in the file."`
}

func (cmd *exportCmd) Run(ctx context.Context, rt *runtime) error {
	dash, err := rt.startDashboard(ctx)
	if err != nil {
		return err
	}
	dir := cmd.Dir
	if dir == "" {
		dir = rt.settings.ExportDir
	}
	name, err := dash.ExportTo(ctx, tracker.DirSink{Dir: dir}, cmd.IncludeToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "✓ Exported %s\n", name)
	return nil
}

type importCmd struct {
	File string `arg:"" type:"existingfile" help:"Configuration JSON file."`
}

func (cmd *importCmd) Run(ctx context.Context, rt *runtime) error {
	actor, dash, err := rt.authorized(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.File)
	if err != nil {
		return fmt.Errorf("scptracker: read %s: %w", cmd.File, err)
	}
	if err := commands.NewImportConfigCommand(dash, rt.telemetry()).Execute(ctx, commands.ImportConfigInput{Actor: actor, Data: data}); err != nil {
		return err
	}
	fmt.Fprintf(rt.out, "✓ Imported %s\n", cmd.File)
	printWidgets(rt, dash.Widgets())
	return nil
}

// authorized resolves the signed-in actor and starts the dashboard.
func (rt *runtime) authorized(ctx context.Context) (commands.Actor, *tracker.Dashboard, error) {
	actor, err := rt.actor()
	if err != nil {
		return commands.Actor{}, nil, err
	}
	dash, err := rt.startDashboard(ctx)
	if err != nil {
		return commands.Actor{}, nil, err
	}
	return actor, dash, nil
}

func printWidgets(rt *runtime, widgets []tracker.Widget) {
	if len(widgets) == 0 {
		fmt.Fprintln(rt.out, "No widgets configured.")
		return
	}
	var buf bytes.Buffer
	for i, w := range widgets {
		lock := ""
		if w.Locked {
			lock = " [locked]"
		}
		fmt.Fprintf(&buf, "%3d. %-24s %s%s\n", i+1, w.Name, w.ID, lock)
	}
	rt.out.Write(buf.Bytes())
}

func nameOf(widgets []tracker.Widget, id tracker.WidgetID) string {
	for _, w := range widgets {
		if w.ID.String() == id.String() {
			return w.Name
		}
	}
	return tracker.DefaultWidgetName(id)
}

func formatStatus(name string, status tracker.WidgetStatus, now time.Time) string {
	if status.State == tracker.PollError || status.Snapshot == nil {
		msg := status.Message
		if msg == "" {
			msg = string(status.State)
		}
		return fmt.Sprintf("%s: %s", name, msg)
	}
	snap := status.Snapshot
	return fmt.Sprintf("%s: %s of %s cards used (%.1f%%), %s available, fw %s, %s",
		name,
		humanize.Comma(snap.Total),
		humanize.Comma(snap.Capacity),
		snap.Utilization(),
		humanize.Comma(snap.Available()),
		snap.FirmwareVersion,
		tracker.RelativeTime(status.UpdatedAt, now),
	)
}
