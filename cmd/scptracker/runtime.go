package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-users/pkg/types"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
	"github.com/goliatone/go-scptracker/pkg/activity"
	"github.com/goliatone/go-scptracker/pkg/activity/usersink"
	"github.com/goliatone/go-scptracker/pkg/amqpnotify"
	"github.com/goliatone/go-scptracker/pkg/kvstore"
	"github.com/goliatone/go-scptracker/pkg/logging"
	"github.com/goliatone/go-scptracker/pkg/mercury"
)

// tokenEnv seeds the Basic token when storage has none.
const tokenEnv = "SCPTRACKER_TOKEN"

var errNotLoggedIn = errors.New("scptracker: not logged in (run `scptracker login` first)")

// runtime owns the long-lived collaborators shared by subcommands.
type runtime struct {
	settings Settings
	logs     *logging.Logrus
	log      *logrus.Entry
	out      io.Writer
	store    kvstore.Store
	sessions *tracker.SessionManager

	// fetcher overrides the Mercury client when set.
	fetcher   tracker.StatusFetcher
	broadcast *tracker.BroadcastHook
	notifier  *amqpnotify.Publisher
	dashboard *tracker.Dashboard
}

func newRuntime(ctx context.Context, settings Settings, out io.Writer) (*runtime, error) {
	logs := logging.NewLogrus(settings.LogLevel, os.Stderr).WithJSON(settings.LogJSON)
	store, err := kvstore.Open(ctx, settings.Storage)
	if err != nil {
		return nil, fmt.Errorf("scptracker: open storage: %w", err)
	}
	rt := &runtime{
		settings:  settings,
		logs:      logs,
		log:       logs.Get("scptracker"),
		out:       out,
		store:     store,
		broadcast: tracker.NewBroadcastHook(),
	}
	rt.sessions = tracker.NewSessionManager(tracker.SessionOptions{
		Store:         store,
		Authenticator: tracker.NewStaticAuthenticator(settings.Accounts...),
		Logger:        logs.Get("session"),
	})
	if _, _, err := rt.sessions.Restore(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("scptracker: restore session: %w", err)
	}
	return rt, nil
}

// actor returns the signed-in actor or errNotLoggedIn.
func (rt *runtime) actor() (commands.Actor, error) {
	session, ok := rt.sessions.Current()
	if !ok {
		return commands.Actor{}, errNotLoggedIn
	}
	return commands.ActorFromSession(session), nil
}

func (rt *runtime) telemetry() tracker.LogTelemetry {
	return tracker.LogTelemetry{Logger: rt.logs.Get("telemetry")}
}

// startDashboard builds and starts the dashboard once.
func (rt *runtime) startDashboard(ctx context.Context) (*tracker.Dashboard, error) {
	if rt.dashboard != nil {
		return rt.dashboard, nil
	}
	fetcher := rt.fetcher
	if fetcher == nil {
		client, err := mercury.NewHTTPClient(mercury.HTTPConfig{
			BaseURL:   rt.settings.BaseURL,
			Timeout:   rt.settings.Timeout,
			UserAgent: "scptracker",
			Logger:    rt.logs.Get("mercury"),
		})
		if err != nil {
			return nil, err
		}
		fetcher = client
	}

	hooks := tracker.MultiHook{rt.broadcast}
	if rt.settings.AMQP.URL != "" {
		rt.notifier = amqpnotify.New(amqpnotify.Config{
			URL:      rt.settings.AMQP.URL,
			Exchange: rt.settings.AMQP.Exchange,
			Logger:   rt.logs.Get("amqp"),
		})
		if err := rt.notifier.Start(ctx); err != nil {
			return nil, err
		}
		hooks = append(hooks, &tracker.NotificationsHook{Client: rt.notifier, StatusOnly: rt.settings.AMQP.StatusOnly})
	}

	dash := tracker.NewDashboard(tracker.Options{
		Fetcher:        fetcher,
		Store:          rt.store,
		RefreshHook:    hooks,
		Telemetry:      rt.telemetry(),
		Logger:         rt.logs.Get("dashboard"),
		ActivityHooks:  activity.Hooks{usersink.Hook{Sink: logSink{log: rt.logs.Get("activity")}}},
		ActivityConfig: activity.Config{Enabled: true, Channel: "scptracker"},
		Title:          rt.settings.Title,
	})
	if err := dash.Start(ctx); err != nil {
		return nil, err
	}
	if token := strings.TrimSpace(os.Getenv(tokenEnv)); token != "" && dash.State().Token == "" {
		if err := dash.SetToken(ctx, token); err != nil {
			dash.Close()
			return nil, err
		}
		rt.log.Info("token seeded from environment")
	}
	rt.dashboard = dash
	return dash, nil
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.dashboard != nil {
		errs = append(errs, rt.dashboard.Close())
	}
	if rt.notifier != nil {
		errs = append(errs, rt.notifier.Close())
	}
	rt.broadcast.Close()
	errs = append(errs, rt.store.Close())
	return errors.Join(errs...)
}

// logSink writes go-users activity records to the structured log.
type logSink struct {
	log *logrus.Entry
}

func (s logSink) Log(_ context.Context, record types.ActivityRecord) error {
	s.log.WithFields(logrus.Fields{
		"verb":        record.Verb,
		"object_type": record.ObjectType,
		"object_id":   record.ObjectID,
		"actor_id":    record.ActorID.String(),
		"channel":     record.Channel,
	}).WithFields(logrus.Fields(record.Data)).Info("activity")
	return nil
}
