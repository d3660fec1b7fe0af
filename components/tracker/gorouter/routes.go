package gorouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
	"github.com/goliatone/go-scptracker/components/tracker/httpapi"
)

// ActorResolver converts a router.Context into the command actor.
type ActorResolver func(router.Context) commands.Actor

// Config wires go-router with the tracker controller, API and hooks.
type Config[T any] struct {
	Router        router.Router[T]
	Controller    *tracker.Controller
	API           httpapi.Executor
	Reader        httpapi.StateReader
	Exporter      httpapi.Exporter
	Broadcast     *tracker.BroadcastHook
	Sessions      *tracker.SessionManager
	ActorResolver ActorResolver
	BasePath      string
	Routes        RouteConfig
}

// RouteConfig customizes the relative paths used for tracker endpoints.
type RouteConfig struct {
	HTML        string
	State       string
	Widgets     string
	WidgetIndex string
	Rename      string
	Settings    string
	RawStatus   string
	Poll        string
	Export      string
	Import      string
	Login       string
	Logout      string
	WebSocket   string
}

// Register mounts tracker routes (HTML, JSON, REST, WebSocket) on a go-router router.
func Register[T any](cfg Config[T]) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.Controller == nil {
		return errors.New("gorouter: controller is required")
	}
	routes := defaultRouteConfig(cfg.Routes)
	base := cfg.BasePath
	if base == "" {
		base = "/scp"
	}
	resolver := cfg.ActorResolver
	if resolver == nil {
		resolver = sessionActorResolver(cfg.Sessions)
	}

	group := cfg.Router.Group(base)

	group.Get(routes.HTML, router.WrapHandler(func(ctx router.Context) error {
		var buf bytes.Buffer
		if err := cfg.Controller.RenderTemplate(ctx.Context(), &buf); err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.Send(buf.Bytes())
	}))

	if cfg.Reader != nil {
		registerReads(group, cfg.Reader, resolver, routes)
	}
	if cfg.Exporter != nil {
		registerExport(group, cfg.Exporter, resolver, routes.Export)
	}
	if cfg.API != nil {
		registerAPI(group, cfg.API, resolver, routes)
	}
	if cfg.Broadcast != nil {
		registerWebSocket(group, cfg.Broadcast, routes.WebSocket)
	}
	return nil
}

func registerReads[T any](r router.Router[T], reader httpapi.StateReader, resolver ActorResolver, routes RouteConfig) {
	r.Get(routes.State, router.WrapHandler(requireSession(resolver, func(ctx router.Context) error {
		return ctx.JSON(http.StatusOK, httpapi.NewStatePayload(reader))
	})))

	r.Get(routes.RawStatus, router.WrapHandler(requireSession(resolver, func(ctx router.Context) error {
		raw, err := httpapi.RawStatus(reader, ctx.Param("id"))
		if err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, raw)
	})))
}

func registerExport[T any](r router.Router[T], exporter httpapi.Exporter, resolver ActorResolver, path string) {
	r.Get(path, router.WrapHandler(requireSession(resolver, func(ctx router.Context) error {
		includeToken, _ := strconv.ParseBool(ctx.Query("include_token"))
		data, name, err := exporter.ExportConfig(ctx.Context(), includeToken)
		if err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		ctx.SetHeader("Content-Type", "application/json")
		ctx.SetHeader("Content-Disposition", httpapi.ContentDisposition(name))
		return ctx.Send(data)
	})))
}

func registerAPI[T any](r router.Router[T], api httpapi.Executor, resolver ActorResolver, routes RouteConfig) {
	r.Post(routes.Widgets, router.WrapHandler(func(ctx router.Context) error {
		var payload struct {
			Input string `json:"input"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		input := commands.AddWidgetsInput{Actor: resolver(ctx), Input: payload.Input, Name: payload.Name}
		if err := api.AddWidgets(ctx.Context(), input); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusCreated, map[string]string{"status": "created"})
	}))

	r.Delete(routes.Widgets, router.WrapHandler(func(ctx router.Context) error {
		if err := api.ClearWidgets(ctx.Context(), commands.ClearWidgetsInput{Actor: resolver(ctx)}); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "cleared"})
	}))

	r.Delete(routes.WidgetIndex, router.WrapHandler(func(ctx router.Context) error {
		index, err := parseIndex(ctx.Param("index"))
		if err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.RemoveWidget(ctx.Context(), commands.RemoveWidgetInput{Actor: resolver(ctx), Index: index}); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "removed"})
	}))

	r.Post(routes.Rename, router.WrapHandler(func(ctx router.Context) error {
		index, err := parseIndex(ctx.Param("index"))
		if err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		input := commands.RenameWidgetInput{Actor: resolver(ctx), Index: index, Name: payload.Name}
		if err := api.RenameWidget(ctx.Context(), input); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "renamed"})
	}))

	r.Post(routes.Settings, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.UpdateSettingsInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.Actor = resolver(ctx)
		if err := api.UpdateSettings(ctx.Context(), payload); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "saved"})
	}))

	r.Post(routes.Poll, router.WrapHandler(func(ctx router.Context) error {
		input := commands.PollControlInput{Actor: resolver(ctx), WidgetID: ctx.Param("id"), Action: ctx.Param("action")}
		if err := api.PollControl(ctx.Context(), input); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusAccepted, map[string]string{"status": input.Action})
	}))

	r.Post(routes.Import, router.WrapHandler(func(ctx router.Context) error {
		input := commands.ImportConfigInput{Actor: resolver(ctx), Data: ctx.Body()}
		if err := api.ImportConfig(ctx.Context(), input); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "imported"})
	}))

	r.Post(routes.Login, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.LoginInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.Login(ctx.Context(), payload); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "logged_in"})
	}))

	r.Post(routes.Logout, router.WrapHandler(func(ctx router.Context) error {
		if err := api.Logout(ctx.Context(), commands.LogoutInput{}); err != nil {
			return respondError(ctx, httpapi.StatusCode(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
	}))
}

func registerWebSocket[T any](r router.Router[T], hook *tracker.BroadcastHook, path string) {
	cfg := router.DefaultWebSocketConfig()
	r.WebSocket(path, cfg, func(ws router.WebSocketContext) error {
		events, cancel := hook.Subscribe()
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(event); err != nil {
					return err
				}
			case <-ws.Context().Done():
				return ws.Close()
			}
		}
	})
}

// requireSession rejects requests without a signed-in actor.
func requireSession(resolver ActorResolver, next func(router.Context) error) func(router.Context) error {
	return func(ctx router.Context) error {
		if !resolver(ctx).Role.Valid() {
			return respondError(ctx, http.StatusUnauthorized, tracker.ErrUnauthenticated)
		}
		return next(ctx)
	}
}

func sessionActorResolver(sessions *tracker.SessionManager) ActorResolver {
	return func(router.Context) commands.Actor {
		if sessions == nil {
			return commands.Actor{}
		}
		session, ok := sessions.Current()
		if !ok {
			return commands.Actor{}
		}
		return commands.ActorFromSession(session)
	}
}

func parseIndex(value string) (int, error) {
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 0 {
		return 0, errors.New("widget index must be a non-negative integer")
	}
	return idx, nil
}

func respondError(ctx router.Context, status int, err error) error {
	return ctx.JSON(status, map[string]string{"error": err.Error()})
}

func defaultRouteConfig(routes RouteConfig) RouteConfig {
	if routes.HTML == "" {
		routes.HTML = "/dashboard"
	}
	if routes.State == "" {
		routes.State = "/dashboard/state"
	}
	if routes.Widgets == "" {
		routes.Widgets = "/dashboard/widgets"
	}
	if routes.WidgetIndex == "" {
		routes.WidgetIndex = "/dashboard/widgets/:index"
	}
	if routes.Rename == "" {
		routes.Rename = "/dashboard/widgets/:index/rename"
	}
	if routes.Settings == "" {
		routes.Settings = "/dashboard/settings"
	}
	if routes.RawStatus == "" {
		routes.RawStatus = "/dashboard/status/:id/raw"
	}
	if routes.Poll == "" {
		routes.Poll = "/dashboard/status/:id/poll/:action"
	}
	if routes.Export == "" {
		routes.Export = "/dashboard/config/export"
	}
	if routes.Import == "" {
		routes.Import = "/dashboard/config/import"
	}
	if routes.Login == "" {
		routes.Login = "/login"
	}
	if routes.Logout == "" {
		routes.Logout = "/logout"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/dashboard/ws"
	}
	return routes
}
