package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goliatone/go-scptracker/components/tracker"
	"github.com/goliatone/go-scptracker/components/tracker/commands"
)

const maxImportBytes = 1 << 20

// ActorResolver returns the caller of a request.
type ActorResolver func(*http.Request) commands.Actor

// Handlers exposes HTTP endpoints backed by shared commands.
type Handlers struct {
	API      Executor
	Reader   StateReader
	Exporter Exporter
	Actor    ActorResolver
}

type addPayload struct {
	Input string `json:"input"`
	Name  string `json:"name"`
}

type renamePayload struct {
	Name string `json:"name"`
}

func (h *Handlers) actor(r *http.Request) commands.Actor {
	if h.Actor == nil {
		return commands.Actor{}
	}
	return h.Actor(r)
}

// authenticated writes 401 and returns false when the request has no signed-in actor.
func (h *Handlers) authenticated(w http.ResponseWriter, r *http.Request) bool {
	if h.actor(r).Role.Valid() {
		return true
	}
	writeError(w, http.StatusUnauthorized, tracker.ErrUnauthenticated)
	return false
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}
	if h.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("state reader not configured"))
		return
	}
	writeJSON(w, http.StatusOK, NewStatePayload(h.Reader))
}

func (h *Handlers) HandleRawStatus(w http.ResponseWriter, r *http.Request, widgetID string) {
	if !h.authenticated(w, r) {
		return
	}
	if h.Reader == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("state reader not configured"))
		return
	}
	raw, err := RawStatus(h.Reader, widgetID)
	if err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (h *Handlers) HandleAddWidgets(w http.ResponseWriter, r *http.Request) {
	var payload addPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	input := commands.AddWidgetsInput{Actor: h.actor(r), Input: payload.Input, Name: payload.Name}
	if err := h.API.AddWidgets(r.Context(), input); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) HandleRemoveWidget(w http.ResponseWriter, r *http.Request, index string) {
	idx, err := parseIndex(index)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.API.RemoveWidget(r.Context(), commands.RemoveWidgetInput{Actor: h.actor(r), Index: idx}); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleRenameWidget(w http.ResponseWriter, r *http.Request, index string) {
	idx, err := parseIndex(index)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload renamePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	input := commands.RenameWidgetInput{Actor: h.actor(r), Index: idx, Name: payload.Name}
	if err := h.API.RenameWidget(r.Context(), input); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleClearWidgets(w http.ResponseWriter, r *http.Request) {
	if err := h.API.ClearWidgets(r.Context(), commands.ClearWidgetsInput{Actor: h.actor(r)}); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload commands.UpdateSettingsInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload.Actor = h.actor(r)
	if err := h.API.UpdateSettings(r.Context(), payload); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandlePollControl(w http.ResponseWriter, r *http.Request, widgetID, action string) {
	if err := h.API.PollControl(r.Context(), commands.PollControlInput{Actor: h.actor(r), WidgetID: widgetID, Action: action}); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleExportConfig(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(w, r) {
		return
	}
	if h.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("exporter not configured"))
		return
	}
	includeToken, _ := strconv.ParseBool(r.URL.Query().Get("include_token"))
	data, name, err := h.Exporter.ExportConfig(r.Context(), includeToken)
	if err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", ContentDisposition(name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handlers) HandleImportConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.API.ImportConfig(r.Context(), commands.ImportConfigInput{Actor: h.actor(r), Data: data}); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var payload commands.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.API.Login(r.Context(), payload); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.API.Logout(r.Context(), commands.LogoutInput{}); err != nil {
		writeError(w, StatusCode(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContentDisposition builds the attachment header for an export download.
func ContentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func parseIndex(value string) (int, error) {
	idx, err := strconv.Atoi(value)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid widget index %q", value)
	}
	return idx, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
