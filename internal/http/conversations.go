package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

// Watchers reports debounce watcher state. Implemented by debounce.Coordinator.
type Watchers interface {
	Active(id string) bool
	Stats() (running, pending int)
}

// ConversationsHandler exposes conversation state to operators.
type ConversationsHandler struct {
	buffer   *conversation.Buffer
	session  *conversation.SessionWindow
	edit     *conversation.EditWindow
	cooldown *conversation.Cooldown
	watchers Watchers
	token    string
}

func NewConversationsHandler(buffer *conversation.Buffer, session *conversation.SessionWindow, edit *conversation.EditWindow,
	cooldown *conversation.Cooldown, watchers Watchers, token string) *ConversationsHandler {
	return &ConversationsHandler{
		buffer:   buffer,
		session:  session,
		edit:     edit,
		cooldown: cooldown,
		watchers: watchers,
		token:    token,
	}
}

func (h *ConversationsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/conversations/{id}", requireToken(h.token, h.handleGet))
	mux.HandleFunc("POST /v1/conversations/{id}/cooldown", requireToken(h.token, h.handleCooldown))
	mux.HandleFunc("GET /v1/watchers", requireToken(h.token, h.handleWatchers))
}

type conversationState struct {
	conversation.State
	WatcherActive bool `json:"watcher_active"`
}

func (h *ConversationsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := conversation.Normalize(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return
	}
	writeJSON(w, http.StatusOK, conversationState{
		State:         conversation.Inspect(r.Context(), id, h.buffer, h.session, h.edit, h.cooldown),
		WatcherActive: h.watchers.Active(id),
	})
}

type cooldownRequest struct {
	Seconds int `json:"seconds"` // <= 0 uses the configured default
}

func (h *ConversationsHandler) handleCooldown(w http.ResponseWriter, r *http.Request) {
	id := conversation.Normalize(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req cooldownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	if err := h.cooldown.Activate(r.Context(), id, time.Duration(req.Seconds)*time.Second); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	_, remaining := h.cooldown.IsActive(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "cooldown_remaining": remaining})
}

func (h *ConversationsHandler) handleWatchers(w http.ResponseWriter, r *http.Request) {
	running, pending := h.watchers.Stats()
	writeJSON(w, http.StatusOK, map[string]int{"running": running, "pending": pending})
}
