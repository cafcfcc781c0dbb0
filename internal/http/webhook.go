package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/goturn/internal/ingest"
)

// Inbound handles one parsed inbound message. Implemented by ingest.Ingestor.
type Inbound interface {
	Handle(ctx context.Context, msg bus.InboundMessage) ingest.Outcome
}

// WebhookHandler receives UAZ gateway webhooks.
type WebhookHandler struct {
	inbound  Inbound
	token    string // shared secret, empty = open
	maxChars int    // 0 = unlimited
}

func NewWebhookHandler(inbound Inbound, token string, maxChars int) *WebhookHandler {
	return &WebhookHandler{inbound: inbound, token: token, maxChars: maxChars}
}

// RegisterRoutes registers the webhook routes. The root path also accepts
// POSTs because gateways are often pointed at the bare host.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhook/whatsapp", h.handleWebhook)
	mux.HandleFunc("POST /{$}", h.handleWebhook)
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.token != "" {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = r.Header.Get("X-Webhook-Token")
		}
		if !tokenEqual(got, h.token) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	msg, ok := whatsapp.ParseWebhook(payload)
	if !ok {
		writeJSON(w, http.StatusOK, ingest.Outcome{Status: ingest.StatusIgnored})
		return
	}
	if h.maxChars > 0 {
		if runes := []rune(msg.Content); len(runes) > h.maxChars {
			slog.Warn("webhook: message truncated", "conversation", msg.SenderID, "chars", len(runes))
			msg.Content = string(runes[:h.maxChars])
		}
	}

	// The turn outlives the webhook request.
	out := h.inbound.Handle(context.WithoutCancel(r.Context()), msg)
	writeJSON(w, http.StatusOK, out)
}
