package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/dispatch"
)

// Responder runs one unpaced turn. Implemented by dispatch.Dispatcher.
type Responder interface {
	Respond(ctx context.Context, id, text string) (dispatch.Result, error)
}

// MessagesHandler serves the direct message endpoint, which bypasses
// buffering and returns the engine reply in the response body.
type MessagesHandler struct {
	responder Responder
	token     string
}

func NewMessagesHandler(responder Responder, token string) *MessagesHandler {
	return &MessagesHandler{responder: responder, token: token}
}

func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/messages", requireToken(h.token, h.handleMessage))
}

type directRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type directResponse struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	Phone          string `json:"phone"`
	OrderSubmitted bool   `json:"order_submitted,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (h *MessagesHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req directRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	phone := conversation.Normalize(req.Phone)
	if phone == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, directResponse{Phone: phone, Error: "phone and message are required"})
		return
	}

	res, err := h.responder.Respond(r.Context(), phone, req.Message)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, directResponse{Phone: phone, Response: res.Reply, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, directResponse{
		Success:        true,
		Response:       res.Reply,
		Phone:          phone,
		OrderSubmitted: res.OrderSubmitted,
	})
}
