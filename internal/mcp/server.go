// Package mcp exposes conversation state to the response engine as MCP
// tools over streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/goturn/internal/conversation"
	"github.com/nextlevelbuilder/goturn/internal/store"
)

const defaultSearchLimit = 5

// Tools holds the state the MCP tools read and write. Buffer and History
// may be nil; without History search_history reports an error.
type Tools struct {
	Buffer   *conversation.Buffer
	Session  *conversation.SessionWindow
	Edit     *conversation.EditWindow
	Cooldown *conversation.Cooldown
	History  store.HistoryStore
}

// NewServer registers every tool on a new MCP server.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("goturn", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("edit_window_status",
		mcp.WithDescription("Report whether the customer's last order can still be amended."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Customer phone number")),
	), t.handleEditWindowStatus)

	s.AddTool(mcp.NewTool("order_submitted",
		mcp.WithDescription("Record a successful order submission and open the edit window."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Customer phone number")),
		mcp.WithNumber("minutes", mcp.Description("Edit window length in minutes (default from config)")),
	), t.handleOrderSubmitted)

	s.AddTool(mcp.NewTool("session_status",
		mcp.WithDescription("Read the session, edit window and cooldown state of a conversation without refreshing it."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Customer phone number")),
	), t.handleSessionStatus)

	s.AddTool(mcp.NewTool("search_history",
		mcp.WithDescription("Search the conversation's recent chat history by keywords."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Customer phone number")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Keywords to look for")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of messages (default 5)")),
	), t.handleSearchHistory)

	s.AddTool(mcp.NewTool("activate_cooldown",
		mcp.WithDescription("Pause automated replies so a human can take over the conversation."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Customer phone number")),
		mcp.WithNumber("minutes", mcp.Description("Cooldown length in minutes (default from config)")),
	), t.handleActivateCooldown)

	return s
}

// Handler serves the MCP server over streamable HTTP at path.
func Handler(s *server.MCPServer, path string) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath(path))
}

// Snapshot reads the conversation state without side effects.
func (t *Tools) Snapshot(ctx context.Context, phone string) conversation.State {
	return conversation.Inspect(ctx, phone, t.Buffer, t.Session, t.Edit, t.Cooldown)
}

// OrderSubmitted opens the edit window. minutes <= 0 uses the default.
func (t *Tools) OrderSubmitted(ctx context.Context, phone string, minutes int) error {
	return t.Edit.Open(ctx, phone, time.Duration(minutes)*time.Minute)
}

// ActivateCooldown pauses automated replies. minutes <= 0 uses the default.
func (t *Tools) ActivateCooldown(ctx context.Context, phone string, minutes int) error {
	return t.Cooldown.Activate(ctx, phone, time.Duration(minutes)*time.Minute)
}

// SearchHistory returns matching messages, best match first.
func (t *Tools) SearchHistory(ctx context.Context, phone, query string, limit int) ([]store.HistoryMessage, error) {
	if t.History == nil {
		return nil, errNoHistory
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return t.History.Search(ctx, conversation.Normalize(phone), query, limit)
}

func (t *Tools) handleEditWindowStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]bool{"open": t.Edit.IsOpen(ctx, phone)})
}

func (t *Tools) handleOrderSubmitted(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.OrderSubmitted(ctx, phone, req.GetInt("minutes", 0)); err != nil {
		return mcp.NewToolResultError("could not open edit window: " + err.Error()), nil
	}
	slog.Info("mcp: order submitted", "conversation", conversation.Normalize(phone))
	return mcp.NewToolResultText("edit window opened"), nil
}

func (t *Tools) handleSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t.Snapshot(ctx, phone))
}

func (t *Tools) handleSearchHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.SearchHistory(ctx, phone, query, req.GetInt("limit", defaultSearchLimit))
	if err != nil {
		return mcp.NewToolResultError("history search failed: " + err.Error()), nil
	}
	return jsonResult(msgs)
}

func (t *Tools) handleActivateCooldown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := req.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.ActivateCooldown(ctx, phone, req.GetInt("minutes", 0)); err != nil {
		return mcp.NewToolResultError("could not activate cooldown: " + err.Error()), nil
	}
	return mcp.NewToolResultText("cooldown active"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
