// Package engine is the boundary to the conversational response engine.
// The engine owns reasoning and order tools; this layer only hands it one
// coalesced turn and reads back the reply.
package engine

import "context"

// Request is one user turn for a conversation.
type Request struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"message"`
	// NewSession is set when the previous session window had expired and
	// any earlier order must be ignored.
	NewSession bool `json:"new_session"`
	// EditWindowOpen tells the engine the last order may still be amended.
	EditWindowOpen bool `json:"edit_window_open"`
}

// Reply is the engine's answer. Text may contain segment delimiters.
type Reply struct {
	Text string `json:"output"`
	// OrderSubmitted is set when this turn successfully submitted an order.
	OrderSubmitted bool `json:"order_submitted"`
}

// Engine produces replies for turns.
type Engine interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, req Request) (Reply, error)

func (f Func) Respond(ctx context.Context, req Request) (Reply, error) { return f(ctx, req) }
