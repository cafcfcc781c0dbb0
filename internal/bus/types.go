// Package bus holds the message types shared by channels and the inbound
// pipeline.
package bus

import "context"

// MessageType classifies inbound content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageAudio    MessageType = "audio"
	MessageImage    MessageType = "image"
	MessageDocument MessageType = "document"
)

// InboundMessage is a message received from a WhatsApp transport.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	SenderID  string            `json:"sender_id"` // customer phone, digits only
	Content   string            `json:"content"`
	MessageID string            `json:"message_id,omitempty"`
	Type      MessageType       `json:"type,omitempty"`
	FromMe    bool              `json:"from_me,omitempty"`     // authored by the business account
	SentByAPI bool              `json:"sent_by_api,omitempty"` // authored through the gateway API (i.e. by this service)
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageHandler handles an inbound message from a channel.
type MessageHandler func(ctx context.Context, msg InboundMessage)
