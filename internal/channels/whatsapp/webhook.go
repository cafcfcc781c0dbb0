package whatsapp

import (
	"strings"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/conversation"
)

// ParseWebhook extracts an inbound message from a UAZ webhook payload. The
// gateway posts several shapes (a "message" object, a "messages" array, or
// flat fields), so the sender is taken from the first candidate that looks
// like a phone number. It reports false when no sender or text is found.
func ParseWebhook(payload map[string]any) (bus.InboundMessage, bool) {
	chat := object(payload["chat"])
	msg := object(payload["message"])

	if list, ok := payload["messages"].([]any); ok && len(list) > 0 {
		if m0 := object(list[0]); m0 != nil {
			msg = m0
			chat = map[string]any{"wa_id": firstNonEmpty(str(m0["sender"]), str(m0["chatid"]))}
		}
	}

	phone := ""
	for _, cand := range []string{
		str(msg["sender"]), str(msg["chatid"]),
		str(chat["id"]), str(chat["wa_id"]), str(chat["phone"]),
		str(payload["from"]), str(payload["sender"]),
	} {
		if n, ok := cleanNumber(cand); ok {
			phone = n
			break
		}
	}
	if raw := str(payload["from"]); phone == "" && raw != "" && !strings.Contains(raw, "@lid") {
		phone = conversation.Normalize(raw)
	}

	text := str(payload["text"])
	messageID := firstNonEmpty(str(payload["id"]), str(payload["messageid"]))
	msgType := classify(msg)

	var fromMe, sentByAPI bool
	if msg != nil {
		messageID = firstNonEmpty(str(msg["messageid"]), str(msg["id"]), messageID)
		fromMe = truthy(msg["fromMe"])
		sentByAPI = truthy(msg["wasSentByApi"])

		switch content := msg["content"].(type) {
		case string:
			if text == "" {
				text = content
			}
		case map[string]any:
			text = firstNonEmpty(str(content["text"]), str(content["caption"]), text)
		}
		if text == "" {
			if body := object(msg["text"]); body != nil {
				text = str(body["body"])
			} else {
				text = firstNonEmpty(str(msg["text"]), str(msg["body"]))
			}
		}
	}

	// Outgoing messages name the customer in the chat, not the sender.
	if fromMe || sentByAPI {
		for _, cand := range []string{str(chat["wa_id"]), str(chat["phone"]), str(payload["sender"])} {
			if cand != "" && !strings.Contains(cand, "@lid") {
				phone = conversation.Normalize(cand)
				break
			}
		}
	}

	text = withMediaPlaceholder(msgType, strings.TrimSpace(text))

	in := bus.InboundMessage{
		Channel:   "whatsapp",
		SenderID:  phone,
		Content:   text,
		MessageID: messageID,
		Type:      msgType,
		FromMe:    fromMe || sentByAPI,
		SentByAPI: sentByAPI,
	}
	return in, phone != "" && text != ""
}

// cleanNumber strips a JID suffix and accepts 10 to 15 digit numbers.
// Group and linked-device ids are rejected.
func cleanNumber(jid string) (string, bool) {
	if jid == "" || strings.Contains(jid, "@lid") || strings.Contains(jid, "@g.us") {
		return "", false
	}
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	n := conversation.Normalize(jid)
	if len(n) < 10 || len(n) > 15 {
		return "", false
	}
	return n, true
}

func classify(msg map[string]any) bus.MessageType {
	raw := strings.ToLower(str(msg["messageType"]))
	media := strings.ToLower(str(msg["mediaType"]))
	base := strings.ToLower(str(msg["type"]))
	mime := strings.ToLower(str(msg["mimetype"]))

	switch {
	case strings.Contains(raw, "audio") || strings.Contains(media, "ptt") || strings.Contains(base, "audio"):
		return bus.MessageAudio
	case strings.Contains(raw, "image") || strings.Contains(media, "image") || strings.Contains(base, "image"):
		return bus.MessageImage
	case strings.Contains(raw, "document") || strings.Contains(base, "document") || strings.Contains(mime, "application/pdf"):
		return bus.MessageDocument
	}
	return bus.MessageText
}

// Media content is not fetched; the engine sees a marker instead.
func withMediaPlaceholder(t bus.MessageType, text string) string {
	switch t {
	case bus.MessageAudio:
		if text == "" {
			return "[audio]"
		}
	case bus.MessageImage:
		return strings.TrimSpace(text + " [image]")
	case bus.MessageDocument:
		return strings.TrimSpace(text + " [document]")
	}
	return text
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	case float64:
		return b != 0
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
