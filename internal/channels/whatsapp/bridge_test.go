package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goturn/internal/bus"
	"github.com/nextlevelbuilder/goturn/internal/channels"
	"github.com/nextlevelbuilder/goturn/internal/config"
)

func TestBridgeRoundTrip(t *testing.T) {
	frames := make(chan map[string]string, 8)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "message", "chat": "120363000000000000@g.us", "from": "5511999990000@s.whatsapp.net", "content": "grupo"})
		_ = conn.WriteJSON(map[string]any{"type": "status", "content": "ignored"})
		_ = conn.WriteJSON(map[string]any{"type": "message", "from": "5511999990000@s.whatsapp.net", "content": " leite ", "id": "m1"})

		for {
			var f map[string]string
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			frames <- f
		}
	}))
	defer srv.Close()

	inbound := make(chan bus.InboundMessage, 8)
	ch, err := NewBridge(config.WhatsAppConfig{BridgeURL: "ws" + strings.TrimPrefix(srv.URL, "http")},
		func(_ context.Context, msg bus.InboundMessage) { inbound <- msg })
	require.NoError(t, err)
	require.NoError(t, ch.Start(context.Background()))
	defer ch.Stop(context.Background())

	select {
	case msg := <-inbound:
		assert.Equal(t, "5511999990000", msg.SenderID)
		assert.Equal(t, "leite", msg.Content)
		assert.Equal(t, "m1", msg.MessageID)
		assert.Equal(t, bus.MessageText, msg.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no inbound message")
	}

	d := ch.SendText(context.Background(), "+55 11 99999-0000", "Chega em 40 min")
	require.True(t, d.OK, "send: %v", d.Err)
	d = ch.SendPresence(context.Background(), "5511999990000", channels.PresencePaused)
	require.True(t, d.OK, "presence: %v", d.Err)

	for _, want := range []map[string]string{
		{"type": "message", "to": "5511999990000", "content": "Chega em 40 min"},
		{"type": "presence", "to": "5511999990000", "presence": "paused"},
	} {
		select {
		case got := <-frames:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatal("bridge did not receive frame")
		}
	}
	assert.Empty(t, inbound, "group and non-message frames are dropped")
}

func TestBridgeSendWhileDisconnected(t *testing.T) {
	ch, err := NewBridge(config.WhatsAppConfig{BridgeURL: "ws://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	d := ch.SendText(context.Background(), "5511999990000", "oi")
	assert.False(t, d.OK)
	assert.ErrorIs(t, d.Err, errBridgeDown)
}

func TestBridgeFrameShape(t *testing.T) {
	var f bridgeFrame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"message","from":"a","from_me":true,"sent_by_api":true}`), &f))
	assert.True(t, f.FromMe)
	assert.True(t, f.SentByAPI)

	_, err := NewBridge(config.WhatsAppConfig{}, nil)
	assert.Error(t, err)
}
