package livechat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// echoServer upgrades, echoes every frame back to its sender, and then
// pushes one counterpart message.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
			reply, _ := protocol.EncodeChatMessage("sess-1", "agent", "agent-9", "hello back", "text")
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestChannelDropsOwnEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	received := make(chan protocol.Envelope, 4)
	d := protocol.NewDispatcher().On(protocol.TypeChatMessage, func(env protocol.Envelope) {
		received <- env
	})
	ch, err := Dial(context.Background(), wsURL(srv), ChannelOptions{
		SelfID:     "v-1",
		Dispatcher: d,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if err := ch.Send("sess-1", "visitor", "hi there", "text"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case env := <-received:
		if env.SenderID != "agent-9" {
			t.Fatalf("first dispatched frame from %q, want agent-9 (own echo must be dropped)", env.SenderID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no counterpart frame received")
	}
	select {
	case env := <-received:
		t.Fatalf("unexpected extra frame from %q", env.SenderID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ch, err := Dial(context.Background(), wsURL(srv), ChannelOptions{SelfID: "v-1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ch.Close()
	ch.Close()
	ch.Close()

	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
	if err := ch.Send("sess-1", "visitor", "late", "text"); err == nil {
		t.Fatal("Send after Close should fail")
	}
}

func TestChannelBoundedReconnectCallsOnDownOnce(t *testing.T) {
	// The server drops every connection right after the upgrade, so each
	// redial succeeds and then immediately fails again.
	var upgrades int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&upgrades, 1)
		conn.Close()
	}))
	defer srv.Close()

	var downs int32
	ch, err := Dial(context.Background(), wsURL(srv), ChannelOptions{
		SelfID:    "v-1",
		Reconnect: ReconnectPolicy{MaxAttempts: 2, Interval: 10 * time.Millisecond},
		OnDown:    func(error) { atomic.AddInt32(&downs, 1) },
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case <-ch.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("channel never gave up")
	}
	if n := atomic.LoadInt32(&downs); n != 1 {
		t.Fatalf("OnDown fired %d times, want 1", n)
	}
}

func TestChannelDialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/chat/ws/v-1", ChannelOptions{SelfID: "v-1"})
	if err == nil {
		t.Fatal("Dial against a closed port should fail")
	}
}

func TestChannelURLDerivation(t *testing.T) {
	if got := VisitorChannelURL("http://broker:8080", "v-1"); got != "ws://broker:8080/chat/ws/v-1" {
		t.Fatalf("VisitorChannelURL = %q", got)
	}
	if got := AgentChannelURL("https://broker", "agent-9"); got != "wss://broker/chat/ws/support/agent-9" {
		t.Fatalf("AgentChannelURL = %q", got)
	}
}
