package livechat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

func writeSSE(t *testing.T, w http.ResponseWriter, typ string, payload any) {
	t.Helper()
	raw, err := protocol.Encode(typ, payload)
	if err != nil {
		t.Errorf("encode %s: %v", typ, err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
	w.(http.Flusher).Flush()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func TestNotificationStreamBacklogDedupAndBadge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "tok" {
			t.Errorf("token = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(t, w, protocol.TypeConnected, nil)
		writeSSE(t, w, protocol.TypeNotification, protocol.NotificationEvent{ID: "n1", Title: "first"})
		writeSSE(t, w, protocol.TypeNotification, protocol.NotificationEvent{ID: "n2", Title: "second", Read: true})
		// Backlog replays can overlap with live pushes; same id twice.
		writeSSE(t, w, protocol.TypeNewNotification, protocol.NotificationEvent{ID: "n1", Title: "first"})
		writeSSE(t, w, protocol.TypeNewNotification, protocol.NotificationEvent{ID: "n3", Title: "third"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	ns := NewNotificationStream(srv.URL+"/notifications/stream", "tok", NotificationStreamOptions{
		Backoff: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ns.Run(ctx) }()

	waitFor(t, func() bool { return len(ns.Notifications()) == 3 }, "backlog never settled at 3 items")
	if got := ns.Unread(); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}
	list := ns.Notifications()
	if list[0].ID != "n3" {
		t.Fatalf("newest first: got %q at head", list[0].ID)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after logout: %v", err)
	}
}

func TestNotificationStreamReadDeleteClear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(t, w, protocol.TypeNewNotification, protocol.NotificationEvent{ID: "n1"})
		writeSSE(t, w, protocol.TypeNewNotification, protocol.NotificationEvent{ID: "n2"})
		writeSSE(t, w, protocol.TypeNotificationRead, protocol.NotificationRef{NotificationID: "n1"})
		writeSSE(t, w, protocol.TypeNotificationDeleted, protocol.NotificationRef{NotificationID: "n2"})
		writeSSE(t, w, protocol.TypeNotificationsCleared, nil)
		<-r.Context().Done()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var badges []int
	ns := NewNotificationStream(srv.URL, "tok", NotificationStreamOptions{
		Backoff: 10 * time.Millisecond,
		OnChange: func(unread int) {
			mu.Lock()
			badges = append(badges, unread)
			mu.Unlock()
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ns.Run(ctx)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(badges) >= 5
	}, "stream events never settled")

	if got := ns.Unread(); got != 0 {
		t.Fatalf("unread after clear = %d, want 0", got)
	}
	if got := len(ns.Notifications()); got != 0 {
		t.Fatalf("list after clear = %d items, want 0", got)
	}
	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 2, 1, 0, 0}
	for i, b := range want {
		if badges[i] != b {
			t.Fatalf("badge sequence = %v, want %v", badges, want)
		}
	}
}

func TestNotificationStreamUnauthorizedStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var authExpired int32
	ns := NewNotificationStream(srv.URL, "stale", NotificationStreamOptions{
		Backoff:       time.Millisecond,
		OnAuthExpired: func() { atomic.AddInt32(&authExpired, 1) },
	})
	err := ns.Run(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("Run = %v, want ErrAuthExpired", err)
	}
	if n := atomic.LoadInt32(&authExpired); n != 1 {
		t.Fatalf("OnAuthExpired fired %d times, want 1", n)
	}
	if got := ns.Reconnects(); got != 0 {
		t.Fatalf("reconnects = %d, want 0 (a rejected token must not retry)", got)
	}
}

func TestNotificationStreamReconnectsWithBackoffUntilLogout(t *testing.T) {
	var mu sync.Mutex
	var opens []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		opens = append(opens, time.Now())
		mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		// Drop the connection immediately to force a reconnect.
	}))
	defer srv.Close()

	backoff := 15 * time.Millisecond
	ns := NewNotificationStream(srv.URL, "tok", NotificationStreamOptions{Backoff: backoff})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ns.Run(ctx) }()

	waitFor(t, func() bool { return ns.Reconnects() >= 3 }, "stream never reconnected")
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after logout: %v", err)
	}

	after := ns.Reconnects()
	time.Sleep(4 * backoff)
	if got := ns.Reconnects(); got != after {
		t.Fatalf("reconnects kept climbing after logout: %d -> %d", after, got)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(opens); i++ {
		if gap := opens[i].Sub(opens[i-1]); gap < backoff {
			t.Fatalf("reconnect gap %v shorter than backoff %v", gap, backoff)
		}
	}
}
