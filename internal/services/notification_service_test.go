package services

import (
	"context"
	"errors"
	"testing"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

type fakeStream struct {
	frames []protocol.Envelope
}

func (f *fakeStream) Broadcast(frame []byte) {
	env, _ := protocol.Decode(frame)
	f.frames = append(f.frames, env)
}

type fakeEvents struct {
	keys []string
	fail bool
}

func (f *fakeEvents) Publish(ctx context.Context, key string, payload any) error {
	f.keys = append(f.keys, key)
	if f.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func (f *fakeEvents) Close() error { return nil }

func TestNotificationLifecycle_StreamMirror(t *testing.T) {
	db := newTestDB(t)
	stream := &fakeStream{}
	svc := &NotificationService{DB: db, Stream: stream}
	ctx := context.Background()

	n, err := svc.Create(ctx, "chat_request", "New Live Chat Request", "Chat request from Alice", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c, _ := svc.UnreadCount(ctx); c != 1 {
		t.Fatalf("unread = %d", c)
	}

	if err := svc.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if c, _ := svc.UnreadCount(ctx); c != 0 {
		t.Fatalf("unread after read = %d", c)
	}

	if err := svc.Delete(ctx, n.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, n.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("repeat delete err = %v", err)
	}
	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	want := []string{
		protocol.TypeNewNotification,
		protocol.TypeNotificationRead,
		protocol.TypeNotificationDeleted,
		protocol.TypeNotificationsCleared,
	}
	if len(stream.frames) != len(want) {
		t.Fatalf("stream frames = %+v", stream.frames)
	}
	for i, typ := range want {
		if stream.frames[i].Type != typ {
			t.Fatalf("frame %d type = %q, want %q", i, stream.frames[i].Type, typ)
		}
	}

	var ev protocol.NotificationEvent
	if err := protocol.DecodeData(stream.frames[0], &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID != n.ID || ev.Title != "New Live Chat Request" || ev.Read {
		t.Fatalf("new_notification payload = %+v", ev)
	}
}

func TestNotificationCreate_PublishFailureIsSoft(t *testing.T) {
	db := newTestDB(t)
	ev := &fakeEvents{fail: true}
	svc := &NotificationService{DB: db, Events: ev}

	n, err := svc.Create(context.Background(), "chat_request", "t", "b", "")
	if err != nil {
		t.Fatalf("create must survive publish failure: %v", err)
	}
	if n.ID == "" || len(ev.keys) != 1 || ev.keys[0] != "support.notification.created" {
		t.Fatalf("n=%+v keys=%v", n, ev.keys)
	}
}
