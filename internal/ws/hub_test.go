package ws

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ConnectionCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("connection count = %d, want %d", h.ConnectionCount(), want)
}

func recvFrame(t *testing.T, c *Connection) string {
	t.Helper()
	select {
	case frame := <-c.Send:
		return string(frame)
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered to %s", c.ParticipantID)
		return ""
	}
}

func TestHub_ParticipantRouting(t *testing.T) {
	h := startHub(t)

	visitor := h.NewConnection(nil, "v-1", false)
	agent1 := h.NewConnection(nil, "agent-1", true)
	agent2 := h.NewConnection(nil, "agent-2", true)
	h.Register(visitor)
	h.Register(agent1)
	h.Register(agent2)
	waitForCount(t, h, 3)

	h.SendToVisitor("v-1", []byte("to-visitor"))
	if got := recvFrame(t, visitor); got != "to-visitor" {
		t.Fatalf("visitor got %q", got)
	}

	h.SendToAgent("agent-1", []byte("to-agent"))
	if got := recvFrame(t, agent1); got != "to-agent" {
		t.Fatalf("agent got %q", got)
	}
	select {
	case frame := <-agent2.Send:
		t.Fatalf("agent-2 must not receive %q", frame)
	default:
	}

	h.BroadcastToAgents([]byte("queue-update"))
	if got := recvFrame(t, agent1); got != "queue-update" {
		t.Fatalf("agent-1 got %q", got)
	}
	if got := recvFrame(t, agent2); got != "queue-update" {
		t.Fatalf("agent-2 got %q", got)
	}
	select {
	case frame := <-visitor.Send:
		t.Fatalf("visitor must not receive agent broadcast %q", frame)
	default:
	}
}

func TestHub_MultipleSocketsPerParticipant(t *testing.T) {
	h := startHub(t)

	tab1 := h.NewConnection(nil, "v-1", false)
	tab2 := h.NewConnection(nil, "v-1", false)
	h.Register(tab1)
	h.Register(tab2)
	waitForCount(t, h, 2)

	h.SendToVisitor("v-1", []byte("hello"))
	if recvFrame(t, tab1) != "hello" || recvFrame(t, tab2) != "hello" {
		t.Fatal("both tabs must receive the push")
	}

	h.Unregister(tab1)
	waitForCount(t, h, 1)
	if _, ok := <-tab1.Send; ok {
		t.Fatal("send channel must be closed on unregister")
	}

	h.SendToVisitor("v-1", []byte("again"))
	if recvFrame(t, tab2) != "again" {
		t.Fatal("surviving tab must still receive pushes")
	}
}

func TestHub_MembershipCallsReturnAfterShutdown(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	conn := h.NewConnection(nil, "v-1", false)
	h.Register(conn)
	waitForCount(t, h, 1)

	cancel()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	returned := make(chan struct{})
	go func() {
		h.Register(h.NewConnection(nil, "v-2", false))
		h.Unregister(conn)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("hub membership calls blocked after shutdown")
	}
}

func TestHub_UnknownParticipantIsNoop(t *testing.T) {
	h := startHub(t)
	// Offline participants reconcile over REST; pushes must not block.
	done := make(chan struct{})
	go func() {
		h.SendToVisitor("nobody", []byte("x"))
		h.SendToAgent("nobody", []byte("x"))
		h.BroadcastToAgents([]byte("x"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push to empty hub blocked")
	}
}
