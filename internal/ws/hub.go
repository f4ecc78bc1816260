// Package ws carries the bidirectional messaging channel: the connection hub
// keyed by participant and the upgrade handlers with their read/write pumps.
//
// Every chat participant (visitor or agent) owns one logical channel; the hub
// tolerates several concurrent sockets for the same participant (multiple
// tabs) and fans pushes out to all of them. The hub is the broker-side
// implementation of services.ChannelPusher.
package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// sendBuffer is the per-connection outbound queue depth. A connection that
// cannot drain it is considered dead and dropped.
const sendBuffer = 256

// Connection is a single WebSocket attached to one participant.
type Connection struct {
	ID            string
	ParticipantID string
	Agent         bool
	Send          chan []byte

	ws *websocket.Conn
}

// Hub tracks every open channel, indexed by participant.
type Hub struct {
	register   chan *Connection
	unregister chan *Connection
	done       chan struct{}

	mu       sync.RWMutex
	visitors map[string]map[string]*Connection
	agents   map[string]map[string]*Connection
}

// NewHub creates an empty hub. Call Run before registering connections.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		done:       make(chan struct{}),
		visitors:   make(map[string]map[string]*Connection),
		agents:     make(map[string]map[string]*Connection),
	}
}

// Run owns connection membership until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			set := h.setFor(conn)
			if set[conn.ParticipantID] == nil {
				set[conn.ParticipantID] = make(map[string]*Connection)
			}
			set[conn.ParticipantID][conn.ID] = conn
			h.mu.Unlock()
			log.Debug().
				Str("conn_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Bool("agent", conn.Agent).
				Msg("channel registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			set := h.setFor(conn)
			if conns, ok := set[conn.ParticipantID]; ok {
				if _, ok := conns[conn.ID]; ok {
					delete(conns, conn.ID)
					if len(conns) == 0 {
						delete(set, conn.ParticipantID)
					}
					close(conn.Send)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Msg("channel unregistered")
		}
	}
}

// NewConnection wraps an upgraded socket for the given participant. The
// connection is not visible to pushes until Register.
func (h *Hub) NewConnection(ws *websocket.Conn, participantID string, agent bool) *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Agent:         agent,
		Send:          make(chan []byte, sendBuffer),
		ws:            ws,
	}
}

// Register makes the connection reachable for pushes. After the hub has
// shut down it returns without blocking.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister detaches the connection and closes its Send channel. After the
// hub has shut down it returns without blocking.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// SendToVisitor delivers one frame to every socket of the visitor. Unknown
// participants are a no-op; offline visitors reconcile over REST.
func (h *Hub) SendToVisitor(participantID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.visitors[participantID], frame)
}

// SendToAgent delivers one frame to every socket of the agent.
func (h *Hub) SendToAgent(agentID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.agents[agentID], frame)
}

// BroadcastToAgents delivers one frame to every connected agent socket.
func (h *Hub) BroadcastToAgents(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.agents {
		h.deliver(conns, frame)
	}
}

// ConnectionCount reports how many sockets are currently registered.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.visitors {
		n += len(conns)
	}
	for _, conns := range h.agents {
		n += len(conns)
	}
	return n
}

func (h *Hub) setFor(conn *Connection) map[string]map[string]*Connection {
	if conn.Agent {
		return h.agents
	}
	return h.visitors
}

// deliver is called under h.mu. A full buffer marks the connection dead.
func (h *Hub) deliver(conns map[string]*Connection, frame []byte) {
	for _, conn := range conns {
		select {
		case conn.Send <- frame:
		default:
			log.Warn().Str("conn_id", conn.ID).Msg("channel buffer full, dropping connection")
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conns := range h.visitors {
		for _, conn := range conns {
			close(conn.Send)
		}
	}
	for _, conns := range h.agents {
		for _, conn := range conns {
			close(conn.Send)
		}
	}
	h.visitors = make(map[string]map[string]*Connection)
	h.agents = make(map[string]map[string]*Connection)
}
