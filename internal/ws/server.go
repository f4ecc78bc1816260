package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/domain"
	"github.com/venturing/go-livechat-backend/internal/protocol"
	"github.com/venturing/go-livechat-backend/internal/services"
)

// Options tune the socket pumps. Zero values take the defaults below.
type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultMaxMessage   = 8 << 10
)

// Server upgrades channel requests and runs the per-connection pumps.
// Incoming chat_message frames are persisted and relayed verbatim to the
// session counterpart; the sender's own sockets never get an echo from the
// broker, the client renders its local copy.
type Server struct {
	hub      *Hub
	sessions *services.SessionService
	opts     Options
	upgrader websocket.Upgrader
}

// NewServer wires the hub and the session service into a channel server.
func NewServer(h *Hub, sessions *services.SessionService, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessage
	}
	return &Server{
		hub:      h,
		sessions: sessions,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin policy is enforced by the CORS layer in front.
				return true
			},
		},
	}
}

// ServeVisitor handles GET /chat/ws/:participant_id.
func (s *Server) ServeVisitor(c *gin.Context) {
	s.serve(c, c.Param("participant_id"), false)
}

// ServeAgent handles GET /chat/ws/support/:agent_id.
func (s *Server) ServeAgent(c *gin.Context) {
	s.serve(c, c.Param("agent_id"), true)
}

func (s *Server) serve(c *gin.Context, participantID string, agent bool) {
	if participantID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	sock, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := s.hub.NewConnection(sock, participantID, agent)
	s.hub.Register(conn)

	go s.writePump(conn)
	s.readPump(c.Request.Context(), conn)
}

// readPump consumes frames until the peer goes away. It runs on the request
// goroutine so gin keeps the connection alive.
func (s *Server) readPump(ctx context.Context, conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.ws.Close()
	}()

	conn.ws.SetReadLimit(s.opts.MaxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		_, frame, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("websocket read error")
			}
			return
		}
		s.handleFrame(ctx, conn, frame)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.Send:
			conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame routes one inbound frame. Chat messages are persisted and then
// relayed to the counterpart; everything else from a client is dropped.
func (s *Server) handleFrame(ctx context.Context, conn *Connection, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		log.Debug().Err(err).Str("conn_id", conn.ID).Msg("dropping malformed frame")
		return
	}

	switch env.Type {
	case protocol.TypePing:
		// Application-level keepalive from older clients.
		return
	case protocol.TypeChatMessage:
		s.relayChatMessage(ctx, conn, env, frame)
	default:
		log.Debug().Str("type", env.Type).Msg("ignoring client frame")
	}
}

func (s *Server) relayChatMessage(ctx context.Context, conn *Connection, env protocol.Envelope, frame []byte) {
	// The socket identity is authoritative, not the frame contents.
	if env.SenderID != conn.ParticipantID {
		log.Warn().
			Str("conn_id", conn.ID).
			Str("claimed", env.SenderID).
			Msg("sender mismatch, dropping frame")
		return
	}
	if strings.TrimSpace(env.Text) == "" {
		// Nothing would be persisted, so the counterpart must not see it
		// either or the live view and the backlog diverge.
		return
	}
	role := domain.RoleVisitor
	if conn.Agent {
		role = domain.RoleAgent
	}

	if _, err := s.sessions.SaveMessage(ctx, env.SessionID, role, conn.ParticipantID, env.Text, env.Kind); err != nil {
		log.Warn().Err(err).Str("session_id", env.SessionID).Msg("persist chat message failed")
		return
	}

	counterpartID, toAgent, err := s.sessions.Counterpart(ctx, env.SessionID, role)
	if err != nil {
		log.Warn().Err(err).Str("session_id", env.SessionID).Msg("counterpart lookup failed")
		return
	}
	if toAgent {
		s.hub.SendToAgent(counterpartID, frame)
	} else {
		s.hub.SendToVisitor(counterpartID, frame)
	}
}
