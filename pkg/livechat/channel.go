package livechat

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

// ReconnectPolicy controls what a Channel does after an unexpected closure.
// MaxAttempts < 0 retries forever; 0 disables reconnection.
type ReconnectPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// ChannelOptions configures a messaging channel.
type ChannelOptions struct {
	// SelfID is this participant's id. Incoming chat_message frames carrying
	// it are echoes of our own sends and are dropped before dispatch.
	SelfID string

	// Token, when set, is sent as a query parameter on the dial. Browsers
	// cannot set headers on a WebSocket upgrade, so the server accepts it
	// there too.
	Token string

	Dispatcher *Dispatcher
	Reconnect  ReconnectPolicy

	// OnDown is called once when the channel gives up: the reconnect budget
	// is spent or the channel was closed while reconnecting.
	OnDown func(err error)
}

// Channel is one full-duplex messaging socket per participant. Sends are
// fire-and-forget: the caller renders its own message locally before calling
// Send, and the echo-dedup on the read side keeps it from appearing twice.
type Channel struct {
	url  string
	opts ChannelOptions

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// VisitorChannelURL builds the visitor socket address from the REST base URL.
func VisitorChannelURL(baseURL, participantID string) string {
	return wsBase(baseURL) + "/chat/ws/" + url.PathEscape(participantID)
}

// AgentChannelURL builds the standing agent socket address.
func AgentChannelURL(baseURL, agentID string) string {
	return wsBase(baseURL) + "/chat/ws/support/" + url.PathEscape(agentID)
}

func wsBase(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

// Dial opens the channel and starts its read loop. The returned Channel is
// live until Close or until the reconnect policy is exhausted.
func Dial(ctx context.Context, channelURL string, opts ChannelOptions) (*Channel, error) {
	ch := &Channel{
		url:  channelURL,
		opts: opts,
		done: make(chan struct{}),
	}
	conn, err := ch.dial(ctx)
	if err != nil {
		return nil, &TransportError{Op: "dial channel", Err: err}
	}
	ch.conn = conn
	go ch.readLoop(ctx)
	return ch, nil
}

func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	dialURL := ch.url
	if ch.opts.Token != "" {
		sep := "?"
		if strings.Contains(dialURL, "?") {
			sep = "&"
		}
		dialURL += sep + "token=" + url.QueryEscape(ch.opts.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, dialURL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// Send transmits one chat message frame. It returns immediately after the
// write is handed to the transport; delivery is not acknowledged.
func (ch *Channel) Send(sessionID, senderRole, text, kind string) error {
	raw, err := protocol.EncodeChatMessage(sessionID, senderRole, ch.opts.SelfID, text, kind)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || ch.conn == nil {
		return &TransportError{Op: "send", Err: errChannelClosed}
	}
	if err := ch.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Close tears the channel down. Safe to call any number of times.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() {
		ch.mu.Lock()
		ch.closed = true
		conn := ch.conn
		ch.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		}
		close(ch.done)
	})
}

// Done is closed when the channel has shut down for good.
func (ch *Channel) Done() <-chan struct{} { return ch.done }

func (ch *Channel) readLoop(ctx context.Context) {
	attempts := 0
	for {
		sawFrame, err := ch.readAll()
		if sawFrame {
			// The connection carried traffic, so the budget counts
			// consecutive dead connections only.
			attempts = 0
		}
		ch.mu.Lock()
		closed := ch.closed
		ch.mu.Unlock()
		if closed {
			return
		}
		if ch.opts.Reconnect.MaxAttempts >= 0 && attempts >= ch.opts.Reconnect.MaxAttempts {
			log.Warn().Str("url", ch.url).Err(err).Msg("channel down, reconnect budget spent")
			if ch.opts.OnDown != nil {
				ch.opts.OnDown(err)
			}
			ch.Close()
			return
		}
		attempts++
		select {
		case <-ctx.Done():
			ch.Close()
			return
		case <-ch.done:
			return
		case <-time.After(ch.opts.Reconnect.Interval):
		}
		conn, derr := ch.dial(ctx)
		if derr != nil {
			log.Debug().Str("url", ch.url).Int("attempt", attempts).Err(derr).Msg("channel redial failed")
			continue
		}
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			conn.Close()
			return
		}
		ch.conn = conn
		ch.mu.Unlock()
	}
}

// readAll pumps frames until the connection errors. Echoes of our own sends
// are dropped so a locally rendered message never appears twice.
func (ch *Channel) readAll() (bool, error) {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return false, errChannelClosed
	}
	sawFrame := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return sawFrame, err
		}
		sawFrame = true
		env, err := protocol.Decode(raw)
		if err != nil {
			log.Debug().Err(err).Msg("channel frame dropped")
			continue
		}
		if env.Type == protocol.TypeChatMessage && ch.opts.SelfID != "" && env.SenderID == ch.opts.SelfID {
			continue
		}
		if ch.opts.Dispatcher != nil {
			ch.opts.Dispatcher.Dispatch(raw)
		}
	}
}

var errChannelClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "channel closed" }
