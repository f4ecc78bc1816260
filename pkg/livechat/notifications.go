package livechat

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

// DefaultStreamBackoff is the fixed wait between notification stream
// reconnect attempts.
const DefaultStreamBackoff = 5 * time.Second

// Notification is one item in the bell list.
type Notification struct {
	ID                 string
	Type               string
	Title              string
	Body               string
	RelatedTicketToken string
	Read               bool
	CreatedAt          string
}

// NotificationStreamOptions configures the stream client.
type NotificationStreamOptions struct {
	Backoff    time.Duration
	HTTPClient *http.Client

	// OnChange fires after every list mutation with the unread badge count.
	OnChange func(unread int)

	// OnAuthExpired fires once if the server rejects the token. The stream
	// stops; the surrounding application should drive a logout, not retry.
	OnAuthExpired func()
}

// NotificationStream is the long-lived server push channel for one logged-in
// identity. It owns its connection outright: opened by Run, released when
// Run returns, never parked in ambient process state. On transient errors it
// waits a fixed backoff and reopens; a rejected token stops it for good.
type NotificationStream struct {
	url  string
	opts NotificationStreamOptions

	mu         sync.Mutex
	list       []Notification
	unread     int
	reconnects int
}

// AdminStreamURL builds the operator stream endpoint from the REST base URL.
func AdminStreamURL(baseURL string) string { return baseURL + "/admin/notifications/stream" }

// UserStreamURL builds the visitor stream endpoint.
func UserStreamURL(baseURL string) string { return baseURL + "/user/notifications/stream" }

// NewNotificationStream returns a stream client for the given endpoint. The
// token rides as a query parameter because the browser EventSource this
// mirrors cannot set headers.
func NewNotificationStream(streamURL, token string, opts NotificationStreamOptions) *NotificationStream {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultStreamBackoff
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	url := streamURL
	if token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + token
	}
	return &NotificationStream{url: url, opts: opts}
}

// Run consumes the stream until the context ends (logout) or the token is
// rejected. Each transient failure costs one backoff wait and one reconnect
// attempt; an unauthorized response returns ErrAuthExpired immediately.
func (ns *NotificationStream) Run(ctx context.Context) error {
	for {
		err := ns.consume(ctx)
		if errors.Is(err, ErrAuthExpired) {
			if ns.opts.OnAuthExpired != nil {
				ns.opts.OnAuthExpired()
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err != nil {
			log.Debug().Err(err).Msg("notification stream dropped")
		}
		ns.mu.Lock()
		ns.reconnects++
		ns.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(ns.opts.Backoff):
		}
	}
}

func (ns *NotificationStream) consume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ns.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := ns.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrAuthExpired
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: "open stream", Err: errUnexpectedStatus(resp.Status)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			// Blank separators and ": keep-alive" comment frames.
			continue
		}
		ns.dispatch([]byte(strings.TrimPrefix(line, "data: ")))
	}
	return scanner.Err()
}

func (ns *NotificationStream) dispatch(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Debug().Err(err).Msg("notification frame dropped")
		return
	}
	switch env.Type {
	case protocol.TypeConnected, protocol.TypePing:
		// Acks and keepalives carry no state.
	case protocol.TypeNotification, protocol.TypeNewNotification:
		var ev protocol.NotificationEvent
		if protocol.DecodeData(env, &ev) == nil {
			ns.add(ev)
		}
	case protocol.TypeNotificationRead:
		var ref protocol.NotificationRef
		if protocol.DecodeData(env, &ref) == nil {
			ns.markRead(ref.NotificationID)
		}
	case protocol.TypeNotificationDeleted:
		var ref protocol.NotificationRef
		if protocol.DecodeData(env, &ref) == nil {
			ns.remove(ref.NotificationID)
		}
	case protocol.TypeNotificationsCleared:
		ns.clear()
	}
}

// add prepends a notification. Backlog replays deliver items one event at a
// time, so an id already present is skipped rather than duplicated.
func (ns *NotificationStream) add(ev protocol.NotificationEvent) {
	ns.mu.Lock()
	for _, n := range ns.list {
		if n.ID == ev.ID {
			ns.mu.Unlock()
			return
		}
	}
	ns.list = append([]Notification{{
		ID:                 ev.ID,
		Type:               ev.Type,
		Title:              ev.Title,
		Body:               ev.Body,
		RelatedTicketToken: ev.RelatedTicketToken,
		Read:               ev.Read,
		CreatedAt:          ev.CreatedAt,
	}}, ns.list...)
	if !ev.Read {
		ns.unread++
	}
	ns.changedLocked()
}

func (ns *NotificationStream) markRead(id string) {
	ns.mu.Lock()
	for i := range ns.list {
		if ns.list[i].ID == id && !ns.list[i].Read {
			ns.list[i].Read = true
			ns.unread--
			break
		}
	}
	ns.changedLocked()
}

func (ns *NotificationStream) remove(id string) {
	ns.mu.Lock()
	for i := range ns.list {
		if ns.list[i].ID == id {
			if !ns.list[i].Read {
				ns.unread--
			}
			ns.list = append(ns.list[:i], ns.list[i+1:]...)
			break
		}
	}
	ns.changedLocked()
}

func (ns *NotificationStream) clear() {
	ns.mu.Lock()
	ns.list = nil
	ns.unread = 0
	ns.changedLocked()
}

// changedLocked releases the mutex and reports the badge count.
func (ns *NotificationStream) changedLocked() {
	unread := ns.unread
	ns.mu.Unlock()
	if ns.opts.OnChange != nil {
		ns.opts.OnChange(unread)
	}
}

// Notifications returns a copy of the list, newest first.
func (ns *NotificationStream) Notifications() []Notification {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	out := make([]Notification, len(ns.list))
	copy(out, ns.list)
	return out
}

// Unread returns the badge count.
func (ns *NotificationStream) Unread() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.unread
}

// Reconnects returns how many reopen attempts the stream has made.
func (ns *NotificationStream) Reconnects() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.reconnects
}

type errUnexpectedStatus string

func (e errUnexpectedStatus) Error() string { return "unexpected status " + string(e) }
