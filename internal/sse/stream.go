// Package sse implements the server-sent-events notification stream the
// operator console subscribes to. The broker fans frames out to every
// subscriber; a subscriber that stops draining is dropped rather than
// allowed to stall the rest.
package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/venturing/go-livechat-backend/internal/protocol"
)

// subscriberBuffer is the per-subscriber queue depth.
const subscriberBuffer = 64

// DefaultKeepAlive is the comment-frame cadence that keeps idle streams from
// being reaped by proxies.
const DefaultKeepAlive = 30 * time.Second

// Broker fans notification frames out to stream subscribers. It is the
// broker-side implementation of services.StreamBroadcaster.
type Broker struct {
	// Auth validates the stream token carried in the query string (the
	// EventSource API cannot set headers). When nil the stream is open.
	Auth func(token string) bool

	// KeepAlive overrides DefaultKeepAlive when > 0.
	KeepAlive time.Duration

	// Backlog, when set, supplies the frames replayed to a fresh subscriber
	// right after the greeting, one event per existing notification. Clients
	// dedup by id, so replays overlapping live pushes are harmless.
	Backlog func(ctx context.Context) [][]byte

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan []byte]struct{})}
}

// Subscribe attaches a new subscriber and returns its frame channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches the subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Broadcast delivers one frame to every subscriber. A subscriber whose
// buffer is full is dropped.
func (b *Broker) Broadcast(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
			log.Warn().Msg("sse subscriber stalled, dropping")
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// SubscriberCount reports how many streams are open.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Handler serves the notification stream endpoints. Authentication is
// settled before
// any stream bytes are written so an expired token surfaces as a plain 401
// and the client knows to stop reconnecting.
func (b *Broker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if b.Auth != nil && !b.Auth(c.Query("token")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
				"code":  "unauthorized",
			})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ch := b.Subscribe()
		defer b.Unsubscribe(ch)

		// Greeting confirms the stream before any event arrives.
		if greeting, err := protocol.Encode(protocol.TypeConnected, nil); err == nil {
			writeFrame(c.Writer, greeting)
		}
		if b.Backlog != nil {
			for _, frame := range b.Backlog(c.Request.Context()) {
				if err := writeFrame(c.Writer, frame); err != nil {
					return
				}
			}
		}

		keepAlive := b.KeepAlive
		if keepAlive <= 0 {
			keepAlive = DefaultKeepAlive
		}
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-ch:
				if !ok {
					return
				}
				if err := writeFrame(c.Writer, frame); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
					return
				}
				c.Writer.Flush()
			}
		}
	}
}

func writeFrame(w gin.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
		return err
	}
	w.Flush()
	return nil
}
