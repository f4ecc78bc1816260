package livechat

import "github.com/venturing/go-livechat-backend/internal/protocol"

// The wire types live in an internal package shared with the broker. They
// are re-exported here so importers of this package can register their own
// frame handlers and inspect envelopes.
type (
	// Envelope is one decoded frame off a messaging or notification channel.
	Envelope = protocol.Envelope
	// Dispatcher routes decoded envelopes to handlers by frame type.
	Dispatcher = protocol.Dispatcher
)

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher { return protocol.NewDispatcher() }

// Frame types observable on the messaging channels.
const (
	EventChatMessage     = protocol.TypeChatMessage
	EventChatAccepted    = protocol.TypeChatAccepted
	EventChatRejected    = protocol.TypeChatRejected
	EventRequestTimeout  = protocol.TypeRequestTimeout
	EventRequestCanceled = protocol.TypeRequestCanceled
	EventNewChatRequest  = protocol.TypeNewChatRequest
	EventSessionEnded    = protocol.TypeSessionEnded
	EventPing            = protocol.TypePing
)
