// Package protocol defines the wire format shared by the messaging channel
// (WebSocket) and the notification stream (SSE): a JSON envelope
// discriminated by its "type" field, one payload variant per recognized
// event, and a dispatch table that routes decoded frames to typed handlers.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Messaging channel event types.
const (
	TypeChatMessage     = "chat_message"
	TypeChatAccepted    = "chat_accepted"
	TypeChatRejected    = "chat_rejected"
	TypeRequestTimeout  = "request_timeout"
	TypeRequestCanceled = "request_canceled"
	TypeNewChatRequest  = "new_chat_request"
	TypeSessionEnded    = "session_ended"
	TypePing            = "ping"
)

// Notification stream event types.
const (
	TypeConnected            = "connected"
	TypeNotification         = "notification"
	TypeNewNotification      = "new_notification"
	TypeNotificationRead     = "notification_read"
	TypeNotificationDeleted  = "notification_deleted"
	TypeNotificationsCleared = "notifications_cleared"
)

// Envelope is the raw frame as it travels on the wire. Type selects the
// payload variant; Data carries the event-specific fields and is decoded
// lazily by the Dispatcher.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// Chat message fields ride on the envelope itself so that a frame a
	// participant sends can be relayed verbatim to its counterpart.
	SessionID  string `json:"session_id,omitempty"`
	SenderRole string `json:"sender_role,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	Text       string `json:"text,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

// ChatAccepted is pushed to the visitor when an agent takes the request.
type ChatAccepted struct {
	SessionID   string `json:"session_id"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name,omitempty"`
	VisitorName string `json:"visitor_name,omitempty"`
}

// ChatRejected is pushed to the visitor when an agent declines the request.
type ChatRejected struct {
	Reason string `json:"reason,omitempty"`
}

// RequestTimeout is pushed to the visitor when the wait budget elapses
// server-side with no outcome.
type RequestTimeout struct {
	RequestID string `json:"request_id"`
}

// RequestCanceled tells agents to drop a request from their pending list.
// It is sent both for explicit visitor withdrawals and for server expiries.
type RequestCanceled struct {
	RequestID string `json:"request_id"`
}

// NewChatRequest announces a fresh pending request to every agent channel.
type NewChatRequest struct {
	RequestID    string `json:"request_id"`
	VisitorName  string `json:"visitor_name"`
	CategoryName string `json:"category_name"`
	Message      string `json:"message"`
	CreatedAt    string `json:"created_at"`
	ExpiresAt    string `json:"expires_at"`
}

// SessionEnded is pushed to both parties when either side ends the session.
type SessionEnded struct {
	SessionID string `json:"session_id"`
	EndedBy   string `json:"ended_by,omitempty"`
}

// NotificationEvent carries a notification payload on the SSE stream for
// the backlog replay ("notification") and live pushes ("new_notification").
type NotificationEvent struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Title              string `json:"title"`
	Body               string `json:"body"`
	RelatedTicketToken string `json:"related_ticket_token,omitempty"`
	Read               bool   `json:"read"`
	CreatedAt          string `json:"created_at"`
}

// NotificationRef identifies the subject of read/delete stream events.
type NotificationRef struct {
	NotificationID string `json:"notification_id"`
}

// Encode marshals an envelope with a typed payload in Data.
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// EncodeChatMessage marshals a chat_message frame with the message fields
// inline on the envelope.
func EncodeChatMessage(sessionID, senderRole, senderID, text, kind string) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:       TypeChatMessage,
		SessionID:  sessionID,
		SenderRole: senderRole,
		SenderID:   senderID,
		Text:       text,
		Kind:       kind,
	})
}

// Decode parses a raw frame into an Envelope. Frames with an empty type are
// rejected so the dispatcher can stay exhaustive.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing type")
	}
	return env, nil
}

// DecodeData unmarshals the envelope's Data into the given payload variant.
func DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("decode %s: empty data", env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", env.Type, err)
	}
	return nil
}
