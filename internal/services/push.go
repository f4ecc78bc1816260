// Package services also defines the outbound push contracts.
//
// Services publish lifecycle events without depending on the transport
// packages: the WebSocket hub satisfies ChannelPusher and the SSE broker
// satisfies StreamBroadcaster. Both are fire-and-forget; delivery to a
// participant that is not connected is silently skipped (the reconciliation
// polls cover that gap).
package services

// ChannelPusher delivers frames on the per-participant messaging channels.
type ChannelPusher interface {
	// SendToVisitor delivers a frame to one visitor's channel, if connected.
	SendToVisitor(visitorID string, frame []byte)
	// SendToAgent delivers a frame to one agent's channel, if connected.
	SendToAgent(agentID string, frame []byte)
	// BroadcastToAgents delivers a frame to every connected agent channel.
	BroadcastToAgents(frame []byte)
}

// StreamBroadcaster fans an event out to every notification stream
// subscriber.
type StreamBroadcaster interface {
	Broadcast(frame []byte)
}

// nopPusher is used when a service is constructed without a transport
// (tests, offline tooling).
type nopPusher struct{}

func (nopPusher) SendToVisitor(string, []byte) {}
func (nopPusher) SendToAgent(string, []byte)   {}
func (nopPusher) BroadcastToAgents([]byte)     {}

// NopPusher returns a ChannelPusher that drops every frame.
func NopPusher() ChannelPusher { return nopPusher{} }
