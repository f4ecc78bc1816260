// Typed event dispatch for decoded envelopes.
//
// Channel consumers register one handler per event type instead of branching
// on the type string inline. Unknown types fall through to a catch-all so a
// newer peer never crashes an older client.
package protocol

// Handler consumes one decoded frame.
type Handler func(Envelope)

// Dispatcher routes decoded envelopes to per-type handlers. It is built once
// during channel setup and read-only afterwards, so it needs no locking.
type Dispatcher struct {
	handlers map[string]Handler
	unknown  Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// On registers the handler for an event type, replacing any previous one.
// It returns the dispatcher for chaining.
func (d *Dispatcher) On(typ string, h Handler) *Dispatcher {
	d.handlers[typ] = h
	return d
}

// OnUnknown registers the catch-all for unrecognized event types.
func (d *Dispatcher) OnUnknown(h Handler) *Dispatcher {
	d.unknown = h
	return d
}

// Dispatch decodes raw and invokes the matching handler. Undecodable frames
// and unhandled types are reported through the catch-all when set, otherwise
// silently dropped (keepalives from newer servers must never be fatal).
func (d *Dispatcher) Dispatch(raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		if d.unknown != nil {
			d.unknown(Envelope{})
		}
		return
	}
	if h, ok := d.handlers[env.Type]; ok {
		h(env)
		return
	}
	if d.unknown != nil {
		d.unknown(env)
	}
}
