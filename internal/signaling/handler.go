package signaling

import "log/slog"

// HandlerFunc handles one inbound envelope.
type HandlerFunc func(env *Envelope)

// Dispatcher routes inbound envelopes by type to exactly one handler.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for msgType, replacing any previous handler.
func (d *Dispatcher) Handle(msgType string, fn HandlerFunc) {
	d.handlers[msgType] = fn
}

// Dispatch calls the handler for env.Type. Unknown types are logged and
// dropped. It reports whether a handler ran.
func (d *Dispatcher) Dispatch(env *Envelope) bool {
	fn, ok := d.handlers[env.Type]
	if !ok {
		slog.Warn("dropping message of unknown type", "type", env.Type)
		return false
	}
	fn(env)
	return true
}
