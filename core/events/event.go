package events

// Event is anything the native engines can broadcast to subscribers.
type Event interface {
	EventType() string
}

// Emitter delivers events to downstream consumers (RPC feeds, the event
// index, metric observers). Engines treat emission as fire-and-forget.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. Engines default to it so emission stays
// optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans a single event out to every registered emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
