package bus

import "time"

// Meta carries the two fields every payload must include: the emit
// timestamp and the originating service name.
type Meta struct {
	Timestamp   time.Time `json:"timestamp"`
	ServiceName string    `json:"service_name"`
}

// Base is embedded by every concrete payload type to satisfy Payload. Meta
// is embedded anonymously so its fields marshal at the top level of the
// payload's JSON form, with no nested "meta" envelope.
type Base struct {
	Meta
}

// GetMeta implements Payload.
func (b Base) GetMeta() Meta { return b.Meta }

// Payload is the marker interface every topic's payload must implement.
type Payload interface {
	GetMeta() Meta
}

// Event is a single (topic, payload, emit-timestamp) tuple delivered to
// subscribers.
type Event struct {
	Topic Topic
	// Payload is the validated, topic-specific payload.
	Payload Payload
	// Emitted is the time the bus accepted the event for delivery.
	Emitted time.Time
	// Origin is a slot for naming a relay distinct from the original
	// emitting service. Emit does not fill it and no component in this
	// module sets it, so it is empty on every event the core delivers.
	Origin string
}
