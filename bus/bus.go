package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Handler processes a delivered event. Handlers must not block the
// emitting call for longer than the bus's slow-handler threshold; doing
// so produces a logged warning but never aborts delivery.
type Handler func(*Event)

// Validator checks a payload against its topic's declared schema before
// Emit delivers it to any subscriber.
type Validator interface {
	Validate(topic Topic, payload Payload) error
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithSlowHandlerThreshold overrides the default 100ms slow-handler
// warning threshold.
func WithSlowHandlerThreshold(d time.Duration) Option {
	return func(b *Bus) { b.slowThreshold = d }
}

// WithLogger overrides the bus's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

type subscription struct {
	id       uint64
	topic    Topic
	owner    string
	handler  Handler
	throttle *throttle
}

// Bus is the in-process, topic-indexed publish/subscribe router. Only
// the bus itself mutates its subscription tables.
type Bus struct {
	mu               sync.RWMutex
	subs             map[Topic][]*subscription
	sticky           map[Topic]map[string]*Event // topic -> origin service -> last payload
	stickyOrderTable map[Topic][]string          // topic -> origin insertion order
	stickyTopics     map[Topic]bool
	validator        Validator
	slowThreshold    time.Duration
	logger           *slog.Logger
	nextID           uint64
}

// New creates a Bus. validator may be nil, in which case Emit skips
// schema validation (used only in unit tests of components that do not
// exercise the schema package).
func New(validator Validator, opts ...Option) *Bus {
	b := &Bus{
		subs:             make(map[Topic][]*subscription),
		sticky:           make(map[Topic]map[string]*Event),
		stickyOrderTable: make(map[Topic][]string),
		stickyTopics:     make(map[Topic]bool),
		validator:        validator,
		slowThreshold:    100 * time.Millisecond,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, t := range StickyTopics {
		b.stickyTopics[t] = true
	}
	return b
}

// MarkSticky additionally marks topic as sticky beyond the built-in set.
func (b *Bus) MarkSticky(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stickyTopics[topic] = true
}

// Subscribe registers handler for topic, owned by owner (a service name,
// used for error attribution and sticky-replay bookkeeping). It returns a
// cancel function that unsubscribes exactly this registration.
//
// If the new subscription is to a sticky topic, any retained payloads are
// replayed synchronously, in origin-insertion order, before Subscribe
// returns.
func (b *Bus) Subscribe(topic Topic, owner string, handler Handler, cfg ...ThrottleConfig) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscription{id: id, topic: topic, owner: owner, handler: handler}
	if len(cfg) > 0 {
		sub.throttle = newThrottle(cfg[0])
	}
	b.subs[topic] = append(b.subs[topic], sub)

	var replay []*Event
	if b.stickyTopics[topic] {
		if byOrigin, ok := b.sticky[topic]; ok {
			replay = make([]*Event, 0, len(byOrigin))
			for _, origin := range b.stickyOrder(topic) {
				if ev, ok := byOrigin[origin]; ok {
					replay = append(replay, ev)
				}
			}
		}
	}
	b.mu.Unlock()

	for _, ev := range replay {
		b.invoke(sub, ev)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[topic]
		for i, s := range list {
			if s.id == id {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// stickyOrder returns a copy of topic's origin insertion order so replay
// is deterministic even though sticky is stored as a map.
func (b *Bus) stickyOrder(topic Topic) []string {
	order := b.stickyOrderTable[topic]
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Emit validates payload against topic's schema (if a Validator is
// configured), stores it if the topic is sticky, and synchronously
// delivers it to every current subscriber in registration order. Emit
// returns only the validation error, if any; handler panics are
// recovered and logged, never propagated to the emitter.
func (b *Bus) Emit(topic Topic, payload Payload) error {
	if b.validator != nil {
		if err := b.validator.Validate(topic, payload); err != nil {
			b.logger.Warn("dropping invalid payload", "topic", topic, "error", err)
			return err
		}
	}

	ev := &Event{Topic: topic, Payload: payload, Emitted: time.Now()}

	b.mu.Lock()
	if b.stickyTopics[topic] {
		origin := payload.GetMeta().ServiceName
		byOrigin, ok := b.sticky[topic]
		if !ok {
			byOrigin = make(map[string]*Event)
			b.sticky[topic] = byOrigin
		}
		if _, seen := byOrigin[origin]; !seen {
			b.stickyOrderTable[topic] = append(b.stickyOrderTable[topic], origin)
		}
		byOrigin[origin] = ev
	}
	subs := make([]*subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub, ev)
	}
	return nil
}

func (b *Bus) invoke(sub *subscription, ev *Event) {
	deliverEv := ev
	if sub.throttle != nil {
		d, ok := sub.throttle.admit(ev)
		if !ok {
			return
		}
		deliverEv = d
	}

	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panicked", "owner", sub.owner, "topic", sub.topic, "panic", r)
			}
		}()
		sub.handler(deliverEv)
	}()
	if elapsed := time.Since(start); elapsed > b.slowThreshold {
		b.logger.Warn("slow event handler", "owner", sub.owner, "topic", sub.topic, "elapsed", elapsed)
	}
}
