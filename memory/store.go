// Package memory implements the Memory Store: a single-owner keyed
// state record reached only through bus events, with debounced atomic
// JSON persistence and MEMORY_WAIT predicate support.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
)

// DefaultPersistDebounce is the write-coalescing interval.
const DefaultPersistDebounce = 500 * time.Millisecond

// DefaultWaitTimeout bounds how long a MEMORY_WAIT predicate stays
// armed.
const DefaultWaitTimeout = 5 * time.Second

// Store is the Memory Store service.
type Store struct {
	*service.Base

	path            string
	persistDebounce time.Duration
	waitTimeout     time.Duration

	mu      sync.RWMutex
	values  map[schema.MemoryKey]interface{}
	waiters map[string]*waiter

	persistTimer *time.Timer
}

type waiter struct {
	key       schema.MemoryKey
	condition interface{}
	cancel    func()
}

// domainMirrors lists the bus events the Memory Store mirrors into
// well-known keys.
var domainMirrors = []bus.Topic{
	bus.TopicMusicPlaybackStart,
	bus.TopicMusicPlaybackStop,
	bus.TopicSystemModeChg,
	bus.TopicDJModeChanged,
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithPersistDebounce overrides DefaultPersistDebounce.
func WithPersistDebounce(d time.Duration) Option {
	return func(s *Store) { s.persistDebounce = d }
}

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Store) { s.waitTimeout = d }
}

// New constructs a Memory Store persisting to path.
func New(b *bus.Bus, path string, opts ...Option) *Store {
	s := &Store{
		path:            path,
		persistDebounce: DefaultPersistDebounce,
		waitTimeout:     DefaultWaitTimeout,
		values:          make(map[schema.MemoryKey]interface{}),
		waiters:         make(map[string]*waiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = service.NewBase("memory", b, nil)
	return s
}

// OnStart implements service.Hooks.
func (s *Store) OnStart(ctx context.Context) error {
	if s.path != "" {
		if err := s.load(); err != nil {
			return fmt.Errorf("memory: loading %s: %w", s.path, err)
		}
	}

	s.SubscribeStatusRequest()
	s.Subscribe(bus.TopicMemoryGet, s.handleGet)
	s.Subscribe(bus.TopicMemorySet, s.handleSet)
	s.Subscribe(bus.TopicMemoryWait, s.handleWait)
	for _, topic := range domainMirrors {
		t := topic
		s.Subscribe(t, func(e *bus.Event) { s.mirror(t, e) })
	}
	return nil
}

// OnStop implements service.Hooks.
func (s *Store) OnStop(ctx context.Context) error {
	s.mu.Lock()
	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	s.mu.Unlock()
	return s.persistNow()
}

// handleGet answers MEMORY_GET with MEMORY_VALUE. An unknown key is not an
// error: Present is false and Value is nil.
func (s *Store) handleGet(e *bus.Event) {
	req, ok := e.Payload.(*schema.MemoryGetPayload)
	if !ok {
		return
	}
	s.mu.RLock()
	v, present := s.values[req.Key]
	s.mu.RUnlock()

	if err := s.Bus.Emit(bus.TopicMemoryValue, &schema.MemoryValuePayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
		Key:       req.Key,
		Value:     v,
		RequestID: req.RequestID,
		Present:   present,
	}); err != nil {
		s.Logger.Warn("failed to emit memory value", "key", req.Key, "error", err)
	}
}

// handleSet updates a key and emits MEMORY_UPDATED.
func (s *Store) handleSet(e *bus.Event) {
	req, ok := e.Payload.(*schema.MemorySetPayload)
	if !ok {
		return
	}
	s.set(req.Key, req.Value)
}

func (s *Store) set(key schema.MemoryKey, value interface{}) {
	s.mu.Lock()
	previous := s.values[key]
	s.values[key] = value
	s.schedulePersistLocked()
	ready := s.readyWaitersLocked(key, value)
	s.mu.Unlock()

	if err := s.Bus.Emit(bus.TopicMemoryUpdated, &schema.MemoryUpdatedPayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
		Key:      key,
		Value:    value,
		Previous: previous,
	}); err != nil {
		s.Logger.Warn("failed to emit memory updated", "key", key, "error", err)
	}

	for _, w := range ready {
		if err := s.Bus.Emit(bus.TopicMemoryWaitResolved, &schema.MemoryWaitResolvedPayload{
			Base:        bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
			PredicateID: w.id,
			Key:         key,
			Value:       value,
		}); err != nil {
			s.Logger.Warn("failed to emit wait resolved", "predicate_id", w.id, "error", err)
		}
	}
}

type resolvedWaiter struct {
	id string
}

// readyWaitersLocked removes and returns every waiter on key whose
// condition now matches value. Caller holds s.mu.
func (s *Store) readyWaitersLocked(key schema.MemoryKey, value interface{}) []resolvedWaiter {
	var ready []resolvedWaiter
	for id, w := range s.waiters {
		if w.key != key {
			continue
		}
		if reflect.DeepEqual(w.condition, value) {
			w.cancel()
			delete(s.waiters, id)
			ready = append(ready, resolvedWaiter{id: id})
		}
	}
	return ready
}

// handleWait implements MEMORY_WAIT: resolves immediately if the
// condition already holds, otherwise registers a waiter that either
// resolves on a later handleSet or times out after s.waitTimeout.
func (s *Store) handleWait(e *bus.Event) {
	req, ok := e.Payload.(*schema.MemoryWaitPayload)
	if !ok {
		return
	}

	s.mu.Lock()
	current, present := s.values[req.Key]
	if present && reflect.DeepEqual(current, req.Condition) {
		s.mu.Unlock()
		if err := s.Bus.Emit(bus.TopicMemoryWaitResolved, &schema.MemoryWaitResolvedPayload{
			Base:        bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
			PredicateID: req.PredicateID,
			Key:         req.Key,
			Value:       current,
		}); err != nil {
			s.Logger.Warn("failed to emit wait resolved", "predicate_id", req.PredicateID, "error", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.waiters[req.PredicateID] = &waiter{key: req.Key, condition: req.Condition, cancel: cancel}
	s.mu.Unlock()

	s.Spawn(func(_ context.Context) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.waitTimeout):
		}
		s.mu.Lock()
		_, stillPending := s.waiters[req.PredicateID]
		delete(s.waiters, req.PredicateID)
		s.mu.Unlock()
		if !stillPending {
			return
		}
		if err := s.Bus.Emit(bus.TopicMemoryWaitTimeout, &schema.MemoryWaitTimeoutPayload{
			Base:        bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: s.Name}},
			PredicateID: req.PredicateID,
			Key:         req.Key,
		}); err != nil {
			s.Logger.Warn("failed to emit wait timeout", "predicate_id", req.PredicateID, "error", err)
		}
	})
}

// mirror copies a subset of a domain event's fields into a well-known
// key.
func (s *Store) mirror(topic bus.Topic, e *bus.Event) {
	switch topic {
	case bus.TopicMusicPlaybackStart:
		p := e.Payload.(*schema.MusicPlaybackStartedPayload)
		s.set(schema.KeyMusicPlaying, true)
		s.set(schema.KeyCurrentTrack, p.Track)
	case bus.TopicMusicPlaybackStop:
		s.set(schema.KeyMusicPlaying, false)
	case bus.TopicSystemModeChg:
		p := e.Payload.(*schema.SystemModeChangePayload)
		s.set(schema.KeyMode, p.Mode)
	case bus.TopicDJModeChanged:
		p := e.Payload.(*schema.DJModeChangedPayload)
		s.set(schema.KeyDJModeActive, p.Active)
	}
}

// Get returns the current value for key and whether it has ever been set.
// Provided for in-process callers (such as tests) that hold a direct
// reference to the store; cross-service access always goes through
// MEMORY_GET/MEMORY_VALUE events.
func (s *Store) Get(key schema.MemoryKey) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}
