// Package mode implements the Mode Manager: the global operating-mode
// state machine {STARTUP, IDLE, AMBIENT, INTERACTIVE}. The mode set is
// closed, so the transition table is a compile-time literal.
package mode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
)

// allowed enumerates every permitted (from, to) transition. Every
// transition is permitted except into STARTUP, which is
// reachable only as the machine's initial state.
var allowed = map[schema.Mode]map[schema.Mode]bool{
	schema.ModeStartup: {
		schema.ModeIdle:        true,
		schema.ModeAmbient:     true,
		schema.ModeInteractive: true,
	},
	schema.ModeIdle: {
		schema.ModeAmbient:     true,
		schema.ModeInteractive: true,
	},
	schema.ModeAmbient: {
		schema.ModeIdle:        true,
		schema.ModeInteractive: true,
	},
	schema.ModeInteractive: {
		schema.ModeIdle:    true,
		schema.ModeAmbient: true,
	},
}

// Manager is the Mode Manager service.
type Manager struct {
	*service.Base

	mu      sync.Mutex
	current schema.Mode
}

// New constructs a Manager starting in schema.ModeStartup.
func New(b *bus.Bus) *Manager {
	m := &Manager{current: schema.ModeStartup}
	m.Base = service.NewBase("mode", b, nil)
	return m
}

// Current returns the current mode. Safe for concurrent use.
func (m *Manager) Current() schema.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnStart implements service.Hooks.
func (m *Manager) OnStart(ctx context.Context) error {
	m.SubscribeStatusRequest()
	m.Subscribe(bus.TopicSystemSetMode, m.handleSetMode)
	return nil
}

// OnStop implements service.Hooks.
func (m *Manager) OnStop(ctx context.Context) error {
	return nil
}

func (m *Manager) handleSetMode(ev *bus.Event) {
	req, ok := ev.Payload.(*schema.SystemSetModePayload)
	if !ok {
		return
	}
	if err := m.Transition(req.Mode); err != nil {
		m.Logger.Warn("rejected mode transition", "to", req.Mode, "error", err)
	}
}

// Transition validates and performs a mode change, emitting
// MODE_TRANSITION_STARTED before subscribers react, then the sticky
// SYSTEM_MODE_CHANGE and finally MODE_TRANSITION_COMPLETE.
// It is exposed directly so in-process callers (e.g. a CLI "mode" command
// handler) need not round-trip through the bus.
func (m *Manager) Transition(to schema.Mode) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	next, ok := allowed[from]
	if !ok || !next[to] {
		m.mu.Unlock()
		return fmt.Errorf("mode: invalid transition %s -> %s", from, to)
	}
	m.mu.Unlock()

	if err := m.Bus.Emit(bus.TopicModeTransStart, &schema.ModeTransitionStartedPayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: m.Name}},
		From: from,
		To:   to,
	}); err != nil {
		return fmt.Errorf("mode: emitting transition started: %w", err)
	}

	m.mu.Lock()
	m.current = to
	m.mu.Unlock()

	if err := m.Bus.Emit(bus.TopicSystemModeChg, &schema.SystemModeChangePayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: m.Name}},
		Mode:     to,
		Previous: from,
	}); err != nil {
		return fmt.Errorf("mode: emitting mode change: %w", err)
	}

	if err := m.Bus.Emit(bus.TopicModeTransDone, &schema.ModeTransitionCompletePayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: m.Name}},
		To:   to,
	}); err != nil {
		return fmt.Errorf("mode: emitting transition complete: %w", err)
	}
	return nil
}
