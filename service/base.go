package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// DefaultHeartbeatInterval is the status re-emission period.
const DefaultHeartbeatInterval = 30 * time.Second

// DefaultStopTimeout bounds the wait for background tasks on Stop.
const DefaultStopTimeout = 5 * time.Second

// DefaultPostTimeout is the single-crossing timeout for PostFromThread.
const DefaultPostTimeout = 100 * time.Millisecond

// Hooks is the small interface a concrete service implements; Base
// drives it through the lifecycle.
type Hooks interface {
	// OnStart must finish registering every subscription before
	// returning; Base will not report RUNNING until it does.
	OnStart(ctx context.Context) error
	// OnStop releases any resources the service owns directly (files,
	// device handles). Base has already cancelled spawned tasks and waited
	// up to StopTimeout for them by the time this runs; the subscriptions
	// made through Subscribe are released after it returns.
	OnStop(ctx context.Context) error
}

// ConfigChanger is an optional Hooks extension for services that react to
// live configuration updates.
type ConfigChanger interface {
	OnConfigChange(ctx context.Context) error
}

// Base is embedded by every concrete service. It owns the lifecycle
// state machine, subscription bookkeeping, background task tracking, and
// the status heartbeat.
type Base struct {
	Name   string
	Bus    *bus.Bus
	Logger *slog.Logger

	HeartbeatInterval time.Duration
	StopTimeout       time.Duration

	mu        sync.Mutex
	state     State
	startedAt time.Time
	lastMsg   string
	lastSev   schema.Severity

	unsubs  []func()
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mainCtx context.Context

	postCh chan func()
}

// NewBase constructs a Base for a named service. The returned Base starts
// in StateUninitialized.
func NewBase(name string, b *bus.Bus, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{
		Name:              name,
		Bus:               b,
		Logger:            logger.With("service", name),
		HeartbeatInterval: DefaultHeartbeatInterval,
		StopTimeout:       DefaultStopTimeout,
		state:             StateUninitialized,
		postCh:            make(chan func(), 32),
	}
}

// State returns the service's current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) setState(s State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := transitionAllowed(b.state, s); err != nil {
		return err
	}
	b.state = s
	return nil
}

// Start runs the service through STARTING -> RUNNING. It captures the
// calling goroutine as the service's main scheduler context, invokes
// hooks.OnStart (subscriptions must be registered inside it), then emits
// RUNNING and starts the heartbeat loop. Start returns only after RUNNING
// has been reached or startup has failed.
func (b *Base) Start(ctx context.Context, hooks Hooks) error {
	if err := b.setState(StateStarting); err != nil {
		return err
	}
	b.mu.Lock()
	b.startedAt = time.Now()
	b.mu.Unlock()

	mainCtx, cancel := context.WithCancel(ctx)
	b.mainCtx = mainCtx
	b.cancel = cancel

	b.Spawn(b.postLoop)

	if err := hooks.OnStart(mainCtx); err != nil {
		_ = b.setState(StateError)
		b.emitStatusLocked(StateError, fmt.Sprintf("start failed: %v", err), schema.SeverityError)
		return fmt.Errorf("service %s: OnStart: %w", b.Name, err)
	}

	if err := b.setState(StateRunning); err != nil {
		return err
	}
	if err := b.EmitStatus(StateRunning, "running", schema.SeverityInfo); err != nil {
		b.Logger.Warn("failed to emit RUNNING status", "error", err)
	}

	b.Spawn(b.heartbeatLoop)
	return nil
}

// Stop transitions the service through STOPPING -> STOPPED: cancels every
// spawned task, waits up to StopTimeout for them to exit, invokes
// hooks.OnStop, unsubscribes everything Subscribe registered, then emits
// STOPPED.
func (b *Base) Stop(ctx context.Context, hooks Hooks) error {
	if err := b.setState(StateStopping); err != nil {
		return err
	}
	if err := b.EmitStatus(StateStopping, "stopping", schema.SeverityInfo); err != nil {
		b.Logger.Warn("failed to emit STOPPING status", "error", err)
	}

	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(b.StopTimeout):
		b.Logger.Warn("timed out waiting for background tasks to stop", "timeout", b.StopTimeout)
	}

	var releaseErr error
	if err := hooks.OnStop(ctx); err != nil {
		releaseErr = fmt.Errorf("service %s: OnStop: %w", b.Name, err)
		b.Logger.Error("release hook failed", "error", err)
	}

	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()
	for _, cancel := range unsubs {
		cancel()
	}

	if err := b.setState(StateStopped); err != nil {
		return err
	}
	if err := b.EmitStatus(StateStopped, "stopped", schema.SeverityInfo); err != nil {
		b.Logger.Warn("failed to emit STOPPED status", "error", err)
	}
	return releaseErr
}

// Subscribe registers handler for topic on behalf of this service and
// records the cancellation for Stop to invoke. Every subscription made
// through Base.Subscribe (as opposed to calling Bus.Subscribe directly)
// is guaranteed to be released on Stop.
func (b *Base) Subscribe(topic bus.Topic, handler bus.Handler, cfg ...bus.ThrottleConfig) {
	cancel := b.Bus.Subscribe(topic, b.Name, handler, cfg...)
	b.mu.Lock()
	b.unsubs = append(b.unsubs, cancel)
	b.mu.Unlock()
}

// Spawn runs fn in a tracked goroutine that receives the service's main
// context and is cancelled (via that context) on Stop. fn must return
// promptly after ctx is done.
func (b *Base) Spawn(fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.Logger.Error("spawned task panicked", "panic", r)
			}
		}()
		fn(b.mainCtx)
	}()
}

// PostFromThread safely schedules fn onto the service's main scheduler
// from an OS thread owned by a native library. It blocks up to
// DefaultPostTimeout; callers must not perform more than one crossing per
// payload.
func (b *Base) PostFromThread(fn func()) error {
	select {
	case b.postCh <- fn:
		return nil
	case <-time.After(DefaultPostTimeout):
		return fmt.Errorf("service %s: PostFromThread: timed out after %s", b.Name, DefaultPostTimeout)
	}
}

// postLoop drains postCh on the service's main goroutine so that
// PostFromThread callbacks always execute on the same scheduler as bus
// handlers, never on the caller's OS thread.
func (b *Base) postLoop(ctx context.Context) {
	for {
		select {
		case fn := <-b.postCh:
			func() {
				defer func() {
					if r := recover(); r != nil {
						b.Logger.Error("post-from-thread callback panicked", "panic", r)
					}
				}()
				fn()
			}()
		case <-ctx.Done():
			return
		}
	}
}

// EmitStatus publishes a ServiceStatus event and remembers it as the
// heartbeat loop's next re-emission.
// Emission is permitted only once the service itself is no longer in its
// subscription-registration phase; Start calls this directly after
// reaching RUNNING.
func (b *Base) EmitStatus(state State, message string, severity schema.Severity) error {
	b.mu.Lock()
	b.lastMsg = message
	b.lastSev = severity
	uptime := time.Since(b.startedAt).Seconds()
	b.mu.Unlock()

	return b.Bus.Emit(bus.TopicServiceStatus, &schema.ServiceStatusPayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: b.Name}},
		Status:   state.Schema(),
		Uptime:   uptime,
		Message:  message,
		Severity: severity,
	})
}

func (b *Base) emitStatusLocked(state State, message string, severity schema.Severity) {
	if err := b.Bus.Emit(bus.TopicServiceStatus, &schema.ServiceStatusPayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: b.Name}},
		Status:   state.Schema(),
		Message:  message,
		Severity: severity,
	}); err != nil {
		b.Logger.Warn("failed to emit status", "error", err)
	}
}

// heartbeatLoop re-emits the last status every HeartbeatInterval.
func (b *Base) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			msg, sev := b.lastMsg, b.lastSev
			b.mu.Unlock()
			if err := b.EmitStatus(b.State(), msg, sev); err != nil {
				b.Logger.Warn("heartbeat emit failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SubscribeStatusRequest wires the STATUS_REQUEST bootstrap handler:
// every running service re-emits its current status whenever any service
// asks. Concrete
// services call this from OnStart alongside their own subscriptions.
func (b *Base) SubscribeStatusRequest() {
	b.Subscribe(bus.TopicStatusRequest, func(*bus.Event) {
		b.mu.Lock()
		msg, sev := b.lastMsg, b.lastSev
		b.mu.Unlock()
		if err := b.EmitStatus(b.State(), msg, sev); err != nil {
			b.Logger.Warn("status-request re-emit failed", "error", err)
		}
	})
}

// RequestStatusBootstrap emits STATUS_REQUEST so every currently running
// service re-announces itself; used by late-joining components such as
// the Web Bridge and Logging Pipeline that need an initial picture of the
// system without waiting for the next heartbeat.
func (b *Base) RequestStatusBootstrap() error {
	return b.Bus.Emit(bus.TopicStatusRequest, &schema.StatusRequestPayload{
		Base:             bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: b.Name}},
		RequesterService: b.Name,
	})
}
