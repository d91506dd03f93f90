package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

var errBoom = errors.New("boom")

type stubHooks struct {
	startCalled, stopCalled bool
	startErr, stopErr       error
	onStart                 func(ctx context.Context) error
}

func (h *stubHooks) OnStart(ctx context.Context) error {
	h.startCalled = true
	if h.onStart != nil {
		return h.onStart(ctx)
	}
	return h.startErr
}

func (h *stubHooks) OnStop(ctx context.Context) error {
	h.stopCalled = true
	return h.stopErr
}

func newTestBase(name string) (*Base, *bus.Bus) {
	b := bus.New(schema.NewRegistry())
	base := NewBase(name, b, nil)
	base.HeartbeatInterval = time.Hour // don't fire during tests
	return base, b
}

func TestStartReachesRunningOnlyAfterSubscriptionsRegistered(t *testing.T) {
	base, b := newTestBase("svc-a")

	var sawEventDuringStart bool
	hooks := &stubHooks{onStart: func(ctx context.Context) error {
		base.Subscribe(bus.TopicDashboardLog, func(*bus.Event) { sawEventDuringStart = true })
		return nil
	}}

	require.NoError(t, base.Start(context.Background(), hooks))
	require.Equal(t, StateRunning, base.State())

	require.NoError(t, b.Emit(bus.TopicDashboardLog, &schema.DashboardLogPayload{
		Base:    bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "x"}},
		Level:   "info",
		Message: "hi",
	}))
	require.True(t, sawEventDuringStart)
}

func TestStartFailureTransitionsToError(t *testing.T) {
	base, _ := newTestBase("svc-b")
	hooks := &stubHooks{startErr: errBoom}

	err := base.Start(context.Background(), hooks)
	require.Error(t, err)
	require.Equal(t, StateError, base.State())
}

func TestStopUnsubscribesEverything(t *testing.T) {
	base, b := newTestBase("svc-c")
	var calls int
	hooks := &stubHooks{onStart: func(ctx context.Context) error {
		base.Subscribe(bus.TopicDashboardLog, func(*bus.Event) { calls++ })
		return nil
	}}
	require.NoError(t, base.Start(context.Background(), hooks))
	require.NoError(t, base.Stop(context.Background(), hooks))
	require.True(t, hooks.stopCalled)
	require.Equal(t, StateStopped, base.State())

	require.NoError(t, b.Emit(bus.TopicDashboardLog, &schema.DashboardLogPayload{
		Base:    bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "x"}},
		Level:   "info",
		Message: "hi",
	}))
	require.Equal(t, 0, calls)
}

func TestPostFromThreadRunsOnMainGoroutine(t *testing.T) {
	base, _ := newTestBase("svc-d")
	hooks := &stubHooks{}
	require.NoError(t, base.Start(context.Background(), hooks))

	done := make(chan struct{})
	require.NoError(t, base.PostFromThread(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PostFromThread callback never ran")
	}
}

func TestEmitStatusOnRunningIsSticky(t *testing.T) {
	base, b := newTestBase("svc-e")
	hooks := &stubHooks{}
	require.NoError(t, base.Start(context.Background(), hooks))

	var statuses []schema.ServiceState
	b.Subscribe(bus.TopicServiceStatus, "late", func(e *bus.Event) {
		statuses = append(statuses, e.Payload.(*schema.ServiceStatusPayload).Status)
	})
	require.Contains(t, statuses, schema.StateRunning)
}
