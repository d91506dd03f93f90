package mode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func newTestManager(t *testing.T) (*Manager, *bus.Bus) {
	t.Helper()
	b := bus.New(schema.NewRegistry())
	m := New(b)
	require.NoError(t, m.Start(context.Background(), m))
	t.Cleanup(func() { _ = m.Stop(context.Background(), m) })
	return m, b
}

func TestStartupCanTransitionToAnyOtherMode(t *testing.T) {
	m, _ := newTestManager(t)
	require.Equal(t, schema.ModeStartup, m.Current())
	require.NoError(t, m.Transition(schema.ModeIdle))
	require.Equal(t, schema.ModeIdle, m.Current())
}

func TestTransitionIntoStartupIsRejected(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Transition(schema.ModeIdle))
	err := m.Transition(schema.ModeStartup)
	require.Error(t, err)
	require.Equal(t, schema.ModeIdle, m.Current())
}

func TestTransitionEmitsStartedChangeAndComplete(t *testing.T) {
	m, b := newTestManager(t)

	var order []string
	b.Subscribe(bus.TopicModeTransStart, "t", func(e *bus.Event) { order = append(order, "started") })
	b.Subscribe(bus.TopicSystemModeChg, "t", func(e *bus.Event) { order = append(order, "changed") })
	b.Subscribe(bus.TopicModeTransDone, "t", func(e *bus.Event) { order = append(order, "complete") })

	require.NoError(t, m.Transition(schema.ModeAmbient))
	require.Equal(t, []string{"started", "changed", "complete"}, order)
}

func TestSystemModeChangeIsStickyForLateSubscribers(t *testing.T) {
	m, b := newTestManager(t)
	require.NoError(t, m.Transition(schema.ModeInteractive))

	var got *schema.SystemModeChangePayload
	b.Subscribe(bus.TopicSystemModeChg, "late", func(e *bus.Event) {
		got = e.Payload.(*schema.SystemModeChangePayload)
	})
	require.NotNil(t, got)
	require.Equal(t, schema.ModeInteractive, got.Mode)
}

func TestSameModeTransitionIsANoOp(t *testing.T) {
	m, b := newTestManager(t)
	require.NoError(t, m.Transition(schema.ModeIdle))

	fired := false
	b.Subscribe(bus.TopicModeTransStart, "t", func(e *bus.Event) { fired = true })
	require.NoError(t, m.Transition(schema.ModeIdle))
	require.False(t, fired)
}

func TestHandleSetModeViaBus(t *testing.T) {
	m, b := newTestManager(t)
	require.NoError(t, b.Emit(bus.TopicSystemSetMode, &schema.SystemSetModePayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "test"}},
		Mode: schema.ModeAmbient,
	}))
	require.Equal(t, schema.ModeAmbient, m.Current())
}
