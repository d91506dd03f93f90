package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func newTestPipeline(t *testing.T) (*Pipeline, *bus.Bus) {
	t.Helper()
	b := bus.New(schema.NewRegistry())
	p, err := New(b, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, b
}

func TestLoggerFansOutToDashboardLog(t *testing.T) {
	p, b := newTestPipeline(t)
	var got *schema.DashboardLogPayload
	b.Subscribe(bus.TopicDashboardLog, "t", func(e *bus.Event) {
		got = e.Payload.(*schema.DashboardLogPayload)
	})

	log := p.Logger("voice")
	log.Info("hello world")

	require.NotNil(t, got)
	require.Equal(t, "voice", got.ServiceName)
	require.Equal(t, "hello world", got.Message)
}

func TestDuplicateMessagesAreSuppressedWithinWindow(t *testing.T) {
	b := bus.New(schema.NewRegistry())
	p, err := New(b, "", WithDedupWindow(time.Hour))
	require.NoError(t, err)

	count := 0
	b.Subscribe(bus.TopicDashboardLog, "t", func(e *bus.Event) { count++ })

	log := p.Logger("voice")
	log.Info("repeated")
	log.Info("repeated")
	log.Info("repeated")

	require.Equal(t, 1, count)
}

func TestExcludedServiceNeverFansOut(t *testing.T) {
	b := bus.New(schema.NewRegistry())
	p, err := New(b, "")
	require.NoError(t, err)

	fired := false
	b.Subscribe(bus.TopicDashboardLog, "t", func(e *bus.Event) { fired = true })

	log := p.Logger("logging")
	log.Info("should not fan out")

	require.False(t, fired)
}

func TestWithAttrsPropagatesServiceName(t *testing.T) {
	b := bus.New(schema.NewRegistry())
	p, err := New(b, "")
	require.NoError(t, err)

	var got *schema.DashboardLogPayload
	b.Subscribe(bus.TopicDashboardLog, "t", func(e *bus.Event) {
		got = e.Payload.(*schema.DashboardLogPayload)
	})

	log := p.Logger("music").With("track", "cantina")
	log.Warn("degraded")

	require.NotNil(t, got)
	require.Equal(t, "music", got.ServiceName)
	require.Equal(t, "degraded", got.Message)
}
