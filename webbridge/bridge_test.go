package webbridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func newTestBridge(t *testing.T) (*Bridge, *bus.Bus) {
	t.Helper()
	b := bus.New(schema.NewRegistry())
	br := New(b, schema.NewRegistry(), Config{Port: 0, MaxClients: 2, CORSAllowedOrigins: []string{"http://localhost:3000"}})
	require.NoError(t, br.Start(context.Background(), br))
	t.Cleanup(func() { _ = br.Stop(context.Background(), br) })
	return br, b
}

func newTestClient(sid string) *client {
	return &client{sid: sid, send: make(chan []byte, 8)}
}

func readFrame(t *testing.T, cl *client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-cl.send:
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHandleCommandFrameRejectsBlankCommand(t *testing.T) {
	br, _ := newTestBridge(t)
	cl := newTestClient("sid-1")

	br.handleInbound(cl, []byte(`{"type":"command","payload":{"command":"   "}}`))

	f := readFrame(t, cl)
	require.Equal(t, "error", f["type"])
	require.Equal(t, "invalid_payload", f["code"])
}

func TestHandleCommandFrameEmitsCLICommand(t *testing.T) {
	br, b := newTestBridge(t)
	cl := newTestClient("sid-2")

	var got *schema.CLICommandPayload
	b.Subscribe(bus.TopicCLICommand, "t", func(e *bus.Event) { got = e.Payload.(*schema.CLICommandPayload) })

	br.handleInbound(cl, []byte(`{"type":"command","payload":{"command":"status"}}`))

	require.NotNil(t, got)
	require.Equal(t, "status", got.Command)
	require.Equal(t, "sid-2", got.Source)
}

func TestHandleMusicFrameRequiresTrackNameOnPlay(t *testing.T) {
	br, _ := newTestBridge(t)
	cl := newTestClient("sid-3")

	br.handleInbound(cl, []byte(`{"type":"music_command","payload":{"action":"play"}}`))

	f := readFrame(t, cl)
	require.Equal(t, "validation_error", f["type"])
	require.Equal(t, "TrackName", f["field"])
}

func TestHandleSystemFrameRejectsUnknownMode(t *testing.T) {
	br, _ := newTestBridge(t)
	cl := newTestClient("sid-4")

	br.handleInbound(cl, []byte(`{"type":"system_command","payload":{"action":"set_mode","mode":"BOGUS"}}`))

	f := readFrame(t, cl)
	require.Equal(t, "validation_error", f["type"])
	require.Equal(t, "Mode", f["field"])
}

func TestHandleInboundUnknownChannel(t *testing.T) {
	br, _ := newTestBridge(t)
	cl := newTestClient("sid-5")

	br.handleInbound(cl, []byte(`{"type":"bogus_channel","payload":{}}`))

	f := readFrame(t, cl)
	require.Equal(t, "error", f["type"])
	require.Equal(t, "unknown_command", f["code"])
}

func TestDashboardDataMapsServiceState(t *testing.T) {
	status := &schema.ServiceStatusPayload{Status: schema.StateDegraded}
	mapped := dashboardData(status).(schema.ServiceStatusPayload)
	require.Equal(t, schema.ServiceState("error"), mapped.Status)

	other := &schema.DJModeChangedPayload{}
	require.Same(t, other, dashboardData(other))
}

func TestHandleCLIResponseRoutesOnlyToMatchingClient(t *testing.T) {
	br, b := newTestBridge(t)

	target := newTestClient("sid-target")
	other := newTestClient("sid-other")
	br.mu.Lock()
	br.clients[target.sid] = target
	br.clients[other.sid] = other
	br.mu.Unlock()

	require.NoError(t, b.Emit(bus.TopicCLIResponse, &schema.CLIResponsePayload{
		Base:    bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "test"}},
		Success: true,
		Source:  "sid-target",
	}))

	f := readFrame(t, target)
	require.Equal(t, "cli_response", f["topic"])

	select {
	case <-other.send:
		t.Fatal("response delivered to non-matching client")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleCLIResponseIgnoresUnknownSource(t *testing.T) {
	br, b := newTestBridge(t)
	require.NotPanics(t, func() {
		require.NoError(t, b.Emit(bus.TopicCLIResponse, &schema.CLIResponsePayload{
			Base:    bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "test"}},
			Success: true,
			Source:  "no-such-client",
		}))
	})
	require.Equal(t, 0, br.ActiveClients())
}
