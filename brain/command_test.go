package brain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func waitCLIResponse(t *testing.T, ch chan *schema.CLIResponsePayload) *schema.CLIResponsePayload {
	t.Helper()
	select {
	case resp := <-ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("no cli_response emitted")
		return nil
	}
}

func armCLIResponse(b *bus.Bus) (ch chan *schema.CLIResponsePayload, cancel func()) {
	ch = make(chan *schema.CLIResponsePayload, 4)
	cancel = b.Subscribe(bus.TopicCLIResponse, "t", func(e *bus.Event) {
		resp := e.Payload.(*schema.CLIResponsePayload)
		select {
		case ch <- resp:
		default:
		}
	})
	return ch, cancel
}

func TestHandleDJCommandStartEmitsDJModeChangedAndResponds(t *testing.T) {
	br, b := newTestBrain(t)
	seedLibrary(br, schema.MusicTrack{TrackID: "t1", Title: "Cantina Band", PathOrURI: "/t1.mp3"})
	withDeterministicRandom(t, 0)

	var changed *schema.DJModeChangedPayload
	b.Subscribe(bus.TopicDJModeChanged, "t", func(e *bus.Event) {
		changed = e.Payload.(*schema.DJModeChangedPayload)
	})

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	active := true
	require.NoError(t, b.Emit(bus.TopicDJCommand, &schema.DJCommandRequestPayload{
		Base:         bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		DJModeActive: &active,
		Source:       "cli",
		RequestID:    "req-1",
	}))

	require.NotNil(t, changed)
	require.True(t, changed.Active)

	resp := waitCLIResponse(t, respCh)
	require.True(t, resp.Success)
	require.Equal(t, "cli", resp.Source)
	require.Equal(t, "req-1", resp.RequestID)

	br.mu.Lock()
	defer br.mu.Unlock()
	require.Equal(t, djPlaying, br.dj.state)
}

func TestHandleDJCommandStopRespondsAndResetsState(t *testing.T) {
	br, b := newTestBrain(t)
	seedLibrary(br, schema.MusicTrack{TrackID: "t1", Title: "A", PathOrURI: "/a.mp3"})

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	active := false
	require.NoError(t, b.Emit(bus.TopicDJCommandStop, &schema.DJCommandRequestPayload{
		Base:         bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		DJModeActive: &active,
		Source:       "cli",
		RequestID:    "req-2",
	}))

	resp := waitCLIResponse(t, respCh)
	require.True(t, resp.Success)

	br.mu.Lock()
	defer br.mu.Unlock()
	require.Equal(t, djIdle, br.dj.state)
}

func TestHandleDJCommandNextRejectedWhenNotPlaying(t *testing.T) {
	_, b := newTestBrain(t)

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	require.NoError(t, b.Emit(bus.TopicDJCommandNext, &schema.DJCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		Action:    "next",
		Source:    "cli",
		RequestID: "req-3",
	}))

	resp := waitCLIResponse(t, respCh)
	require.False(t, resp.Success)
	require.Equal(t, "invalid_state", resp.Code)
}

func TestHandleDJCommandNextWhilePlayingTriggersTrackEndingSoon(t *testing.T) {
	br, b := newTestBrain(t)
	seedLibrary(br, schema.MusicTrack{TrackID: "t1", Title: "A", PathOrURI: "/a.mp3"})
	br.mu.Lock()
	br.dj.state = djPlaying
	br.mu.Unlock()

	var fired bool
	b.Subscribe(bus.TopicTrackEndingSoon, "t", func(e *bus.Event) { fired = true })

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	require.NoError(t, b.Emit(bus.TopicDJCommandNext, &schema.DJCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		Action:    "next",
		Source:    "cli",
		RequestID: "req-4",
	}))

	resp := waitCLIResponse(t, respCh)
	require.True(t, resp.Success)
	require.True(t, fired)
}

func TestHandleMusicCommandRequestPlayEmitsPlanAndResponds(t *testing.T) {
	br, b := newTestBrain(t)
	seedLibrary(br, schema.MusicTrack{TrackID: "t1", Title: "Cantina Band", PathOrURI: "/t1.mp3"})
	withDeterministicRandom(t, 0)

	ch, cancel := armPlan(b)
	defer cancel()
	respCh, cancelResp := armCLIResponse(b)
	defer cancelResp()

	require.NoError(t, b.Emit(bus.TopicMusicCmdIn, &schema.MusicCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		Action:    schema.ActionPlay,
		TrackName: "cantina",
		Source:    schema.SourceCLI,
		RequestID: "req-5",
	}))

	plan := waitPlan(t, ch)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, schema.StepPlayMusic, plan.Steps[0].Kind)
	require.Equal(t, "/t1.mp3", plan.Steps[0].TrackQuery)

	resp := waitCLIResponse(t, respCh)
	require.True(t, resp.Success)
	require.Equal(t, "cli", resp.Source)
}

func TestHandleMusicCommandRequestPlayNoTracksFails(t *testing.T) {
	_, b := newTestBrain(t)

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	require.NoError(t, b.Emit(bus.TopicMusicCmdIn, &schema.MusicCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		Action:    schema.ActionPlay,
		TrackName: "anything",
		Source:    schema.SourceDashboard,
		RequestID: "req-6",
	}))

	resp := waitCLIResponse(t, respCh)
	require.False(t, resp.Success)
	require.Equal(t, "no_tracks", resp.Code)
}

func TestHandleMusicCommandRequestStopEmitsMusicCommand(t *testing.T) {
	_, b := newTestBrain(t)

	var stopCmd *schema.MusicCommandPayload
	b.Subscribe(bus.TopicMusicCommand, "t", func(e *bus.Event) {
		stopCmd = e.Payload.(*schema.MusicCommandPayload)
	})

	respCh, cancel := armCLIResponse(b)
	defer cancel()

	require.NoError(t, b.Emit(bus.TopicMusicCmdIn, &schema.MusicCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "dispatcher"}},
		Action:    schema.ActionStop,
		Source:    schema.SourceDashboard,
		RequestID: "req-7",
	}))

	require.NotNil(t, stopCmd)
	require.Equal(t, schema.ActionStop, stopCmd.Action)

	resp := waitCLIResponse(t, respCh)
	require.True(t, resp.Success)
}
