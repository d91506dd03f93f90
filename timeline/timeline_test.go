package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

func newTestExecutor(t *testing.T) (*Executor, *bus.Bus) {
	t.Helper()
	b := bus.New(schema.NewRegistry())
	e := New(b)
	e.SpeakTimeout = 200 * time.Millisecond
	require.NoError(t, e.Start(context.Background(), e))
	t.Cleanup(func() { _ = e.Stop(context.Background(), e) })
	return e, b
}

func emitPlan(t *testing.T, b *bus.Bus, plan schema.Plan) {
	t.Helper()
	require.NoError(t, b.Emit(bus.TopicPlanReady, &schema.PlanReadyPayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "test"}},
		Plan: plan,
	}))
}

// autoCompleteSpeech answers every TTS_GENERATE_REQUEST with a matching
// SPEECH_GENERATION_COMPLETE, simulating the external speech collaborator.
func autoCompleteSpeech(b *bus.Bus) {
	b.Subscribe(bus.TopicTTSGenerateReq, "stub-tts", func(e *bus.Event) {
		req := e.Payload.(*schema.TTSGenerateRequestPayload)
		_ = b.Emit(bus.TopicSpeechGenComplete, &schema.SpeechGenerationCompletePayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "stub-tts"}},
			ClipID: req.ClipID,
		})
	})
}

// armPlanEnded must be called BEFORE the plan (or whatever preempts it) is
// emitted: bus delivery is synchronous and the runner goroutine may finish
// before a later subscription lands.
func armPlanEnded(b *bus.Bus, planID string) (ch chan *schema.PlanEndedPayload, cancel func()) {
	ch = make(chan *schema.PlanEndedPayload, 2)
	cancel = b.Subscribe(bus.TopicPlanEnded, "t-"+planID, func(e *bus.Event) {
		p := e.Payload.(*schema.PlanEndedPayload)
		if p.PlanID == planID {
			select {
			case ch <- p:
			default:
			}
		}
	})
	return ch, cancel
}

func waitEnded(t *testing.T, ch chan *schema.PlanEndedPayload) *schema.PlanEndedPayload {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("plan never ended")
		return nil
	}
}

func TestForegroundSpeakPlanDucksAndUnducksAroundSpeech(t *testing.T) {
	e, b := newTestExecutor(t)
	autoCompleteSpeech(b)

	require.NoError(t, b.Emit(bus.TopicTrackPlaying, &schema.TrackPlayingPayload{
		Base:  bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "music"}},
		Track: schema.MusicTrack{TrackID: "t1", PathOrURI: "/t1.mp3"},
	}))

	var duckStarted, duckStopped bool
	b.Subscribe(bus.TopicAudioDuckStart, "t", func(*bus.Event) { duckStarted = true })
	b.Subscribe(bus.TopicAudioDuckStop, "t", func(*bus.Event) { duckStopped = true })

	ended, cancel := armPlanEnded(b, "p1")
	defer cancel()

	plan := schema.Plan{PlanID: "p1", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "s1", Kind: schema.StepSpeak, Text: "hello there"},
	}}
	emitPlan(t, b, plan)

	p := waitEnded(t, ended)
	require.Equal(t, schema.PlanCompleted, p.Status)
	require.True(t, duckStarted)
	require.True(t, duckStopped)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.False(t, e.ducked)
}

func TestNewForegroundPlanCancelsActiveOne(t *testing.T) {
	_, b := newTestExecutor(t)

	blockerEnded, cancelBlocker := armPlanEnded(b, "blocker")
	defer cancelBlocker()
	nextEnded, cancelNext := armPlanEnded(b, "next")
	defer cancelNext()

	blocking := schema.Plan{PlanID: "blocker", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "s1", Kind: schema.StepSpeak, Text: "this never gets an answer"},
	}}
	emitPlan(t, b, blocking)

	// Give the blocker a moment to register as active before preempting it.
	time.Sleep(20 * time.Millisecond)

	autoCompleteSpeech(b)
	next := schema.Plan{PlanID: "next", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "s1", Kind: schema.StepSpeak, Text: "replacement"},
	}}
	emitPlan(t, b, next)

	cancelled := waitEnded(t, blockerEnded)
	require.Equal(t, schema.PlanCancelled, cancelled.Status)

	completed := waitEnded(t, nextEnded)
	require.Equal(t, schema.PlanCompleted, completed.Status)
}

func TestOverridePreemptsForeground(t *testing.T) {
	_, b := newTestExecutor(t)

	fgEndedCh, cancelFg := armPlanEnded(b, "fg")
	defer cancelFg()
	ovEndedCh, cancelOv := armPlanEnded(b, "ov")
	defer cancelOv()

	foreground := schema.Plan{PlanID: "fg", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "s1", Kind: schema.StepSpeak, Text: "long foreground message"},
	}}
	emitPlan(t, b, foreground)
	time.Sleep(5 * time.Millisecond)

	// Speech is answered only from here on, so the foreground speak is
	// still waiting when the override arrives.
	autoCompleteSpeech(b)
	override := schema.Plan{PlanID: "ov", Layer: schema.LayerOverride, Steps: []schema.Step{
		{StepID: "s1", Kind: schema.StepMusicDuck, Level: 0.2, FadeMs: 100},
		{StepID: "s2", Kind: schema.StepMusicUnduck, FadeMs: 100},
	}}
	emitPlan(t, b, override)

	fgEnded := waitEnded(t, fgEndedCh)
	require.Equal(t, schema.PlanCancelled, fgEnded.Status)

	ovEnded := waitEnded(t, ovEndedCh)
	require.Equal(t, schema.PlanCompleted, ovEnded.Status)
}

func TestCrossfadeTargetsCurrentDuckedLevelAsCeiling(t *testing.T) {
	_, b := newTestExecutor(t)

	var cmd *schema.MusicCommandPayload
	b.Subscribe(bus.TopicMusicCommand, "t", func(e *bus.Event) {
		p := e.Payload.(*schema.MusicCommandPayload)
		if p.Action == schema.ActionCrossfade {
			cmd = p
		}
	})
	b.Subscribe(bus.TopicMusicCommand, "stub-player", func(e *bus.Event) {
		p := e.Payload.(*schema.MusicCommandPayload)
		if p.Action == schema.ActionCrossfade {
			_ = b.Emit(bus.TopicCrossfadeComplete, &schema.CrossfadeCompletePayload{
				Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: "stub-player"}},
				StepID: "x2",
			})
		}
	})

	ended, cancel := armPlanEnded(b, "duck-cross")
	defer cancel()

	plan := schema.Plan{PlanID: "duck-cross", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "x1", Kind: schema.StepMusicDuck, Level: 0.25, FadeMs: 50},
		{StepID: "x2", Kind: schema.StepMusicCrossfade, NextTrack: "next.mp3", FadeMs: 50},
		{StepID: "x3", Kind: schema.StepMusicUnduck, FadeMs: 50},
	}}
	emitPlan(t, b, plan)

	p := waitEnded(t, ended)
	require.Equal(t, schema.PlanCompleted, p.Status)
	require.NotNil(t, cmd)
	require.Equal(t, 0.25, cmd.CeilingVolume)
}

func TestAmbientPlanPausedByForegroundResumesAfterCompletion(t *testing.T) {
	_, b := newTestExecutor(t)

	ambientEnded, cancelAmb := armPlanEnded(b, "amb")
	defer cancelAmb()
	fgEnded, cancelFg := armPlanEnded(b, "fg")
	defer cancelFg()

	// The ambient plan blocks on a speak that is never answered; pausing
	// cancels the speak and queues the remaining steps.
	ambient := schema.Plan{PlanID: "amb", Layer: schema.LayerAmbient, Steps: []schema.Step{
		{StepID: "a1", Kind: schema.StepSpeak, Text: "ambient chatter"},
		{StepID: "a2", Kind: schema.StepMusicDuck, Level: 0.4, FadeMs: 50},
		{StepID: "a3", Kind: schema.StepMusicUnduck, FadeMs: 50},
	}}
	emitPlan(t, b, ambient)
	time.Sleep(20 * time.Millisecond)

	foreground := schema.Plan{PlanID: "fg", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "f1", Kind: schema.StepMusicDuck, Level: 0.2, FadeMs: 10},
		{StepID: "f2", Kind: schema.StepMusicUnduck, FadeMs: 10},
	}}
	emitPlan(t, b, foreground)

	waitEnded(t, fgEnded)

	// The paused ambient plan resumes from the step after the cancelled
	// speak and runs to completion, with exactly one terminal PLAN_ENDED.
	p := waitEnded(t, ambientEnded)
	require.Equal(t, schema.PlanCompleted, p.Status)

	select {
	case p := <-ambientEnded:
		t.Fatalf("ambient plan ended twice, second status %s", p.Status)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFailedPlayCachedSpeechReportsFailedStep(t *testing.T) {
	_, b := newTestExecutor(t)

	ended, cancel := armPlanEnded(b, "bad-cache")
	defer cancel()

	plan := schema.Plan{PlanID: "bad-cache", Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "c1", Kind: schema.StepPlayCachedSpeech, CacheKey: "never-requested"},
	}}
	emitPlan(t, b, plan)

	p := waitEnded(t, ended)
	require.Equal(t, schema.PlanFailed, p.Status)
	require.Equal(t, "c1", p.FailedStepID)
}
