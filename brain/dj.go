package brain

import (
	"context"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// djPhase is the DJ-mode loop's own small state machine. The phase and
// event sets are closed and never change at runtime, so the transitions
// are compile-time literals.
type djPhase int

const (
	djIdle djPhase = iota
	djPlaying
	djCommentaryPending
	djCrossfading
)

// commentaryStyles is the closed style set the loop round-robins over.
var commentaryStyles = []string{"energetic", "chill", "trivia", "banter"}

// djState holds the DJ-mode loop's working state, guarded by Brain.mu.
type djState struct {
	state   djPhase
	styleAt int

	nextTrack        schema.MusicTrack
	pendingRequestID string

	cachedReady  map[string]bool
	cacheMapping map[string]string // next_track path_or_uri -> cache_key

	activePlanID string
	attempt      int // 0 = first try, 1 = fallback crossfade-only, 2 = different track
}

func (br *Brain) handleDJModeChanged(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.DJModeChangedPayload)
	if !ok {
		return
	}
	if p.Active {
		br.startDJMode()
	} else {
		br.stopDJMode()
	}
}

func (br *Brain) startDJMode() {
	track, err := br.selectTrack("")
	if err != nil {
		br.Logger.Warn("dj mode start failed track selection", "error", err)
		return
	}
	br.mu.Lock()
	br.dj.state = djPlaying
	br.mu.Unlock()

	br.setMemory(schema.KeyDJModeActive, true)

	if err := br.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Action: schema.ActionPlay,
		Track:  track.PathOrURI,
		Source: schema.SourceDJ,
	}); err != nil {
		br.Logger.Warn("failed to emit dj play command", "error", err)
	}
}

func (br *Brain) stopDJMode() {
	// Preempting the foreground layer with an empty plan cancels whatever
	// is running there; the cancelled plan's own runPlan forces the
	// unduck.
	if err := br.emitPlan(schema.Plan{Layer: schema.LayerForeground}); err != nil {
		br.Logger.Warn("failed to cancel dj foreground plan", "error", err)
	}
	if err := br.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Action: schema.ActionStop,
		Source: schema.SourceDJ,
	}); err != nil {
		br.Logger.Warn("failed to emit dj stop command", "error", err)
	}

	br.mu.Lock()
	br.dj = djState{state: djIdle, cachedReady: make(map[string]bool), cacheMapping: make(map[string]string)}
	br.mu.Unlock()

	br.setMemory(schema.KeyDJModeActive, false)
}

// onDJTrackStarted: once a DJ-selected
// track is confirmed playing, request a streamed intro commentary wrapped
// in duck/unduck.
func (br *Brain) onDJTrackStarted(track schema.MusicTrack) {
	br.mu.Lock()
	if br.dj.state != djPlaying {
		br.mu.Unlock()
		return
	}
	br.mu.Unlock()

	plan := schema.Plan{Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "duck", Kind: schema.StepMusicDuck, Level: br.DuckLevel, FadeMs: br.DuckFadeMs},
		{StepID: "intro", Kind: schema.StepSpeak, Text: "Now playing " + track.Title},
		{StepID: "unduck", Kind: schema.StepMusicUnduck, FadeMs: br.DuckFadeMs},
	}}
	if err := br.emitPlan(plan); err != nil {
		br.Logger.Warn("failed to emit dj intro plan", "error", err)
	}
}

// handleTrackEndingSoon picks the next track, picks a commentary style,
// and requests commentary text.
func (br *Brain) handleTrackEndingSoon(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.TrackEndingSoonPayload)
	if !ok {
		return
	}
	br.mu.Lock()
	active := br.dj.state == djPlaying
	br.mu.Unlock()
	if !active {
		return
	}

	next, err := br.selectTrack("")
	if err != nil {
		br.Logger.Warn("dj transition track selection failed", "error", err)
		return
	}

	requestID := newRequestID()
	br.mu.Lock()
	br.dj.state = djCommentaryPending
	br.dj.nextTrack = next
	br.dj.pendingRequestID = requestID
	style := commentaryStyles[br.dj.styleAt%len(commentaryStyles)]
	br.dj.styleAt++
	br.mu.Unlock()

	if err := br.Bus.Emit(bus.TopicDJCommentaryReq, &schema.DJCommentaryRequestPayload{
		Base:         bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Context:      "dj transition",
		CurrentTrack: p.Track.PathOrURI,
		NextTrack:    next.PathOrURI,
		Style:        style,
		RequestID:    requestID,
	}); err != nil {
		br.Logger.Warn("failed to emit commentary request", "error", err)
	}

	leadIn := time.Duration(p.SecondsRemaining) * time.Second
	crossfadeWindow := time.Duration(br.CrossfadeMs)*time.Millisecond + time.Second
	sleep := leadIn - crossfadeWindow
	if sleep < 0 {
		sleep = 0
	}
	br.Spawn(func(ctx context.Context) {
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return
		}
		br.beginTransition(ctx, requestID)
	})
}

// handleCommentaryResponse records the cache mapping before requesting
// the cache render, so a reader can never observe a cache_key with no
// corresponding mapping entry.
func (br *Brain) handleCommentaryResponse(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.GPTCommentaryResponsePayload)
	if !ok {
		return
	}
	br.mu.Lock()
	if p.RequestID != br.dj.pendingRequestID {
		br.mu.Unlock()
		return
	}
	cacheKey := newRequestID()
	nextTrack := br.dj.nextTrack.PathOrURI
	br.dj.cacheMapping[nextTrack] = cacheKey
	br.mu.Unlock()

	br.setMemory(schema.KeyDJCommentaryCacheMappings, map[string]string{nextTrack: cacheKey})

	if err := br.Bus.Emit(bus.TopicSpeechCacheReq, &schema.SpeechCacheRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		CacheKey:  cacheKey,
		Text:      p.Text,
		RequestID: p.RequestID,
	}); err != nil {
		br.Logger.Warn("failed to emit speech cache request", "error", err)
	}
}

func (br *Brain) handleSpeechCacheReady(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.SpeechCacheReadyPayload)
	if !ok {
		return
	}
	br.mu.Lock()
	br.dj.cachedReady[p.CacheKey] = true
	br.mu.Unlock()
	br.setMemory(schema.KeyDJCommentaryCacheReady, map[string]bool{p.CacheKey: true})
}

// beginTransition, at the lead time computed in handleTrackEndingSoon,
// emits the duck/commentary/crossfade plan, falling back to a
// crossfade-only plan if the commentary cache entry did not make it in
// time.
func (br *Brain) beginTransition(ctx context.Context, requestID string) {
	br.mu.Lock()
	if br.dj.pendingRequestID != requestID || br.dj.state != djCommentaryPending {
		br.mu.Unlock()
		return
	}
	next := br.dj.nextTrack
	cacheKey, mapped := br.dj.cacheMapping[next.PathOrURI]
	ready := mapped && br.dj.cachedReady[cacheKey]
	br.dj.state = djCrossfading
	br.mu.Unlock()

	if ready {
		br.emitTransitionPlan(next, cacheKey)
		return
	}

	if err := br.Bus.Emit(bus.TopicCommentaryMissed, &schema.CommentaryMissedPayload{
		Base:  bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Track: next.PathOrURI,
	}); err != nil {
		br.Logger.Warn("failed to emit commentary missed", "error", err)
	}
	br.emitCrossfadeOnlyPlan(next)
}

func (br *Brain) emitTransitionPlan(next schema.MusicTrack, cacheKey string) {
	planID := newPlanID()
	plan := schema.Plan{PlanID: planID, Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "duck", Kind: schema.StepMusicDuck, Level: br.DuckLevel, FadeMs: br.DuckFadeMs},
		{StepID: "transition", Kind: schema.StepParallel, Children: []schema.Step{
			{StepID: "commentary", Kind: schema.StepPlayCachedSpeech, CacheKey: cacheKey},
			{StepID: "crossfade", Kind: schema.StepMusicCrossfade, NextTrack: next.PathOrURI, FadeMs: br.CrossfadeMs},
		}},
		{StepID: "unduck", Kind: schema.StepMusicUnduck, FadeMs: br.DuckFadeMs},
	}}
	br.mu.Lock()
	br.dj.activePlanID = planID
	br.mu.Unlock()
	if err := br.emitPlan(plan); err != nil {
		br.Logger.Warn("failed to emit dj transition plan", "error", err)
	}
}

func (br *Brain) emitCrossfadeOnlyPlan(next schema.MusicTrack) {
	planID := newPlanID()
	plan := schema.Plan{PlanID: planID, Layer: schema.LayerForeground, Steps: []schema.Step{
		{StepID: "crossfade", Kind: schema.StepMusicCrossfade, NextTrack: next.PathOrURI, FadeMs: br.CrossfadeMs},
	}}
	br.mu.Lock()
	br.dj.activePlanID = planID
	br.mu.Unlock()
	if err := br.emitPlan(plan); err != nil {
		br.Logger.Warn("failed to emit dj crossfade-only plan", "error", err)
	}
}

// handlePlanEnded closes the loop and implements
// the three-step failure-recovery ladder: fall back to a crossfade-only
// plan, then to a different track, then give up gracefully.
func (br *Brain) handlePlanEnded(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.PlanEndedPayload)
	if !ok {
		return
	}
	br.mu.Lock()
	if br.dj.state != djCrossfading || p.PlanID != br.dj.activePlanID {
		br.mu.Unlock()
		return
	}
	br.mu.Unlock()

	if p.Status == schema.PlanCompleted {
		br.mu.Lock()
		br.dj.state = djPlaying
		br.dj.attempt = 0
		next := br.dj.nextTrack
		br.mu.Unlock()
		br.recordPlayed(next.PathOrURI)
		return
	}

	// A cancelled transition was preempted (a newer plan, or DJ mode
	// stopping); retrying would fight whatever preempted it. Only a
	// failed plan enters the recovery ladder.
	if p.Status == schema.PlanCancelled {
		br.mu.Lock()
		br.dj.state = djPlaying
		br.dj.attempt = 0
		br.mu.Unlock()
		return
	}

	br.mu.Lock()
	attempt := br.dj.attempt
	br.dj.attempt++
	next := br.dj.nextTrack
	br.mu.Unlock()

	switch attempt {
	case 0:
		br.emitCrossfadeOnlyPlan(next)
	case 1:
		replacement, err := br.selectTrack("")
		if err != nil {
			br.giveUpDJMode()
			return
		}
		br.mu.Lock()
		br.dj.nextTrack = replacement
		br.mu.Unlock()
		br.emitCrossfadeOnlyPlan(replacement)
	default:
		br.giveUpDJMode()
	}
}

// giveUpDJMode emits
// the sticky DJ_MODE_CHANGED{active:false, reason:"error"} and lets
// handleDJModeChanged's normal stop path do the rest (stop command, plan
// cancellation, memory update, state reset), so there is exactly one
// teardown path regardless of who triggers it.
func (br *Brain) giveUpDJMode() {
	if err := br.Bus.Emit(bus.TopicDJModeChanged, &schema.DJModeChangedPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Active: false,
		Reason: "error",
	}); err != nil {
		br.Logger.Warn("failed to emit dj mode changed", "error", err)
	}
}

func (br *Brain) setMemory(key schema.MemoryKey, value interface{}) {
	if err := br.Bus.Emit(bus.TopicMemorySet, &schema.MemorySetPayload{
		Base:  bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Key:   key,
		Value: value,
	}); err != nil {
		br.Logger.Warn("failed to set memory", "key", key, "error", err)
	}
}
