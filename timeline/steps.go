package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// runPlan executes plan's steps in order (except inside a parallel step)
// until completion, failure, or ctx cancellation, then guarantees the
// ducked state is false before returning.
func (e *Executor) runPlan(ctx context.Context, run *layerRun) (status schema.PlanStatus, failedStepID, reason string) {
	for i, step := range run.plan.Steps {
		e.mu.Lock()
		run.stepIdx = i
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			e.forceUnduckIfOwed()
			return schema.PlanCancelled, "", ""
		default:
		}

		if err := e.executeStep(ctx, run.plan.PlanID, step); err != nil {
			e.forceUnduckIfOwed()
			if ctx.Err() != nil {
				return schema.PlanCancelled, step.StepID, ""
			}
			return schema.PlanFailed, step.StepID, err.Error()
		}
	}
	e.mu.Lock()
	run.stepIdx = len(run.plan.Steps)
	e.mu.Unlock()
	e.forceUnduckIfOwed()
	return schema.PlanCompleted, "", ""
}

func (e *Executor) executeStep(ctx context.Context, planID string, step Step) error {
	switch step.Kind {
	case schema.StepSpeak:
		return e.execSpeak(ctx, planID, step)
	case schema.StepPlayCachedSpeech:
		return e.execCachedSpeech(ctx, planID, step)
	case schema.StepMusicDuck:
		return e.startDuck(step.Level, step.FadeMs)
	case schema.StepMusicUnduck:
		return e.stopDuck(step.FadeMs)
	case schema.StepMusicCrossfade:
		return e.execCrossfade(ctx, step)
	case schema.StepPlayMusic:
		return e.execPlayMusic(step)
	case schema.StepParallel:
		return e.execParallel(ctx, planID, step)
	default:
		return fmt.Errorf("timeline: unknown step kind %q", step.Kind)
	}
}

// execSpeak requests streamed speech generation, implicitly ducking the
// music bed first if it is playing and not already ducked, and undoing
// that duck itself once the clip finishes.
func (e *Executor) execSpeak(ctx context.Context, planID string, step Step) error {
	e.mu.Lock()
	ownedImplicit := e.musicPlaying && !e.ducked
	e.mu.Unlock()

	if ownedImplicit {
		if err := e.startDuck(e.ImplicitDuckLevel, e.ImplicitDuckFadeMs); err != nil {
			e.Logger.Warn("implicit duck emit failed", "step_id", step.StepID, "error", err)
		}
	}

	aw := e.arm(bus.TopicSpeechGenComplete, func(p bus.Payload) bool {
		c, ok := p.(*schema.SpeechGenerationCompletePayload)
		return ok && c.ClipID == step.StepID
	})

	if err := e.Bus.Emit(bus.TopicTTSGenerateReq, &schema.TTSGenerateRequestPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		Text:   step.Text,
		ClipID: step.StepID,
		PlanID: planID,
	}); err != nil {
		aw.cancel()
		if ownedImplicit {
			_ = e.stopDuck(e.ImplicitDuckFadeMs)
		}
		return err
	}

	_, err := aw.wait(ctx, e.SpeakTimeout)

	if err != nil {
		if emitErr := e.Bus.Emit(bus.TopicTTSCancel, &schema.TTSCancelPayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
			ClipID: step.StepID,
		}); emitErr != nil {
			e.Logger.Warn("failed to emit tts cancel", "step_id", step.StepID, "error", emitErr)
		}
	}
	if ownedImplicit {
		if uErr := e.stopDuck(e.ImplicitDuckFadeMs); uErr != nil {
			e.Logger.Warn("implicit unduck emit failed", "step_id", step.StepID, "error", uErr)
		}
	}
	return err
}

// execCachedSpeech plays a pre-rendered commentary clip. Ducking is not
// implicit here; callers wrap it in explicit music_duck/music_unduck.
func (e *Executor) execCachedSpeech(ctx context.Context, planID string, step Step) error {
	e.mu.Lock()
	ready := e.cacheReady[step.CacheKey]
	e.mu.Unlock()
	if !ready {
		return fmt.Errorf("timeline: cache entry %q is not ready", step.CacheKey)
	}

	aw := e.arm(bus.TopicSpeechCachePlayDone, func(p bus.Payload) bool {
		c, ok := p.(*schema.SpeechCachePlaybackCompletedPayload)
		return ok && c.StepID == step.StepID
	})

	if err := e.Bus.Emit(bus.TopicSpeechCachePlayReq, &schema.SpeechCachePlaybackRequestPayload{
		Base:     bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		CacheKey: step.CacheKey,
		StepID:   step.StepID,
		PlanID:   planID,
	}); err != nil {
		aw.cancel()
		return err
	}

	_, err := aw.wait(ctx, e.SpeakTimeout)
	return err
}

// startDuck emits AUDIO_DUCKING_START and records the ducked level so a
// later music_crossfade targets it as its ceiling.
func (e *Executor) startDuck(level float64, fadeMs int) error {
	e.mu.Lock()
	e.ducked = true
	e.duckedLevel = level
	e.mu.Unlock()
	return e.Bus.Emit(bus.TopicAudioDuckStart, &schema.AudioDuckingStartPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		Level:  level,
		FadeMs: fadeMs,
	})
}

func (e *Executor) stopDuck(fadeMs int) error {
	e.mu.Lock()
	e.ducked = false
	e.duckedLevel = 0
	e.mu.Unlock()
	return e.Bus.Emit(bus.TopicAudioDuckStop, &schema.AudioDuckingStopPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		FadeMs: fadeMs,
	})
}

// forceUnduckIfOwed guarantees the executor never leaves a plan's
// termination in a ducked state.
func (e *Executor) forceUnduckIfOwed() {
	e.mu.Lock()
	owed := e.ducked
	e.mu.Unlock()
	if owed {
		if err := e.stopDuck(0); err != nil {
			e.Logger.Warn("forced unduck failed", "error", err)
		}
		if e.OnForcedUnduck != nil {
			e.OnForcedUnduck()
		}
	}
}

// execCrossfade targets the current ducking level, if any, as its ceiling
// rather than full volume, so a concurrent parallel{speak, crossfade}
// keeps the bed quiet under speech.
func (e *Executor) execCrossfade(ctx context.Context, step Step) error {
	e.mu.Lock()
	ceiling := 1.0
	if e.ducked {
		ceiling = e.duckedLevel
	}
	e.mu.Unlock()

	aw := e.arm(bus.TopicCrossfadeComplete, func(p bus.Payload) bool {
		c, ok := p.(*schema.CrossfadeCompletePayload)
		return ok && c.StepID == step.StepID
	})

	if err := e.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
		Base:          bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		Action:        schema.ActionCrossfade,
		Track:         step.NextTrack,
		FadeMs:        step.FadeMs,
		CeilingVolume: ceiling,
	}); err != nil {
		aw.cancel()
		return err
	}

	timeout := e.CrossfadeBaseExtra + 2*time.Duration(step.FadeMs)*time.Millisecond
	_, err := aw.wait(ctx, timeout)
	return err
}

func (e *Executor) execPlayMusic(step Step) error {
	if step.Stop {
		return e.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
			Action: schema.ActionStop,
			Source: step.Source,
		})
	}
	return e.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		Action:    schema.ActionPlay,
		TrackName: step.TrackQuery,
		Source:    step.Source,
	})
}

// execParallel runs every child concurrently, completing when all children
// complete; a child failure cancels the remaining children before
// propagating.
func (e *Executor) execParallel(ctx context.Context, planID string, step Step) error {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(step.Children))
	for _, child := range step.Children {
		child := child
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.executeStep(childCtx, planID, child); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
