// Package timeline implements the Timeline Executor: it consumes
// declarative, layered Plans and drives the music/speech/ducking event
// protocol that realizes them.
package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
)

// Plan and Step are aliased from schema rather than redefined here: schema
// must own them since several non-timeline payloads (PlanReadyPayload,
// brain outputs) reference them, and schema cannot import timeline without
// a cycle.
type Plan = schema.Plan
type Step = schema.Step

// Default timeouts and ducking parameters, overridable on the
// constructed Executor before Start.
const (
	DefaultSpeakTimeout       = 25 * time.Second
	DefaultCrossfadeBaseExtra = 2 * time.Second
	DefaultImplicitDuckLevel  = 0.3
	DefaultImplicitDuckFadeMs = 500
	layerWaitTimeout          = 5 * time.Second
)

// Executor is the Timeline Executor service: at most one active plan
// per layer, override preempting foreground preempting ambient.
type Executor struct {
	*service.Base

	SpeakTimeout       time.Duration
	CrossfadeBaseExtra time.Duration
	ImplicitDuckLevel  float64
	ImplicitDuckFadeMs int

	// OnForcedUnduck, if set, is called whenever a plan terminates with an
	// owed unduck that the executor had to force. Wired to
	// metrics.RecordForcedUnduck by the process
	// entrypoint; nil by default so the executor carries no hard
	// dependency on the metrics package.
	OnForcedUnduck func()

	mu             sync.Mutex
	layers         map[schema.Layer]*layerRun
	pendingAmbient *Plan
	ducked         bool
	duckedLevel    float64
	musicPlaying   bool
	cacheReady     map[string]bool
}

// layerRun is the cancellation token and bookkeeping for one layer's
// currently active plan.
type layerRun struct {
	planID string
	layer  schema.Layer
	plan   Plan
	cancel context.CancelFunc
	done   chan struct{}

	// paused marks an ambient run preempted by a higher layer: its
	// terminal PLAN_ENDED is suppressed and its remaining steps are
	// queued for resumption instead. Guarded by Executor.mu.
	paused bool
	// stepIdx is the index of the step executing when the run was
	// cancelled, the plan's resume point. Guarded by Executor.mu.
	stepIdx int
}

// New constructs a Timeline Executor.
func New(b *bus.Bus) *Executor {
	e := &Executor{
		SpeakTimeout:       DefaultSpeakTimeout,
		CrossfadeBaseExtra: DefaultCrossfadeBaseExtra,
		ImplicitDuckLevel:  DefaultImplicitDuckLevel,
		ImplicitDuckFadeMs: DefaultImplicitDuckFadeMs,
		layers:             make(map[schema.Layer]*layerRun),
		cacheReady:         make(map[string]bool),
	}
	e.Base = service.NewBase("timeline", b, nil)
	return e
}

// OnStart implements service.Hooks.
func (e *Executor) OnStart(ctx context.Context) error {
	e.SubscribeStatusRequest()
	e.Subscribe(bus.TopicPlanReady, e.handlePlanReady)
	e.Subscribe(bus.TopicTrackPlaying, func(*bus.Event) {
		e.mu.Lock()
		e.musicPlaying = true
		e.mu.Unlock()
	})
	e.Subscribe(bus.TopicTrackStopped, func(*bus.Event) {
		e.mu.Lock()
		e.musicPlaying = false
		e.mu.Unlock()
	})
	e.Subscribe(bus.TopicSpeechCacheReady, func(ev *bus.Event) {
		p := ev.Payload.(*schema.SpeechCacheReadyPayload)
		e.mu.Lock()
		e.cacheReady[p.CacheKey] = true
		e.mu.Unlock()
	})
	return nil
}

// OnStop implements service.Hooks. Any active layer is cancelled; their
// runner goroutines emit the terminal PLAN_ENDED{cancelled} themselves
// before Base.Stop's WaitGroup drain completes.
func (e *Executor) OnStop(ctx context.Context) error {
	e.mu.Lock()
	runs := make([]*layerRun, 0, len(e.layers))
	for _, r := range e.layers {
		runs = append(runs, r)
	}
	e.mu.Unlock()
	for _, r := range runs {
		r.cancel()
	}
	return nil
}

func (e *Executor) handlePlanReady(ev *bus.Event) {
	req, ok := ev.Payload.(*schema.PlanReadyPayload)
	if !ok {
		return
	}
	plan := req.Plan
	if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}

	switch plan.Layer {
	case schema.LayerOverride, schema.LayerForeground:
		e.preemptAndStart(plan)
	case schema.LayerAmbient:
		e.startOrQueueAmbient(plan)
	default:
		e.Logger.Warn("plan with unknown layer dropped", "layer", plan.Layer, "plan_id", plan.PlanID)
	}
}

// preemptAndStart cancels whatever is currently occupying plan.Layer
// (and, for a foreground/override plan, pauses ambient) before starting
// plan.
func (e *Executor) preemptAndStart(plan Plan) {
	e.cancelLayerAndWait(plan.Layer)
	if plan.Layer == schema.LayerOverride {
		e.cancelLayerAndWait(schema.LayerForeground)
	}
	e.pauseAmbientIfRunning()
	e.runLayer(plan)
}

// cancelLayerAndWait cancels layer's active run, if any, and blocks until
// its runner goroutine has finished emitting the terminal PLAN_ENDED so
// the next plan on that layer never races the previous one's cleanup.
func (e *Executor) cancelLayerAndWait(layer schema.Layer) {
	e.mu.Lock()
	run := e.layers[layer]
	e.mu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	select {
	case <-run.done:
	case <-time.After(layerWaitTimeout):
		e.Logger.Warn("timed out waiting for layer to cancel", "layer", layer)
	}
}

// pauseAmbientIfRunning cancels the ambient layer without emitting a
// terminal PLAN_ENDED (it is not done, only paused) and records its
// resume point so resumeAmbientIfIdle can restart it from the
// interrupted step.
func (e *Executor) pauseAmbientIfRunning() {
	e.mu.Lock()
	run := e.layers[schema.LayerAmbient]
	if run != nil {
		run.paused = true
	}
	e.mu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	select {
	case <-run.done:
	case <-time.After(layerWaitTimeout):
	}
}

// resumePoint builds the plan to resume a paused run from, keeping the
// interrupted step unless it was a speak, which is not pausable and was
// cancelled. Returns nil when nothing remains.
// Caller holds e.mu.
func resumePoint(run *layerRun) *Plan {
	idx := run.stepIdx
	if idx < len(run.plan.Steps) && run.plan.Steps[idx].Kind == schema.StepSpeak {
		idx++
	}
	if idx >= len(run.plan.Steps) {
		return nil
	}
	resumed := run.plan
	resumed.Steps = run.plan.Steps[idx:]
	return &resumed
}

func (e *Executor) startOrQueueAmbient(plan Plan) {
	e.mu.Lock()
	blocked := e.layers[schema.LayerForeground] != nil || e.layers[schema.LayerOverride] != nil
	if blocked {
		e.pendingAmbient = &plan
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.cancelLayerAndWait(schema.LayerAmbient)
	e.runLayer(plan)
}

// runLayer spawns a runner goroutine that executes plan to completion (or
// cancellation), emitting PLAN_STARTED immediately and exactly one
// PLAN_ENDED when it finishes.
func (e *Executor) runLayer(plan Plan) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &layerRun{planID: plan.PlanID, layer: plan.Layer, plan: plan, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.layers[plan.Layer] = run
	e.mu.Unlock()

	if err := e.Bus.Emit(bus.TopicPlanStarted, &schema.PlanStartedPayload{
		Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
		PlanID: plan.PlanID,
		Layer:  plan.Layer,
	}); err != nil {
		e.Logger.Warn("failed to emit plan started", "plan_id", plan.PlanID, "error", err)
	}

	e.Spawn(func(svcCtx context.Context) {
		defer close(run.done)
		defer context.AfterFunc(svcCtx, cancel)()
		status, failedStep, reason := e.runPlan(ctx, run)

		e.mu.Lock()
		if e.layers[plan.Layer] == run {
			delete(e.layers, plan.Layer)
		}
		var resumed *Plan
		if run.paused {
			resumed = resumePoint(run)
			if resumed != nil {
				e.pendingAmbient = resumed
			}
		}
		e.mu.Unlock()

		if resumed != nil {
			return
		}

		if err := e.Bus.Emit(bus.TopicPlanEnded, &schema.PlanEndedPayload{
			Base:         bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: e.Name}},
			PlanID:       plan.PlanID,
			Layer:        plan.Layer,
			Status:       status,
			FailedStepID: failedStep,
			Reason:       reason,
		}); err != nil {
			e.Logger.Warn("failed to emit plan ended", "plan_id", plan.PlanID, "error", err)
		}

		if plan.Layer != schema.LayerAmbient {
			e.resumeAmbientIfIdle()
		}
	})
}

// resumeAmbientIfIdle restarts a paused/queued ambient plan once
// neither foreground nor override occupies the executor.
func (e *Executor) resumeAmbientIfIdle() {
	e.mu.Lock()
	if e.layers[schema.LayerForeground] != nil || e.layers[schema.LayerOverride] != nil {
		e.mu.Unlock()
		return
	}
	plan := e.pendingAmbient
	e.pendingAmbient = nil
	e.mu.Unlock()
	if plan != nil {
		e.runLayer(*plan)
	}
}
