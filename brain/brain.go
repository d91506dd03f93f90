// Package brain implements the Brain/Planner: intent-to-plan
// translation, track selection against a synchronized music-library
// view, and the DJ-mode transition loop.
package brain

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
	"github.com/cantina-os/core/service"
)

// DefaultHistoryDepth is the depth of the last-played history ring.
const DefaultHistoryDepth = 5

// DefaultDuckLevel and DefaultDuckFadeMs are the duck/unduck parameters
// wrapping DJ commentary.
const (
	DefaultDuckLevel     = 0.5
	DefaultDuckFadeMs    = 500
	DefaultCrossfadeMs   = 4000
	DefaultDJLeadSeconds = 30 // TRACK_ENDING_SOON lead time
)

// Brain is the Brain/Planner service.
type Brain struct {
	*service.Base

	HistoryDepth int
	DuckLevel    float64
	DuckFadeMs   int
	CrossfadeMs  int

	mu           sync.Mutex
	library      []schema.MusicTrack
	history      []string // path_or_uri, most recent last
	currentTrack string   // path_or_uri of the track currently playing

	dj djState
}

// New constructs a Brain.
func New(b *bus.Bus) *Brain {
	br := &Brain{
		HistoryDepth: DefaultHistoryDepth,
		DuckLevel:    DefaultDuckLevel,
		DuckFadeMs:   DefaultDuckFadeMs,
		CrossfadeMs:  DefaultCrossfadeMs,
	}
	br.dj.state = djIdle
	br.dj.cachedReady = make(map[string]bool)
	br.dj.cacheMapping = make(map[string]string)
	br.Base = service.NewBase("brain", b, nil)
	return br
}

// OnStart implements service.Hooks.
func (br *Brain) OnStart(ctx context.Context) error {
	br.SubscribeStatusRequest()
	br.Subscribe(bus.TopicMusicLibraryUpdated, br.handleLibraryUpdated)
	br.Subscribe(bus.TopicIntentDetected, br.handleIntent)
	br.Subscribe(bus.TopicTrackPlaying, br.handleTrackPlaying)
	br.Subscribe(bus.TopicMusicPlaybackStart, br.handleMusicPlaybackStarted)
	br.Subscribe(bus.TopicDJModeChanged, br.handleDJModeChanged)
	br.Subscribe(bus.TopicDJCommand, br.handleDJCommand)
	br.Subscribe(bus.TopicDJCommandStop, br.handleDJCommand)
	br.Subscribe(bus.TopicDJCommandNext, br.handleDJCommand)
	br.Subscribe(bus.TopicMusicCmdIn, br.handleMusicCommandRequest)
	br.Subscribe(bus.TopicTrackEndingSoon, br.handleTrackEndingSoon)
	br.Subscribe(bus.TopicGPTCommentaryResp, br.handleCommentaryResponse)
	br.Subscribe(bus.TopicSpeechCacheReady, br.handleSpeechCacheReady)
	br.Subscribe(bus.TopicPlanEnded, br.handlePlanEnded)
	return nil
}

// OnStop implements service.Hooks.
func (br *Brain) OnStop(ctx context.Context) error {
	return nil
}

func (br *Brain) handleLibraryUpdated(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.MusicLibraryUpdatedPayload)
	if !ok {
		return
	}
	br.mu.Lock()
	br.library = p.Tracks
	br.mu.Unlock()
}

func (br *Brain) handleTrackPlaying(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.TrackPlayingPayload)
	if !ok {
		return
	}
	br.recordPlayed(p.Track.PathOrURI)
}

func (br *Brain) handleMusicPlaybackStarted(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.MusicPlaybackStartedPayload)
	if !ok {
		return
	}
	br.recordPlayed(p.Track.PathOrURI)
	if p.Source == schema.SourceDJ {
		br.onDJTrackStarted(p.Track)
	}
}

func (br *Brain) recordPlayed(pathOrURI string) {
	if pathOrURI == "" {
		return
	}
	br.mu.Lock()
	br.currentTrack = pathOrURI
	br.history = append(br.history, pathOrURI)
	if len(br.history) > br.HistoryDepth {
		br.history = br.history[len(br.history)-br.HistoryDepth:]
	}
	br.mu.Unlock()
}

func newRequestID() string { return uuid.NewString() }

func newPlanID() string { return uuid.NewString() }

var randIntn = rand.Intn

func (br *Brain) emitPlan(plan schema.Plan) error {
	if plan.PlanID == "" {
		plan.PlanID = newPlanID()
	}
	return br.Bus.Emit(bus.TopicPlanReady, &schema.PlanReadyPayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Plan: plan,
	})
}
