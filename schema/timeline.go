package schema

import "github.com/cantina-os/core/bus"

// StepKind discriminates the tagged Step variants. Go has no sum types;
// a kind enum plus a superset of per-kind fields stands in for one.
type StepKind string

const (
	StepSpeak            StepKind = "speak"
	StepPlayCachedSpeech StepKind = "play_cached_speech"
	StepMusicDuck        StepKind = "music_duck"
	StepMusicUnduck      StepKind = "music_unduck"
	StepMusicCrossfade   StepKind = "music_crossfade"
	StepParallel         StepKind = "parallel"
	StepPlayMusic        StepKind = "play_music"
)

// Step is one tagged-variant action inside a Plan. Only the fields
// relevant to Kind are populated; the rest are left zero.
type Step struct {
	StepID string   `json:"step_id"`
	Kind   StepKind `json:"step_type"`

	// speak
	Text string `json:"text,omitempty"`

	// play_cached_speech
	CacheKey string `json:"cache_key,omitempty"`

	// music_duck
	Level float64 `json:"level,omitempty"`

	// music_duck / music_unduck / music_crossfade
	FadeMs int `json:"fade_ms,omitempty"`

	// music_crossfade
	NextTrack string `json:"next_track,omitempty"`

	// play_music
	TrackQuery string      `json:"track_query,omitempty"`
	Stop       bool        `json:"stop,omitempty"`
	Source     MusicSource `json:"source,omitempty"`

	// parallel
	Children []Step `json:"children,omitempty"`
}

// Plan is a layered, ordered list of Steps produced by the Brain and
// consumed by exactly one Timeline Executor layer.
type Plan struct {
	PlanID string `json:"plan_id"`
	Layer  Layer  `json:"layer"`
	Steps  []Step `json:"steps"`
}

// PlanReadyPayload hands a freshly built Plan to the Timeline Executor.
type PlanReadyPayload struct {
	bus.Base
	Plan Plan `json:"plan"`
}

// PlanStartedPayload announces that a plan has begun executing on its
// layer.
type PlanStartedPayload struct {
	bus.Base
	PlanID string `json:"plan_id"`
	Layer  Layer  `json:"layer"`
}

// PlanEndedPayload is the single terminal event for a plan.
type PlanEndedPayload struct {
	bus.Base
	PlanID       string     `json:"plan_id"`
	Layer        Layer      `json:"layer"`
	Status       PlanStatus `json:"status"`
	FailedStepID string     `json:"failed_step_id,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// TTSGenerateRequestPayload asks the (external) speech collaborator to
// stream-generate speech for a speak step.
type TTSGenerateRequestPayload struct {
	bus.Base
	Text   string `json:"text"`
	ClipID string `json:"clip_id"`
	PlanID string `json:"plan_id"`
}

// TTSCancelPayload aborts an in-flight streamed clip.
type TTSCancelPayload struct {
	bus.Base
	ClipID string `json:"clip_id"`
}

// SpeechGenerationCompletePayload signals that a streamed speak step's
// audio has finished playing.
type SpeechGenerationCompletePayload struct {
	bus.Base
	ClipID string `json:"clip_id"`
}

// SpeechCacheRequestPayload asks the (external) speech collaborator to
// pre-generate a cached commentary clip.
type SpeechCacheRequestPayload struct {
	bus.Base
	CacheKey  string `json:"cache_key"`
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

// SpeechCacheReadyPayload signals that a previously requested cache entry
// is now playable.
type SpeechCacheReadyPayload struct {
	bus.Base
	CacheKey string `json:"cache_key"`
}

// SpeechCachePlaybackRequestPayload asks for a ready cache entry to be
// played as part of a play_cached_speech step.
type SpeechCachePlaybackRequestPayload struct {
	bus.Base
	CacheKey string `json:"cache_key"`
	StepID   string `json:"step_id"`
	PlanID   string `json:"plan_id"`
}

// SpeechCachePlaybackCompletedPayload signals a play_cached_speech step's
// clip finished playing.
type SpeechCachePlaybackCompletedPayload struct {
	bus.Base
	StepID string `json:"step_id"`
}

// AudioDuckingStartPayload requests the music bed be attenuated to Level
// over FadeMs.
type AudioDuckingStartPayload struct {
	bus.Base
	Level  float64 `json:"level"`
	FadeMs int     `json:"fade_ms"`
}

// AudioDuckingStopPayload requests the music bed return to normal volume
// over FadeMs.
type AudioDuckingStopPayload struct {
	bus.Base
	FadeMs int `json:"fade_ms"`
}

// MusicCommandPayload is the richer internal command sent to the music
// collaborator (play/stop/crossfade), distinct from the Dispatcher's
// MusicCommandRequestPayload.
type MusicCommandPayload struct {
	bus.Base
	Action        MusicAction `json:"action"`
	Track         string      `json:"track,omitempty"`
	TrackName     string      `json:"track_name,omitempty"`
	FadeMs        int         `json:"fade_ms,omitempty"`
	CeilingVolume float64     `json:"ceiling_volume,omitempty"`
	Source        MusicSource `json:"source"`
}

// CrossfadeCompletePayload signals a music_crossfade step's target track
// has fully faded in.
type CrossfadeCompletePayload struct {
	bus.Base
	StepID string `json:"step_id"`
}
