package schema

import "github.com/cantina-os/core/bus"

// MusicTrack is identified by PathOrURI, not Title: the Brain's track
// selector must never alias two different files that happen to share a
// display name.
type MusicTrack struct {
	TrackID    string `json:"track_id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
	PathOrURI  string `json:"path_or_uri"`
	Source     string `json:"source"` // "local" | "remote"
}

// TrackPlayingPayload is the simple coordination event the Timeline
// Executor watches to decide whether implicit ducking is required,
// deliberately distinct from the richer MusicPlaybackStartedPayload
// aimed at UI consumers.
type TrackPlayingPayload struct {
	bus.Base
	Track MusicTrack `json:"track"`
}

// TrackStoppedPayload is the coordination counterpart to TrackPlaying.
type TrackStoppedPayload struct {
	bus.Base
}

// TrackEndingSoonPayload is emitted by the music collaborator with
// SecondsRemaining lead time before a track finishes (default lead
// time 30s, configurable).
type TrackEndingSoonPayload struct {
	bus.Base
	SecondsRemaining int        `json:"seconds_remaining"`
	Track            MusicTrack `json:"track"`
}

// MusicPlaybackStartedPayload is the rich, sticky, UI-facing event for a
// music transition.
type MusicPlaybackStartedPayload struct {
	bus.Base
	Track  MusicTrack  `json:"track"`
	Source MusicSource `json:"source"`
	Mode   Mode        `json:"mode"`
}

// MusicPlaybackStoppedPayload is the sticky counterpart to
// MusicPlaybackStartedPayload.
type MusicPlaybackStoppedPayload struct {
	bus.Base
	Track  MusicTrack  `json:"track"`
	Source MusicSource `json:"source"`
}

// MusicLibraryUpdatedPayload refreshes the Brain's and Web Bridge's
// synchronized view of the available tracks.
type MusicLibraryUpdatedPayload struct {
	bus.Base
	Tracks []MusicTrack `json:"tracks"`
}

// DJModeChangedPayload toggles DJ-mode loop state.
type DJModeChangedPayload struct {
	bus.Base
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
}

// DJCommentaryRequestPayload asks the (external) LLM collaborator for
// transition commentary text.
type DJCommentaryRequestPayload struct {
	bus.Base
	Context      string `json:"context"`
	CurrentTrack string `json:"current_track"`
	NextTrack    string `json:"next_track"`
	Style        string `json:"style"`
	RequestID    string `json:"request_id"`
}

// GPTCommentaryResponsePayload answers a DJCommentaryRequestPayload.
type GPTCommentaryResponsePayload struct {
	bus.Base
	RequestID string `json:"request_id"`
	Text      string `json:"text"`
}

// CommentaryMissedPayload is a diagnostic emitted when a DJ transition has
// to fall back to a crossfade-only plan because commentary wasn't cached
// in time.
type CommentaryMissedPayload struct {
	bus.Base
	Track string `json:"track"`
}

// IntentDetectedPayload carries a recognized user intent from the
// external speech-recognition/NLU collaborator into the Brain.
type IntentDetectedPayload struct {
	bus.Base
	Name           string                 `json:"name"`
	Args           map[string]interface{} `json:"args"`
	ConversationID string                 `json:"conversation_id"`
}
