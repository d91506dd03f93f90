package schema

import "github.com/cantina-os/core/bus"

// MemoryKey is a typed key from the closed set the Memory Store owns.
// system_ready and last_error are carried alongside the domain keys so
// that startup sequencing and the most recent failure are addressable
// the same way every other piece of shared state is.
type MemoryKey string

const (
	KeyChatHistory               MemoryKey = "chat_history"
	KeyMusicPlaying              MemoryKey = "music_playing"
	KeyCurrentTrack              MemoryKey = "current_track"
	KeyDJModeActive              MemoryKey = "dj_mode_active"
	KeyDJTrackHistory            MemoryKey = "dj_track_history"
	KeyDJCommentaryCacheMappings MemoryKey = "dj_commentary_cache_mappings"
	KeyDJCommentaryCacheReady    MemoryKey = "dj_commentary_cache_ready"
	KeyMode                      MemoryKey = "mode"
	KeySystemReady               MemoryKey = "system_ready"
	KeyLastError                 MemoryKey = "last_error"
)

// MemoryGetPayload requests the current value of key.
type MemoryGetPayload struct {
	bus.Base
	Key       MemoryKey `json:"key"`
	RequestID string    `json:"request_id"`
}

// MemoryValuePayload answers a MemoryGetPayload. Present is false when key
// has never been set; that is not an error.
type MemoryValuePayload struct {
	bus.Base
	Key       MemoryKey   `json:"key"`
	Value     interface{} `json:"value"`
	RequestID string      `json:"request_id"`
	Present   bool        `json:"present"`
}

// MemorySetPayload asks the Memory Store to update key.
type MemorySetPayload struct {
	bus.Base
	Key   MemoryKey   `json:"key"`
	Value interface{} `json:"value"`
}

// MemoryUpdatedPayload is emitted whenever a key changes, whether by an
// explicit MemorySetPayload or by mirroring a domain event.
type MemoryUpdatedPayload struct {
	bus.Base
	Key      MemoryKey   `json:"key"`
	Value    interface{} `json:"value"`
	Previous interface{} `json:"previous"`
}

// MemoryWaitPayload asks the Memory Store to resolve predicateID once key
// satisfies condition, or to time out after the configured wait window.
type MemoryWaitPayload struct {
	bus.Base
	Key         MemoryKey   `json:"key"`
	PredicateID string      `json:"predicate_id"`
	Condition   interface{} `json:"condition"`
}

// MemoryWaitResolvedPayload fires when a MemoryWaitPayload's condition is
// satisfied.
type MemoryWaitResolvedPayload struct {
	bus.Base
	PredicateID string      `json:"predicate_id"`
	Key         MemoryKey   `json:"key"`
	Value       interface{} `json:"value"`
}

// MemoryWaitTimeoutPayload fires when a MemoryWaitPayload's condition is
// never satisfied within the configured timeout.
type MemoryWaitTimeoutPayload struct {
	bus.Base
	PredicateID string    `json:"predicate_id"`
	Key         MemoryKey `json:"key"`
}
