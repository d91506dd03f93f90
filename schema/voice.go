package schema

import "github.com/cantina-os/core/bus"

// VoiceCommandPayload asks the (out-of-scope) speech-recognition
// collaborator to start or stop capture.
type VoiceCommandPayload struct {
	bus.Base
	Action    string `json:"action"` // "start" | "stop"
	CommandID string `json:"command_id"`
	Source    string `json:"source"`
}

// VoiceStatePayload is the collaborator's state report, re-shaped by the
// Web Bridge into the "voice_status" broadcast vocabulary.
type VoiceStatePayload struct {
	bus.Base
	State string `json:"state"` // e.g. "listening" | "idle" | "processing"
}

// AudioAmplitudePayload is the high-frequency capture-level meter the
// dashboard renders. It is never consumed internally; the Web Bridge
// rebroadcasts it under coalesce-latest throttling.
type AudioAmplitudePayload struct {
	bus.Base
	Amplitude float64 `json:"amplitude"`
}

// TranscriptionInterimPayload carries a partial transcript while the
// user is still speaking. Like audio amplitude it is dashboard-only and
// coalesce-latest throttled outbound.
type TranscriptionInterimPayload struct {
	bus.Base
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}
