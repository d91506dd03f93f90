// Package bus implements the in-process publish/subscribe event bus that is
// the addressing fabric for every other CantinaOS component: services never
// hold references to each other, only to topics.
package bus

// Topic is a canonical event name. The set of topics is closed and
// versioned; nothing outside this file should introduce new topic
// literals.
type Topic string

// Core lifecycle and bootstrap topics.
const (
	TopicServiceStatus  Topic = "service_status"
	TopicStatusRequest  Topic = "status_request"
	TopicSystemSetMode  Topic = "system_set_mode_request"
	TopicSystemModeChg  Topic = "system_mode_change"
	TopicModeTransStart Topic = "mode_transition_started"
	TopicModeTransDone  Topic = "mode_transition_complete"
)

// Memory store topics.
const (
	TopicMemoryGet          Topic = "memory_get"
	TopicMemoryValue        Topic = "memory_value"
	TopicMemorySet          Topic = "memory_set"
	TopicMemoryUpdated      Topic = "memory_updated"
	TopicMemoryWait         Topic = "memory_wait"
	TopicMemoryWaitResolved Topic = "memory_wait_resolved"
	TopicMemoryWaitTimeout  Topic = "memory_wait_timeout"
)

// Command/dispatcher topics.
const (
	TopicCLICommand    Topic = "cli_command"
	TopicCLIResponse   Topic = "cli_response"
	TopicDJCommand     Topic = "dj_command"
	TopicDJCommandStop Topic = "dj_command_stop"
	TopicDJCommandNext Topic = "dj_command_next"
	TopicMusicCmdIn    Topic = "music_command_request"
)

// Timeline / plan topics.
const (
	TopicPlanReady           Topic = "plan_ready"
	TopicPlanStarted         Topic = "plan_started"
	TopicPlanEnded           Topic = "plan_ended"
	TopicTTSGenerateReq      Topic = "tts_generate_request"
	TopicTTSCancel           Topic = "tts_cancel"
	TopicSpeechGenComplete   Topic = "speech_generation_complete"
	TopicSpeechCacheReq      Topic = "speech_cache_request"
	TopicSpeechCacheReady    Topic = "speech_cache_ready"
	TopicSpeechCachePlayReq  Topic = "speech_cache_playback_request"
	TopicSpeechCachePlayDone Topic = "speech_cache_playback_completed"
	TopicAudioDuckStart      Topic = "audio_ducking_start"
	TopicAudioDuckStop       Topic = "audio_ducking_stop"
	TopicMusicCommand        Topic = "music_command"
	TopicCrossfadeComplete   Topic = "crossfade_complete"
)

// Music / DJ domain topics.
const (
	TopicTrackPlaying        Topic = "track_playing"
	TopicTrackStopped        Topic = "track_stopped"
	TopicTrackEndingSoon     Topic = "track_ending_soon"
	TopicMusicPlaybackStart  Topic = "music_playback_started"
	TopicMusicPlaybackStop   Topic = "music_playback_stopped"
	TopicMusicLibraryUpdated Topic = "music_library_updated"
	TopicDJModeChanged       Topic = "dj_mode_changed"
	TopicDJCommentaryReq     Topic = "dj_commentary_request"
	TopicGPTCommentaryResp   Topic = "gpt_commentary_response"
	TopicCommentaryMissed    Topic = "commentary_missed"
)

// Brain / intent topics.
const (
	TopicIntentDetected Topic = "intent_detected"
)

// Web bridge / dashboard topics.
const (
	TopicDashboardLog Topic = "dashboard_log"
)

// Voice capture topics. The speech-recognition collaborator itself is out
// of scope; these are the four events the core needs to
// bridge a web client's voice_command into that collaborator and surface
// its state, capture level and interim transcript back out.
const (
	TopicVoiceCommand         Topic = "voice_command"
	TopicVoiceState           Topic = "voice_state"
	TopicAudioAmplitude       Topic = "audio_amplitude"
	TopicTranscriptionInterim Topic = "transcription_interim"
)

// StickyTopics is the closed set of topics the bus retains-and-replays:
// service status, mode change, dj-mode change, and music
// playback/library state.
var StickyTopics = []Topic{
	TopicServiceStatus,
	TopicSystemModeChg,
	TopicDJModeChanged,
	TopicMusicPlaybackStart,
	TopicMusicPlaybackStop,
	TopicMusicLibraryUpdated,
}

// AllTopics lists every topic this package declares, for components (the
// metrics listener, diagnostic tooling) that need to subscribe bus-wide
// rather than to a named subset.
var AllTopics = []Topic{
	TopicServiceStatus, TopicStatusRequest, TopicSystemSetMode, TopicSystemModeChg,
	TopicModeTransStart, TopicModeTransDone,
	TopicMemoryGet, TopicMemoryValue, TopicMemorySet, TopicMemoryUpdated,
	TopicMemoryWait, TopicMemoryWaitResolved, TopicMemoryWaitTimeout,
	TopicCLICommand, TopicCLIResponse, TopicDJCommand, TopicDJCommandStop, TopicDJCommandNext, TopicMusicCmdIn,
	TopicPlanReady, TopicPlanStarted, TopicPlanEnded,
	TopicTTSGenerateReq, TopicTTSCancel, TopicSpeechGenComplete,
	TopicSpeechCacheReq, TopicSpeechCacheReady, TopicSpeechCachePlayReq, TopicSpeechCachePlayDone,
	TopicAudioDuckStart, TopicAudioDuckStop, TopicMusicCommand, TopicCrossfadeComplete,
	TopicTrackPlaying, TopicTrackStopped, TopicTrackEndingSoon,
	TopicMusicPlaybackStart, TopicMusicPlaybackStop, TopicMusicLibraryUpdated,
	TopicDJModeChanged, TopicDJCommentaryReq, TopicGPTCommentaryResp, TopicCommentaryMissed,
	TopicIntentDetected, TopicDashboardLog,
	TopicVoiceCommand, TopicVoiceState, TopicAudioAmplitude, TopicTranscriptionInterim,
}
