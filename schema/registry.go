package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cantina-os/core/bus"
)

// ValidationError represents a single schema validation error with
// field-level detail, as returned by ValidateJSON.
type ValidationError struct {
	Field       string      `json:"field"`
	Description string      `json:"description"`
	Value       interface{} `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// schemaFor maps every topic to its hand-written JSON Schema literal. Each
// schema declares only the fields a producer is contractually bound to
// (required presence and JSON type); finer constraints belong to the
// payload structs themselves.
var schemaFor = map[bus.Topic]string{
	bus.TopicServiceStatus: `{
		"type": "object",
		"required": ["timestamp", "service_name", "status", "severity"],
		"properties": {
			"status": {"type": "string"},
			"severity": {"type": "string"},
			"uptime": {"type": "number"}
		}
	}`,
	bus.TopicStatusRequest: `{
		"type": "object",
		"required": ["timestamp", "service_name"]
	}`,
	bus.TopicSystemSetMode: `{
		"type": "object",
		"required": ["timestamp", "service_name", "mode"]
	}`,
	bus.TopicSystemModeChg: `{
		"type": "object",
		"required": ["timestamp", "service_name", "mode", "previous"]
	}`,
	bus.TopicModeTransStart: `{
		"type": "object",
		"required": ["timestamp", "service_name", "from", "to"]
	}`,
	bus.TopicModeTransDone: `{
		"type": "object",
		"required": ["timestamp", "service_name", "to"]
	}`,
	bus.TopicMemoryGet: `{
		"type": "object",
		"required": ["timestamp", "service_name", "key", "request_id"]
	}`,
	bus.TopicMemoryValue: `{
		"type": "object",
		"required": ["timestamp", "service_name", "key", "request_id", "present"]
	}`,
	bus.TopicMemorySet: `{
		"type": "object",
		"required": ["timestamp", "service_name", "key"]
	}`,
	bus.TopicMemoryUpdated: `{
		"type": "object",
		"required": ["timestamp", "service_name", "key"]
	}`,
	bus.TopicMemoryWait: `{
		"type": "object",
		"required": ["timestamp", "service_name", "key", "predicate_id"]
	}`,
	bus.TopicMemoryWaitResolved: `{
		"type": "object",
		"required": ["timestamp", "service_name", "predicate_id", "key"]
	}`,
	bus.TopicMemoryWaitTimeout: `{
		"type": "object",
		"required": ["timestamp", "service_name", "predicate_id", "key"]
	}`,
	bus.TopicCLICommand: `{
		"type": "object",
		"required": ["timestamp", "service_name", "command", "raw_input", "source"]
	}`,
	bus.TopicCLIResponse: `{
		"type": "object",
		"required": ["timestamp", "service_name", "success", "source"]
	}`,
	bus.TopicDJCommand: `{
		"type": "object",
		"required": ["timestamp", "service_name", "source"]
	}`,
	bus.TopicDJCommandStop: `{
		"type": "object",
		"required": ["timestamp", "service_name", "source"]
	}`,
	bus.TopicDJCommandNext: `{
		"type": "object",
		"required": ["timestamp", "service_name", "source"]
	}`,
	bus.TopicMusicCmdIn: `{
		"type": "object",
		"required": ["timestamp", "service_name", "action", "source"]
	}`,
	bus.TopicPlanReady: `{
		"type": "object",
		"required": ["timestamp", "service_name", "plan"]
	}`,
	bus.TopicPlanStarted: `{
		"type": "object",
		"required": ["timestamp", "service_name", "plan_id", "layer"]
	}`,
	bus.TopicPlanEnded: `{
		"type": "object",
		"required": ["timestamp", "service_name", "plan_id", "layer", "status"]
	}`,
	bus.TopicTTSGenerateReq: `{
		"type": "object",
		"required": ["timestamp", "service_name", "text", "clip_id", "plan_id"]
	}`,
	bus.TopicTTSCancel: `{
		"type": "object",
		"required": ["timestamp", "service_name", "clip_id"]
	}`,
	bus.TopicSpeechGenComplete: `{
		"type": "object",
		"required": ["timestamp", "service_name", "clip_id"]
	}`,
	bus.TopicSpeechCacheReq: `{
		"type": "object",
		"required": ["timestamp", "service_name", "cache_key", "text"]
	}`,
	bus.TopicSpeechCacheReady: `{
		"type": "object",
		"required": ["timestamp", "service_name", "cache_key"]
	}`,
	bus.TopicSpeechCachePlayReq: `{
		"type": "object",
		"required": ["timestamp", "service_name", "cache_key", "step_id", "plan_id"]
	}`,
	bus.TopicSpeechCachePlayDone: `{
		"type": "object",
		"required": ["timestamp", "service_name", "step_id"]
	}`,
	bus.TopicAudioDuckStart: `{
		"type": "object",
		"required": ["timestamp", "service_name", "level", "fade_ms"]
	}`,
	bus.TopicAudioDuckStop: `{
		"type": "object",
		"required": ["timestamp", "service_name", "fade_ms"]
	}`,
	bus.TopicMusicCommand: `{
		"type": "object",
		"required": ["timestamp", "service_name", "action", "source"]
	}`,
	bus.TopicCrossfadeComplete: `{
		"type": "object",
		"required": ["timestamp", "service_name", "step_id"]
	}`,
	bus.TopicTrackPlaying: `{
		"type": "object",
		"required": ["timestamp", "service_name", "track"]
	}`,
	bus.TopicTrackStopped: `{
		"type": "object",
		"required": ["timestamp", "service_name"]
	}`,
	bus.TopicTrackEndingSoon: `{
		"type": "object",
		"required": ["timestamp", "service_name", "seconds_remaining", "track"]
	}`,
	bus.TopicMusicPlaybackStart: `{
		"type": "object",
		"required": ["timestamp", "service_name", "track", "source", "mode"]
	}`,
	bus.TopicMusicPlaybackStop: `{
		"type": "object",
		"required": ["timestamp", "service_name", "track", "source"]
	}`,
	bus.TopicMusicLibraryUpdated: `{
		"type": "object",
		"required": ["timestamp", "service_name", "tracks"]
	}`,
	bus.TopicDJModeChanged: `{
		"type": "object",
		"required": ["timestamp", "service_name", "active"]
	}`,
	bus.TopicDJCommentaryReq: `{
		"type": "object",
		"required": ["timestamp", "service_name", "current_track", "next_track", "style", "request_id"]
	}`,
	bus.TopicGPTCommentaryResp: `{
		"type": "object",
		"required": ["timestamp", "service_name", "request_id", "text"]
	}`,
	bus.TopicCommentaryMissed: `{
		"type": "object",
		"required": ["timestamp", "service_name", "track"]
	}`,
	bus.TopicIntentDetected: `{
		"type": "object",
		"required": ["timestamp", "service_name", "name"]
	}`,
	bus.TopicDashboardLog: `{
		"type": "object",
		"required": ["timestamp", "service_name", "level", "message"]
	}`,
	bus.TopicVoiceCommand: `{
		"type": "object",
		"required": ["timestamp", "service_name", "action", "source"]
	}`,
	bus.TopicVoiceState: `{
		"type": "object",
		"required": ["timestamp", "service_name", "state"]
	}`,
	bus.TopicAudioAmplitude: `{
		"type": "object",
		"required": ["timestamp", "service_name", "amplitude"]
	}`,
	bus.TopicTranscriptionInterim: `{
		"type": "object",
		"required": ["timestamp", "service_name", "text"]
	}`,
}

// Registry compiles every topic's schema once and validates payloads
// against them, implementing bus.Validator. It is the bus's only source
// of schema truth.
type Registry struct {
	mu      sync.RWMutex
	schemas map[bus.Topic]*gojsonschema.Schema
}

// NewRegistry compiles every built-in topic schema. A compile failure is a
// programming error in schemaFor and panics immediately at startup rather
// than surfacing as a runtime validation failure later.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[bus.Topic]*gojsonschema.Schema, len(schemaFor))}
	for topic, raw := range schemaFor {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("schema: invalid built-in schema for topic %q: %v", topic, err))
		}
		r.schemas[topic] = compiled
	}
	return r
}

// Register adds or replaces the schema for topic, compiling schemaJSON
// immediately. Used by components that introduce topics beyond the
// built-in set (none currently do; provided for forward compatibility
// with bus.MarkSticky-style extension points).
func (r *Registry) Register(topic bus.Topic, schemaJSON string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("schema: compiling schema for topic %q: %w", topic, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[topic] = compiled
	return nil
}

// Validate implements bus.Validator. A topic with no registered schema is
// accepted unvalidated rather than rejected, so that application-specific
// extensions don't need to pre-register before the bus will carry them.
func (r *Registry) Validate(topic bus.Topic, payload bus.Payload) error {
	r.mu.RLock()
	s, ok := r.schemas[topic]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return &bus.PublishValidationError{Topic: topic, Reason: fmt.Sprintf("payload not JSON-serializable: %v", err)}
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &bus.PublishValidationError{Topic: topic, Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return &bus.PublishValidationError{Topic: topic, Reason: "schema validation failed", Details: details}
}

// ValidateJSON validates raw JSON bytes against topic's schema before
// they are unmarshalled into a Go struct, reporting every field-level
// error. No component in this module calls it; the Web Bridge validates
// inbound socket payloads with struct tags instead.
func (r *Registry) ValidateJSON(topic bus.Topic, raw []byte) []ValidationError {
	r.mu.RLock()
	s, ok := r.schemas[topic]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return []ValidationError{{Field: "$", Description: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	out := make([]ValidationError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, ValidationError{Field: e.Field(), Description: e.Description(), Value: e.Value()})
	}
	return out
}

var _ bus.Validator = (*Registry)(nil)
