package webbridge

import (
	"encoding/json"
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// broadcastEnvelope wraps every outbound bus event rebroadcast to
// dashboard clients in a single stable shape, regardless of the
// originating topic.
type broadcastEnvelope struct {
	Topic     bus.Topic   `json:"topic"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Validated bool        `json:"validated"`
}

// outboundTopic pairs a topic with the throttle it rebroadcasts under:
// audio amplitude and interim transcription coalesce to the latest value
// at 10/s, service_status and voice_state tail-drop at 30/s, and the
// low-rate notifications pass through unbounded.
type outboundTopic struct {
	topic    bus.Topic
	throttle bus.ThrottleConfig
}

var outboundTopics = []outboundTopic{
	{bus.TopicAudioAmplitude, bus.ThrottleConfig{Mode: bus.ThrottleCoalesceLatest, PerSecond: 10}},
	{bus.TopicTranscriptionInterim, bus.ThrottleConfig{Mode: bus.ThrottleCoalesceLatest, PerSecond: 10}},
	{bus.TopicServiceStatus, bus.ThrottleConfig{Mode: bus.ThrottleTailDrop, PerSecond: 30}},
	{bus.TopicVoiceState, bus.ThrottleConfig{Mode: bus.ThrottleTailDrop, PerSecond: 30}},
	{bus.TopicTrackEndingSoon, bus.ThrottleConfig{Mode: bus.ThrottleTailDrop, PerSecond: 30}},
	{bus.TopicSystemModeChg, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
	{bus.TopicDJModeChanged, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
	{bus.TopicMusicPlaybackStart, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
	{bus.TopicMusicPlaybackStop, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
	{bus.TopicMusicLibraryUpdated, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
	{bus.TopicDashboardLog, bus.ThrottleConfig{Mode: bus.ThrottleUnbounded}},
}

// subscribeOutbound wires every topic the bridge rebroadcasts to
// dashboard clients. dashboardData, not the raw payload, is what crosses
// the wire so that the external vocabulary
// stays centralized here rather than duplicated at each call site.
func (br *Bridge) subscribeOutbound() {
	for _, ot := range outboundTopics {
		topic := ot.topic
		br.Subscribe(topic, func(e *bus.Event) { br.broadcast(topic, e) }, ot.throttle)
	}
}

func (br *Bridge) broadcast(topic bus.Topic, e *bus.Event) {
	env := broadcastEnvelope{
		Topic:     topic,
		Data:      dashboardData(e.Payload),
		Timestamp: e.Emitted,
		Validated: true,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		br.Logger.Warn("failed to marshal outbound broadcast", "topic", topic, "error", err)
		return
	}

	br.mu.Lock()
	defer br.mu.Unlock()
	for _, cl := range br.clients {
		cl.enqueue(raw)
	}
}

// dashboardVocabulary maps an internal ServiceState onto the external
// five-value vocabulary the dashboard understands. DEGRADED collapses
// to "error" since the external vocabulary carries no distinct degraded
// value.
var dashboardVocabulary = map[schema.ServiceState]string{
	schema.StateUninitialized: "offline",
	schema.StateStarting:      "starting",
	schema.StateRunning:       "online",
	schema.StateDegraded:      "error",
	schema.StateError:         "error",
	schema.StateStopping:      "stopping",
	schema.StateStopped:       "offline",
}

// dashboardData reshapes a payload's internal vocabulary into the
// external one before broadcast. Payloads with no internal/external
// vocabulary gap pass through unchanged.
func dashboardData(payload bus.Payload) interface{} {
	status, ok := payload.(*schema.ServiceStatusPayload)
	if !ok {
		return payload
	}
	mapped := *status
	if ext, ok := dashboardVocabulary[status.Status]; ok {
		mapped.Status = schema.ServiceState(ext)
	}
	return mapped
}

// handleCLIResponse routes a CLI_RESPONSE back to the single client whose
// session id equals its Source (the bridge sets Source to the client's
// sid, and prefixes RequestID with it, when it emits a command on that
// client's behalf). Responses to commands that did not originate from a
// connected web client are ignored; the CLI reader and other subscribers
// already received the same broadcast independently.
func (br *Bridge) handleCLIResponse(e *bus.Event) {
	resp, ok := e.Payload.(*schema.CLIResponsePayload)
	if !ok {
		return
	}

	br.mu.Lock()
	cl, found := br.clients[resp.Source]
	br.mu.Unlock()
	if !found {
		return
	}

	raw, err := json.Marshal(broadcastEnvelope{
		Topic:     bus.TopicCLIResponse,
		Data:      resp,
		Timestamp: e.Emitted,
		Validated: true,
	})
	if err != nil {
		br.Logger.Warn("failed to marshal cli response", "error", err)
		return
	}
	cl.enqueue(raw)
}
