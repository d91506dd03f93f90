package webbridge

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// frame is the envelope every inbound websocket message arrives in:
// {"type": "<channel>", "payload": {...}}, the single-connection
// equivalent of named socket channels.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// commandMsg is the simple free-text command channel.
type commandMsg struct {
	Command string `json:"command" validate:"required"`
}

// voiceCommandMsg is the structured voice_command channel.
type voiceCommandMsg struct {
	Action    string `json:"action" validate:"required,oneof=start stop"`
	CommandID string `json:"command_id" validate:"required"`
}

// musicCommandMsg is the structured music_command channel. TrackName is
// required only when Action is "play".
type musicCommandMsg struct {
	Action    string `json:"action" validate:"required,oneof=play stop pause resume next"`
	TrackName string `json:"track_name" validate:"required_if=Action play"`
	TrackID   string `json:"track_id"`
}

// djCommandMsg is the structured dj_command channel.
type djCommandMsg struct {
	Action string `json:"action" validate:"required,oneof=start stop next queue"`
	Track  string `json:"track"`
}

// systemCommandMsg is the structured system_command channel.
type systemCommandMsg struct {
	Action string `json:"action" validate:"required,eq=set_mode"`
	Mode   string `json:"mode" validate:"required,oneof=IDLE AMBIENT INTERACTIVE"`
}

// handleInbound decodes and routes a single raw client frame. Every
// path validates before any internal emission; no payload is passed
// through raw.
func (br *Bridge) handleInbound(cl *client, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		br.sendError(cl, "", "invalid_frame", "malformed JSON")
		return
	}

	switch f.Type {
	case "command":
		br.handleCommandFrame(cl, f.Payload)
	case "voice_command":
		br.handleVoiceFrame(cl, f.Payload)
	case "music_command":
		br.handleMusicFrame(cl, f.Payload)
	case "dj_command":
		br.handleDJFrame(cl, f.Payload)
	case "system_command":
		br.handleSystemFrame(cl, f.Payload)
	default:
		br.sendError(cl, f.Type, "unknown_command", "unrecognized channel type")
	}
}

// decodeAndValidate unmarshals payload into dst and runs struct-tag
// validation, reporting field-level errors in the same shape the bus's
// schema.Registry uses.
func (br *Bridge) decodeAndValidate(cl *client, channel string, raw json.RawMessage, dst interface{}) bool {
	if err := json.Unmarshal(raw, dst); err != nil {
		br.sendError(cl, channel, "invalid_payload", err.Error())
		return false
	}
	if err := br.validate.Struct(dst); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			br.sendError(cl, channel, "validation_error", err.Error())
			return false
		}
		fe := verrs[0]
		br.sendValidationError(cl, channel, fe.Field(), fe.Tag())
		return false
	}
	return true
}

func (br *Bridge) handleCommandFrame(cl *client, raw json.RawMessage) {
	var msg commandMsg
	if !br.decodeAndValidate(cl, "command", raw, &msg) {
		return
	}
	words := strings.Fields(msg.Command)
	if len(words) == 0 {
		br.sendError(cl, "command", "invalid_payload", "command must not be blank")
		return
	}
	if err := br.Bus.Emit(bus.TopicCLICommand, &schema.CLICommandPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Command:   words[0],
		RawInput:  msg.Command,
		Source:    cl.sid,
		RequestID: cl.sid + ":" + newFrameID(),
	}); err != nil {
		br.sendError(cl, "command", "internal_error", err.Error())
	}
}

func (br *Bridge) handleVoiceFrame(cl *client, raw json.RawMessage) {
	var msg voiceCommandMsg
	if !br.decodeAndValidate(cl, "voice_command", raw, &msg) {
		return
	}
	if err := br.Bus.Emit(bus.TopicVoiceCommand, &schema.VoiceCommandPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Action:    msg.Action,
		CommandID: msg.CommandID,
		Source:    "web",
	}); err != nil {
		br.sendError(cl, "voice_command", "internal_error", err.Error())
	}
}

func (br *Bridge) handleMusicFrame(cl *client, raw json.RawMessage) {
	var msg musicCommandMsg
	if !br.decodeAndValidate(cl, "music_command", raw, &msg) {
		return
	}
	if err := br.Bus.Emit(bus.TopicMusicCmdIn, &schema.MusicCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Action:    schema.MusicAction(msg.Action),
		TrackName: msg.TrackName,
		TrackID:   msg.TrackID,
		Source:    schema.SourceDashboard,
		RequestID: cl.sid + ":" + newFrameID(),
	}); err != nil {
		br.sendError(cl, "music_command", "internal_error", err.Error())
	}
}

func (br *Bridge) handleDJFrame(cl *client, raw json.RawMessage) {
	var msg djCommandMsg
	if !br.decodeAndValidate(cl, "dj_command", raw, &msg) {
		return
	}
	payload := &schema.DJCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Source:    cl.sid,
		RequestID: cl.sid + ":" + newFrameID(),
		Track:     msg.Track,
	}
	switch msg.Action {
	case "start":
		active := true
		payload.DJModeActive = &active
	case "stop":
		active := false
		payload.DJModeActive = &active
	default:
		payload.Action = msg.Action
	}
	if err := br.Bus.Emit(bus.TopicDJCommand, payload); err != nil {
		br.sendError(cl, "dj_command", "internal_error", err.Error())
	}
}

func (br *Bridge) handleSystemFrame(cl *client, raw json.RawMessage) {
	var msg systemCommandMsg
	if !br.decodeAndValidate(cl, "system_command", raw, &msg) {
		return
	}
	if err := br.Bus.Emit(bus.TopicSystemSetMode, &schema.SystemSetModePayload{
		Base: bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Mode: schema.Mode(msg.Mode),
	}); err != nil {
		br.sendError(cl, "system_command", "internal_error", err.Error())
	}
}

var frameSeq uint64

// newFrameID produces a per-frame correlation suffix without reaching for
// a UUID on the client's hot path; uniqueness only needs to hold within a
// single client's session since the sid prefix already disambiguates
// across clients. Multiple clients' read pumps call this concurrently, so
// the counter itself is atomic.
func newFrameID() string {
	return itoa(atomic.AddUint64(&frameSeq, 1))
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
