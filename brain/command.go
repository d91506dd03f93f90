package brain

import (
	"time"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// handleDJCommand translates the Dispatcher's (or Web Bridge's)
// DJ_COMMAND request into the sticky DJ_MODE_CHANGED notification
// handleDJModeChanged already drives, and answers the command's
// CLI_RESPONSE.
func (br *Brain) handleDJCommand(ev *bus.Event) {
	req, ok := ev.Payload.(*schema.DJCommandRequestPayload)
	if !ok {
		return
	}

	switch {
	case req.DJModeActive != nil:
		if err := br.Bus.Emit(bus.TopicDJModeChanged, &schema.DJModeChangedPayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
			Active: *req.DJModeActive,
		}); err != nil {
			br.respondCLI(req.Source, req.RequestID, false, "", "internal_error", err.Error())
			return
		}
		br.respondCLI(req.Source, req.RequestID, true, "", "", "")
	case req.Action == "next":
		br.mu.Lock()
		active := br.dj.state == djPlaying
		br.mu.Unlock()
		if !active {
			br.respondCLI(req.Source, req.RequestID, false, "", "invalid_state", "dj mode is not active")
			return
		}
		br.Bus.Emit(bus.TopicTrackEndingSoon, &schema.TrackEndingSoonPayload{
			Base:             bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
			SecondsRemaining: 0,
		})
		br.respondCLI(req.Source, req.RequestID, true, "", "", "")
	case req.Action == "queue":
		track, err := br.selectTrack(req.Track)
		if err != nil {
			br.respondCLI(req.Source, req.RequestID, false, "", "no_tracks", err.Error())
			return
		}
		br.mu.Lock()
		br.dj.nextTrack = track
		br.mu.Unlock()
		br.respondCLI(req.Source, req.RequestID, true, "queued "+track.Title, "", "")
	default:
		br.respondCLI(req.Source, req.RequestID, false, "", "unknown_command", "unrecognized dj action")
	}
}

// handleMusicCommandRequest translates the Dispatcher's (or Web Bridge's)
// MUSIC_COMMAND_REQUEST into a plan or direct music command and answers
// its CLI_RESPONSE. Unlike the voice intent path (intent.go), CLI and
// dashboard requests never get a spoken intro; the user already typed
// or clicked the command.
func (br *Brain) handleMusicCommandRequest(ev *bus.Event) {
	req, ok := ev.Payload.(*schema.MusicCommandRequestPayload)
	if !ok {
		return
	}

	source := string(req.Source)

	switch req.Action {
	case schema.ActionPlay:
		track, err := br.selectTrack(req.TrackName)
		if err != nil {
			br.respondCLI(source, req.RequestID, false, "", "no_tracks", err.Error())
			return
		}
		plan := schema.Plan{Layer: schema.LayerForeground, Steps: []schema.Step{
			{StepID: "play", Kind: schema.StepPlayMusic, TrackQuery: track.PathOrURI, Source: req.Source},
		}}
		if err := br.emitPlan(plan); err != nil {
			br.respondCLI(source, req.RequestID, false, "", "internal_error", err.Error())
			return
		}
		br.respondCLI(source, req.RequestID, true, "playing "+track.Title, "", "")
	case schema.ActionStop:
		if err := br.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
			Action: schema.ActionStop,
			Source: req.Source,
		}); err != nil {
			br.respondCLI(source, req.RequestID, false, "", "internal_error", err.Error())
			return
		}
		br.respondCLI(source, req.RequestID, true, "", "", "")
	case schema.ActionPause, schema.ActionResume, schema.ActionNext:
		if err := br.Bus.Emit(bus.TopicMusicCommand, &schema.MusicCommandPayload{
			Base:   bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
			Action: req.Action,
			Source: req.Source,
		}); err != nil {
			br.respondCLI(source, req.RequestID, false, "", "internal_error", err.Error())
			return
		}
		br.respondCLI(source, req.RequestID, true, "", "", "")
	default:
		br.respondCLI(source, req.RequestID, false, "", "unknown_command", "unrecognized music action")
	}
}

func (br *Brain) respondCLI(source, requestID string, success bool, message, code, errMsg string) {
	msg := message
	if !success && errMsg != "" {
		msg = errMsg
	}
	if err := br.Bus.Emit(bus.TopicCLIResponse, &schema.CLIResponsePayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: br.Name}},
		Success:   success,
		Message:   msg,
		Code:      code,
		Source:    source,
		RequestID: requestID,
	}); err != nil {
		br.Logger.Warn("failed to emit cli response", "error", err)
	}
}
