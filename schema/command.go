package schema

import "github.com/cantina-os/core/bus"

// CLICommandPayload is the parsed shape of a single textual command,
// regardless of whether it originated at the CLI or the web bridge's
// simple command channel.
type CLICommandPayload struct {
	bus.Base
	Command    string   `json:"command"`
	Subcommand string   `json:"subcommand,omitempty"`
	Args       []string `json:"args"`
	RawInput   string   `json:"raw_input"`
	Source     string   `json:"source"`
	RequestID  string   `json:"request_id"`
}

// CLIResponsePayload is published by command handlers (or by the
// Dispatcher itself for unmatched commands) as a bus broadcast.
// Source names the originating CLI session or web socket client and is
// what the CLI reader and the Web Bridge route on; RequestID correlates
// the response with the CLICommandPayload that triggered it, which the
// Dispatcher uses to retire its pending entry.
type CLIResponsePayload struct {
	bus.Base
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Code      string      `json:"code,omitempty"`
	Field     string      `json:"field,omitempty"`
	Source    string      `json:"source"`
	RequestID string      `json:"request_id"`
}

// DJCommandRequestPayload is the Dispatcher's target-specific shape for the
// "dj ..." compound command: "dj start"/"dj stop" carry
// DJModeActive, "dj next"/"dj queue" carry Action.
type DJCommandRequestPayload struct {
	bus.Base
	Action       string `json:"action,omitempty"`
	DJModeActive *bool  `json:"dj_mode_active,omitempty"`
	Track        string `json:"track,omitempty"`
	Source       string `json:"source"`
	RequestID    string `json:"request_id"`
}

// MusicCommandRequestPayload is the Dispatcher's target-specific shape for
// the "play music ..." compound command: action "play" with
// a free-text track_name, or a bare action for stop/pause/resume/next.
type MusicCommandRequestPayload struct {
	bus.Base
	Action    MusicAction `json:"action"`
	TrackName string      `json:"track_name,omitempty"`
	TrackID   string      `json:"track_id,omitempty"`
	Source    MusicSource `json:"source"`
	RequestID string      `json:"request_id"`
}
