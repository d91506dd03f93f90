package dispatcher

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// pendingTimeout bounds how long a request_id is retained waiting for its
// handler's CLI_RESPONSE before the dispatcher gives up on attributing it
// and logs the response as stale instead.
const pendingTimeout = 10 * time.Second

// OnStart implements service.Hooks.
func (d *Dispatcher) OnStart(ctx context.Context) error {
	d.SubscribeStatusRequest()
	d.Subscribe(bus.TopicCLICommand, d.handleCommand)
	d.Subscribe(bus.TopicCLIResponse, d.handleResponse)
	return nil
}

// OnStop implements service.Hooks.
func (d *Dispatcher) OnStop(ctx context.Context) error {
	return nil
}

// handleCommand parses a CLI_COMMAND's raw_input, attempting a two-word
// compound match before falling back to a one-word match,
// shapes the result per the matched registration's Kind, and emits it to
// the registration's target topic.
func (d *Dispatcher) handleCommand(e *bus.Event) {
	req, ok := e.Payload.(*schema.CLICommandPayload)
	if !ok {
		return
	}

	words := strings.Fields(req.RawInput)
	if len(words) == 0 {
		d.fail(req, "unknown_command", "", "empty command")
		return
	}

	reg, patternWords, rest, found := d.match(words)
	if !found {
		d.fail(req, "unknown_command", "", "no registered handler for "+words[0])
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	d.mu.Lock()
	d.pending[requestID] = req.Source
	d.mu.Unlock()
	d.Spawn(func(ctx context.Context) { d.expirePending(ctx, requestID) })

	switch reg.Kind {
	case KindDJ:
		d.emitDJ(reg, patternWords, rest, req, requestID)
	case KindMusic:
		d.emitMusic(reg, patternWords, rest, req, requestID)
	default:
		d.emitGeneric(reg, patternWords, words, rest, req, requestID)
	}
}

// match attempts a two-word compound match first, then a one-word
// match, returning the registration, the matched pattern's words, and
// the remaining words as arguments.
func (d *Dispatcher) match(words []string) (reg Registration, patternWords, rest []string, found bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(words) >= 2 {
		key := strings.ToLower(words[0]) + " " + strings.ToLower(words[1])
		if r, ok := d.twoWord[key]; ok {
			return r, strings.Fields(key), words[2:], true
		}
	}
	key := strings.ToLower(words[0])
	if r, ok := d.oneWord[key]; ok {
		return r, []string{key}, words[1:], true
	}
	return Registration{}, nil, nil, false
}

func (d *Dispatcher) emitGeneric(reg Registration, patternWords, words, rest []string, req *schema.CLICommandPayload, requestID string) {
	command := words[0]
	subcommand := ""
	if len(patternWords) == 2 && len(words) >= 2 {
		subcommand = words[1]
	}
	if err := d.Bus.Emit(reg.TargetTopic, &schema.CLICommandPayload{
		Base:       bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: d.Name}},
		Command:    command,
		Subcommand: subcommand,
		Args:       rest,
		RawInput:   req.RawInput,
		Source:     req.Source,
		RequestID:  requestID,
	}); err != nil {
		d.Logger.Warn("failed to emit generic command", "topic", reg.TargetTopic, "error", err)
	}
}

func (d *Dispatcher) emitDJ(reg Registration, patternWords, rest []string, req *schema.CLICommandPayload, requestID string) {
	action := patternWords[len(patternWords)-1]
	payload := &schema.DJCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: d.Name}},
		Source:    req.Source,
		RequestID: requestID,
	}
	switch action {
	case "start":
		active := true
		payload.DJModeActive = &active
	case "stop":
		active := false
		payload.DJModeActive = &active
	default:
		payload.Action = action
		payload.Track = strings.Join(rest, " ")
	}
	if err := d.Bus.Emit(reg.TargetTopic, payload); err != nil {
		d.Logger.Warn("failed to emit dj command", "topic", reg.TargetTopic, "error", err)
	}
}

var musicActionWords = map[string]schema.MusicAction{
	"play":   schema.ActionPlay,
	"stop":   schema.ActionStop,
	"pause":  schema.ActionPause,
	"resume": schema.ActionResume,
	"next":   schema.ActionNext,
}

func (d *Dispatcher) emitMusic(reg Registration, patternWords, rest []string, req *schema.CLICommandPayload, requestID string) {
	word := patternWords[0]
	action, ok := musicActionWords[word]
	if !ok {
		d.fail(req, "unknown_command", "", "unrecognized music action "+word)
		return
	}
	trackName := strings.Join(rest, " ")
	if action == schema.ActionPlay && trackName == "" {
		d.fail(req, "missing_argument", "track_name", "play requires a track name")
		return
	}
	if err := d.Bus.Emit(reg.TargetTopic, &schema.MusicCommandRequestPayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: d.Name}},
		Action:    action,
		TrackName: trackName,
		Source:    schema.MusicSource(req.Source),
		RequestID: requestID,
	}); err != nil {
		d.Logger.Warn("failed to emit music command", "topic", reg.TargetTopic, "error", err)
	}
}

// fail emits a failure CLI_RESPONSE directly, without routing through any
// handler: there is no target topic to
// blame the error on when the command itself couldn't be matched or
// shaped.
func (d *Dispatcher) fail(req *schema.CLICommandPayload, code, field, message string) {
	if err := d.Bus.Emit(bus.TopicCLIResponse, &schema.CLIResponsePayload{
		Base:      bus.Base{Meta: bus.Meta{Timestamp: time.Now(), ServiceName: d.Name}},
		Success:   false,
		Message:   message,
		Code:      code,
		Field:     field,
		Source:    req.Source,
		RequestID: req.RequestID,
	}); err != nil {
		d.Logger.Warn("failed to emit failure response", "code", code, "error", err)
	}
}

// handleResponse retires the pending request_id a handler's CLI_RESPONSE
// answers. The response itself was already delivered to every subscriber
// of CLI_RESPONSE (including the web bridge and CLI reader, which match
// its source against their own client session id or "cli"); the
// Dispatcher's role here is bookkeeping, not a second delivery.
func (d *Dispatcher) handleResponse(e *bus.Event) {
	resp, ok := e.Payload.(*schema.CLIResponsePayload)
	if !ok {
		return
	}
	d.mu.Lock()
	_, known := d.pending[resp.RequestID]
	delete(d.pending, resp.RequestID)
	d.mu.Unlock()
	if !known {
		d.Logger.Warn("cli_response for unknown or expired request_id", "request_id", resp.RequestID)
	}
}

// expirePending drops a pending request_id that never received a response
// within pendingTimeout, so the map cannot grow unbounded when a target
// service fails to answer.
func (d *Dispatcher) expirePending(ctx context.Context, requestID string) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(pendingTimeout):
	}
	d.mu.Lock()
	_, still := d.pending[requestID]
	delete(d.pending, requestID)
	d.mu.Unlock()
	if still {
		d.Logger.Warn("cli command timed out waiting for handler response", "request_id", requestID)
	}
}
