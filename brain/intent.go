package brain

import (
	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/schema"
)

// Recognized intent names. The speech/NLU collaborator
// that produces INTENT_DETECTED is out of scope; these names are the
// closed contract between it and the Brain.
const (
	IntentPlayMusic = "play_music"
	IntentStopMusic = "stop_music"
)

func (br *Brain) handleIntent(ev *bus.Event) {
	p, ok := ev.Payload.(*schema.IntentDetectedPayload)
	if !ok {
		return
	}
	switch p.Name {
	case IntentPlayMusic:
		br.planMusicPlay(p)
	case IntentStopMusic:
		br.planMusicStop(p)
	default:
		br.Logger.Warn("unrecognized intent", "name", p.Name, "conversation_id", p.ConversationID)
	}
}

func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

// planMusicPlay is source-aware: a
// voice-initiated request gets a spoken intro running in
// parallel with playback start; CLI/dashboard requests do not, since the
// user already typed or clicked the command.
func (br *Brain) planMusicPlay(p *schema.IntentDetectedPayload) {
	query := argString(p.Args, "query")
	source := schema.MusicSource(argString(p.Args, "source"))
	if source == "" {
		source = schema.SourceVoice
	}

	track, err := br.selectTrack(query)
	if err != nil {
		br.Logger.Warn("music play intent failed track selection", "error", err, "query", query)
		return
	}

	var plan schema.Plan
	plan.Layer = schema.LayerForeground

	if source == schema.SourceVoice {
		plan.Steps = []schema.Step{{
			StepID: "intro-and-play",
			Kind:   schema.StepParallel,
			Children: []schema.Step{
				{StepID: "intro", Kind: schema.StepSpeak, Text: "Now playing " + track.Title},
				{StepID: "play", Kind: schema.StepPlayMusic, TrackQuery: track.PathOrURI, Source: source},
			},
		}}
	} else {
		plan.Steps = []schema.Step{
			{StepID: "play", Kind: schema.StepPlayMusic, TrackQuery: track.PathOrURI, Source: source},
		}
	}

	if err := br.emitPlan(plan); err != nil {
		br.Logger.Warn("failed to emit music play plan", "error", err)
	}
}

// planMusicStop builds a spoken
// acknowledgement followed by the stop command, both on the foreground
// layer so the stop always runs even if ambient music is paused.
func (br *Brain) planMusicStop(p *schema.IntentDetectedPayload) {
	source := schema.MusicSource(argString(p.Args, "source"))
	if source == "" {
		source = schema.SourceVoice
	}
	plan := schema.Plan{
		Layer: schema.LayerForeground,
		Steps: []schema.Step{
			{StepID: "ack", Kind: schema.StepSpeak, Text: "Stopping music."},
			{StepID: "stop", Kind: schema.StepPlayMusic, Stop: true, Source: source},
		},
	}
	if err := br.emitPlan(plan); err != nil {
		br.Logger.Warn("failed to emit music stop plan", "error", err)
	}
}
