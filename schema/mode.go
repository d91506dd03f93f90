package schema

import "github.com/cantina-os/core/bus"

// SystemSetModePayload requests a global mode transition.
type SystemSetModePayload struct {
	bus.Base
	Mode Mode `json:"mode"`
}

// SystemModeChangePayload is the sticky broadcast of a completed mode
// transition.
type SystemModeChangePayload struct {
	bus.Base
	Mode     Mode `json:"mode"`
	Previous Mode `json:"previous"`
}

// ModeTransitionStartedPayload is emitted before subscribers react to a
// mode change, giving services a chance to prepare.
type ModeTransitionStartedPayload struct {
	bus.Base
	From Mode `json:"from"`
	To   Mode `json:"to"`
}

// ModeTransitionCompletePayload closes out a mode transition.
type ModeTransitionCompletePayload struct {
	bus.Base
	To Mode `json:"to"`
}
