// Package dispatcher implements the Command Dispatcher: it
// parses textual commands from the CLI and the web bridge's simple command
// channel into structured bus events, routing them to the owning service's
// target topic with the originating source and request_id attached. The
// handler's CLI_RESPONSE carries that source and reaches the CLI reader
// and the web bridge as an ordinary bus broadcast; the dispatcher does not
// re-emit it.
package dispatcher

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cantina-os/core/bus"
	"github.com/cantina-os/core/service"
)

// Kind selects which of the closed set of target-specific payload
// transforms a registration uses.
type Kind string

const (
	// KindGeneric passes {command, subcommand, args, raw_input, source}
	// through unshaped.
	KindGeneric Kind = "generic"
	// KindDJ applies the "dj start/stop/next" transform.
	KindDJ Kind = "dj"
	// KindMusic applies the "play music <query>" transform.
	KindMusic Kind = "music"
)

// Registration is a single (pattern, owning service, target topic, shape)
// entry.
type Registration struct {
	Pattern       string
	TargetService string
	TargetTopic   bus.Topic
	Kind          Kind
}

// Dispatcher parses CLI_COMMAND payloads and routes them to their
// registered target topic, then tracks each request_id until the
// handler's CLI_RESPONSE for it arrives.
type Dispatcher struct {
	*service.Base

	mu      sync.RWMutex
	oneWord map[string]Registration
	twoWord map[string]Registration
	byTopic map[bus.Topic]bool // command-topic uniqueness guard
	pending map[string]string  // request_id -> source
}

// New constructs a Dispatcher.
func New(b *bus.Bus) *Dispatcher {
	d := &Dispatcher{
		oneWord: make(map[string]Registration),
		twoWord: make(map[string]Registration),
		byTopic: make(map[bus.Topic]bool),
		pending: make(map[string]string),
	}
	d.Base = service.NewBase("dispatcher", b, nil)
	return d
}

// Register adds pattern (one or two whitespace-separated words) to the
// registry. Registering a second pattern bound to a target topic
// already claimed by another registration is rejected, exactly one
// handler being permitted per command topic, as is re-using an identical
// pattern string.
func (d *Dispatcher) Register(reg Registration) error {
	words := strings.Fields(reg.Pattern)
	if len(words) == 0 || len(words) > 2 {
		return fmt.Errorf("dispatcher: pattern %q must be one or two words", reg.Pattern)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.byTopic[reg.TargetTopic] {
		return &bus.ConfigurationError{Reason: fmt.Sprintf("target topic %q already has a registered command handler", reg.TargetTopic)}
	}

	key := strings.ToLower(reg.Pattern)
	if len(words) == 2 {
		if _, exists := d.twoWord[key]; exists {
			return &bus.ConfigurationError{Reason: fmt.Sprintf("pattern %q already registered", reg.Pattern)}
		}
		d.twoWord[key] = reg
	} else {
		if _, exists := d.oneWord[key]; exists {
			return &bus.ConfigurationError{Reason: fmt.Sprintf("pattern %q already registered", reg.Pattern)}
		}
		d.oneWord[key] = reg
	}
	d.byTopic[reg.TargetTopic] = true
	return nil
}

