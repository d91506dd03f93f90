package bus

import "fmt"

// PublishValidationError is returned by Emit when a payload fails schema
// validation for its topic. Schema lookup and validation are the bus's
// responsibility so every subscriber may assume well-formed input.
type PublishValidationError struct {
	Topic   Topic
	Reason  string
	Details []string
}

func (e *PublishValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("publish validation failed for topic %q: %s", e.Topic, e.Reason)
	}
	return fmt.Sprintf("publish validation failed for topic %q: %s (%v)", e.Topic, e.Reason, e.Details)
}

// ConfigurationError signals a design-time misuse of the bus or a
// component built on it (e.g. a duplicate command-topic registration
// surfaced through the dispatcher).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
