package webbridge

import "encoding/json"

// errorFrame is sent directly to a single client, outside the broadcast
// envelope, in response to a frame that failed decoding, validation, or
// rate limiting.
type errorFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// validationErrorFrame mirrors schema.ValidationError's field-level shape
// so a single client-side handler can render both bus-boundary and
// socket-boundary rejections.
type validationErrorFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Field   string `json:"field"`
	Tag     string `json:"tag"`
}

func (br *Bridge) sendError(cl *client, requestID, code, message string) {
	raw, err := json.Marshal(errorFrame{
		Type:      "error",
		RequestID: requestID,
		Code:      code,
		Message:   message,
	})
	if err != nil {
		br.Logger.Warn("failed to marshal error frame", "error", err)
		return
	}
	cl.enqueue(raw)
}

func (br *Bridge) sendValidationError(cl *client, channel, field, tag string) {
	raw, err := json.Marshal(validationErrorFrame{
		Type:    "validation_error",
		Channel: channel,
		Field:   field,
		Tag:     tag,
	})
	if err != nil {
		br.Logger.Warn("failed to marshal validation error frame", "error", err)
		return
	}
	cl.enqueue(raw)
}
