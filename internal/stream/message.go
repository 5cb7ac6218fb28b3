package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"ispeak/internal/pipeline"
	"ispeak/internal/services"
)

// StatusMessage is one validated status event.
type StatusMessage struct {
	Status  pipeline.Token  `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Update converts the message for the pipeline state machine.
func (m StatusMessage) Update() pipeline.Update {
	return pipeline.Update{Status: m.Status, Message: m.Message, Result: m.Result}
}

// Terminal reports whether the message ends the job.
func (m StatusMessage) Terminal() bool {
	return m.Status.Terminal()
}

type wireMessage struct {
	Status  *string         `json:"status"`
	Message *string         `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// ParseMessage decodes and validates one data payload. Failures are
// validation errors carrying the offending field. The result object is kept
// as raw JSON.
func ParseMessage(data []byte) (StatusMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return StatusMessage{}, services.New(services.CodeValidation, "Validation error: malformed status message", err)
	}
	fields := map[string]string{}
	if wire.Status == nil {
		fields["status"] = "Required"
	} else if !pipeline.Token(*wire.Status).Known() {
		fields["status"] = fmt.Sprintf("Unknown status %q", *wire.Status)
	}
	if wire.Message == nil {
		fields["message"] = "Required"
	}
	if len(wire.Result) > 0 {
		var result map[string]json.RawMessage
		if bytes.Equal(bytes.TrimSpace(wire.Result), []byte("null")) {
			fields["result"] = "Expected object, received null"
		} else if err := json.Unmarshal(wire.Result, &result); err != nil {
			fields["result"] = "Expected object"
		}
	}
	if len(fields) > 0 {
		return StatusMessage{}, services.Validation("Validation error: invalid status message", fields)
	}
	msg := StatusMessage{Status: pipeline.Token(*wire.Status), Message: *wire.Message}
	if len(wire.Result) > 0 {
		msg.Result = append(json.RawMessage(nil), wire.Result...)
	}
	return msg, nil
}
