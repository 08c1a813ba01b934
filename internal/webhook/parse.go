package webhook

import (
	"bytes"
	"encoding/json"
)

// FailedToParse is the error reported when no payload could be recovered.
const FailedToParse = "Failed to parse response"

// Result is the logical outcome of one script call.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`

	// Remote is set when the script itself answered success:false.
	Remote bool `json:"-"`
}

// Parse reconstructs the script payload from a raw response body. It never
// fails: anything unusable degrades to an unsuccessful Result.
func Parse(body []byte) Result {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Result{Error: FailedToParse}
	}
	return ParseEnvelope(env)
}

// ParseEnvelope tries the inline result first, then chunks spread across the
// console logs.
func ParseEnvelope(env Envelope) Result {
	payload, ok := inlinePayload(env.Data.Result)
	if !ok {
		payload, ok = chunkedPayload(env.Data.Logs)
	}
	if !ok {
		return Result{Error: FailedToParse, Message: rawText(env.Error)}
	}
	return fromPayload(payload)
}

var sentinelResults = map[string]bool{
	"[Undefined]": true,
	"null":        true,
	"":            true,
}

func inlinePayload(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		if sentinelResults[s] {
			return nil, false
		}
		return strictJSON(s)
	case '{', '[':
		return strictJSON(string(raw))
	default:
		return nil, false
	}
}

func chunkedPayload(logs []LogEntry) (json.RawMessage, bool) {
	assembler := NewChunkAssembler()
	for _, entry := range logs {
		for _, arg := range entry.StringArgs() {
			assembler.Feed(arg)
		}
	}
	text, ok := assembler.Assemble()
	if !ok {
		return nil, false
	}
	return strictJSON(text)
}

// strictJSON accepts only a complete JSON object or array.
func strictJSON(s string) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	if !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func fromPayload(payload json.RawMessage) Result {
	if payload[0] != '{' {
		return Result{Success: true, Data: payload}
	}

	var head struct {
		Success json.RawMessage `json:"success"`
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return Result{Error: FailedToParse}
	}
	if string(bytes.TrimSpace(head.Success)) == "false" {
		return Result{
			Error:   rawText(head.Error),
			Message: rawText(head.Message),
			Remote:  true,
		}
	}
	return Result{Success: true, Data: payload}
}
