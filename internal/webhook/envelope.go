package webhook

import (
	"bytes"
	"encoding/json"
)

// Envelope is the body returned by the script execution endpoint. Metadata
// members stay raw so their type never decides whether a body parses.
type Envelope struct {
	Data   EnvelopeData    `json:"data"`
	Error  json.RawMessage `json:"error,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`
}

type EnvelopeData struct {
	Result json.RawMessage `json:"result,omitempty"`
	Logs   []LogEntry      `json:"logs,omitempty"`
}

// LogEntry is one console call made by the script. Args keeps each argument
// raw because scripts may log non-string values.
type LogEntry struct {
	Args     []json.RawMessage `json:"args"`
	Level    json.RawMessage   `json:"level,omitempty"`
	Filename json.RawMessage   `json:"filename,omitempty"`
}

// StringArgs returns the string arguments of the entry in order, skipping
// everything else.
func (l LogEntry) StringArgs() []string {
	out := make([]string, 0, len(l.Args))
	for _, raw := range l.Args {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '"' {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// requestBody builds the argv the script receives. Params never override the
// action name.
func requestBody(action string, params map[string]any, flat bool) map[string]any {
	argv := make(map[string]any, len(params)+1)
	for k, v := range params {
		if k == "action" {
			continue
		}
		argv[k] = v
	}
	argv["action"] = action

	if flat {
		return argv
	}
	return map[string]any{
		"Context": map[string]any{"argv": argv},
	}
}

// rawText renders a raw JSON member as text: strings unquoted, null as empty,
// anything else as compact JSON.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
