package gateway

import (
	"encoding/json"
)

// Method names the two remote operations a lock state exposes,
// modeled as a closed tagged variant instead of the original's
// attribute-access dispatch (spec.md §9 "Dynamic method dispatch on
// the wire").
type Method string

const (
	MethodRequestToken Method = "request_token"
	MethodObtainToken  Method = "obtain_token"
)

// RequestFrame is one newline-terminated request, decoded off a
// fresh connection per call (spec.md §6).
type RequestFrame struct {
	Method  Method          `json:"method"`
	Args    json.RawMessage `json:"args"`
	Version string          `json:"version,omitempty"`
}

// ResponseFrame is either a successful result or a structured error,
// never both. This is the static redesign of the original's
// dynamically-synthesized exception classes (spec.md §9).
type ResponseFrame struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorFrame     `json:"error,omitempty"`
}

// ErrorFrame carries a stable error kind plus free-form detail, so a
// transport error and a domain error both survive the JSON
// round-trip without needing a dynamic exception type.
type ErrorFrame struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// TransportError is raised by the outbound Client whenever a remote
// call cannot be completed: connection refused, reset, a malformed
// frame, or an explicit error frame from the peer. Every transport
// error is the single kind the Failure Reaper reacts to (spec.md
// §4.4, §7).
type TransportError struct {
	Peer   string
	Detail string
}

func (e *TransportError) Error() string {
	return "transport error talking to " + e.Peer + ": " + e.Detail
}
