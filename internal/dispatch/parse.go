package dispatch

import (
	"encoding/json"
	"log/slog"
	"strings"
)

const (
	openDelim  = "<call>"
	closeDelim = "</call>"
)

// extractPayload isolates the payload of the first complete call block in
// text. Delimiters are matched case-insensitively; the closing delimiter is
// the nearest one after the opener, so trailing prose and further blocks
// are ignored.
func extractPayload(text string) (string, bool) {
	lower := strings.ToLower(text)
	start := strings.Index(lower, openDelim)
	if start < 0 {
		return "", false
	}
	rest := start + len(openDelim)
	end := strings.Index(lower[rest:], closeDelim)
	if end < 0 {
		return "", false
	}
	return text[rest : rest+end], true
}

// ParseCall extracts a tool call from the model's reply text.
//
// It returns (nil, false) when the text contains no call block, and also
// when a block is present but its payload is not a valid call. A malformed
// payload is logged and treated exactly like "no call": the conversation
// driver reacts with its forced-retry reminder instead of surfacing a
// dispatch error, since the fault is presumed to be model phrasing.
func ParseCall(text string) (*Call, bool) {
	raw, ok := extractPayload(text)
	if !ok {
		return nil, false
	}

	var call Call
	if err := json.Unmarshal([]byte(raw), &call); err != nil {
		slog.Warn("dispatch: discarding malformed call payload", "err", err, "raw", raw)
		return nil, false
	}
	if call.Fn == "" {
		slog.Warn("dispatch: discarding call payload without fn", "raw", raw)
		return nil, false
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return &call, true
}
