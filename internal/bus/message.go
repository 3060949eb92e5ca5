package bus

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Value is the structured JSON value model design note §9 calls for:
// "use a JSON value model with structured encoding; never concatenate
// correlId into output without escaping." Callers build a map and hand it
// to Marshal rather than assembling JSON strings by hand.
type Value map[string]any

// NewMsgID returns a fresh, lowercased RFC-4122 UUID (spec §6: "fresh
// RFC-4122 UUID, lowercased").
func NewMsgID() string {
	return strings.ToLower(uuid.NewString())
}

// Response builds the outbound envelope common to every reply: a fresh
// msgId and the echoed correlId (spec §3 Command Invocation).
func Response(correlID string, fields Value) Value {
	v := Value{"msgId": NewMsgID(), "correlId": correlID}
	for k, val := range fields {
		v[k] = val
	}
	return v
}

// OK builds the success envelope `result:"ok"` (spec §7).
func OK(correlID string) Value {
	return Response(correlID, Value{"result": "ok"})
}

// Error builds an `error:` envelope (spec §7 kinds a-c).
func Error(correlID, message string) Value {
	return Response(correlID, Value{"error": message})
}

// SSPError builds an `sspError:` envelope for any other non-OK SSP status
// (spec §7 kind e).
func SSPError(correlID, phrase string) Value {
	return Response(correlID, Value{"sspError": phrase})
}

// ParseError builds the malformed-JSON envelope, which has no correlId
// (spec §7: "no correlId is available in that case").
func ParseError(reason string, line int) Value {
	return Value{"error": "could not parse json", "reason": reason, "line": line}
}

// Marshal encodes a Value as JSON bytes.
func (v Value) Marshal() ([]byte, error) {
	return json.Marshal(map[string]any(v))
}
