package protocol

import "encoding/json"

// Wire status codes attached to close events.
const (
	CodeLoggedOut          = 401
	CodeTimedOut           = 408
	CodeConnectionClosed   = 428
	CodeConnectionReplaced = 440
	CodeRestartRequired    = 515
)

// Reason classifies why a connection closed.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonLoggedOut
	ReasonConnectionLost
	ReasonRestartRequired
	ReasonTimedOut
)

var reasonNames = map[Reason]string{
	ReasonUnknown:         "unknown",
	ReasonLoggedOut:       "logged_out",
	ReasonConnectionLost:  "connection_lost",
	ReasonRestartRequired: "restart_required",
	ReasonTimedOut:        "timed_out",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

func (r Reason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// ClassifyClose maps a wire status code to a Reason. Unmapped codes
// classify as ReasonUnknown, which callers treat as transient: only an
// explicit logout may suppress reconnection.
func ClassifyClose(code int) Reason {
	switch code {
	case CodeLoggedOut:
		return ReasonLoggedOut
	case CodeTimedOut:
		return ReasonTimedOut
	case CodeConnectionClosed, CodeConnectionReplaced:
		return ReasonConnectionLost
	case CodeRestartRequired:
		return ReasonRestartRequired
	default:
		return ReasonUnknown
	}
}
