package session

import (
	"encoding/json"

	"github.com/wabridge/backend/internal/protocol"
)

// Status is the connection lifecycle state of the session.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
)

var statusNames = map[Status]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
}

var statusFromName = map[string]Status{
	"disconnected": Disconnected,
	"connecting":   Connecting,
	"connected":    Connected,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// Snapshot is a point-in-time copy of the session state, safe to retain
// and serialize outside the manager.
type Snapshot struct {
	Status      Status                 `json:"status"`
	QR          string                 `json:"qr,omitempty"`
	PairingCode string                 `json:"code,omitempty"`
	User        *protocol.UserIdentity `json:"user,omitempty"`
}

// Connected reports whether the snapshot shows an authenticated session.
func (s Snapshot) Connected() bool {
	return s.Status == Connected
}
