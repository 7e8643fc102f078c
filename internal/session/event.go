package session

import "github.com/wabridge/backend/internal/protocol"

// EventType classifies normalized session events.
type EventType int

const (
	EventStatus      EventType = iota // lifecycle state changed
	EventQR                           // fresh QR payload to display
	EventPairingCode                  // formatted pairing code issued
	EventMessage                      // inbound message metadata
)

// Event is one normalized session event as delivered to observers.
// Exactly the fields for its Type are set.
type Event struct {
	Type EventType

	Status Status                 // EventStatus
	Reason string                 // EventStatus: close classification, "" if none
	User   *protocol.UserIdentity // EventStatus when connected

	QR      string            // EventQR
	Code    string            // EventPairingCode
	Message *protocol.Message // EventMessage
}

// Sink receives normalized session events for fan-out. Publish must not
// block: delivery is best-effort and the manager's loop will not wait on
// slow observers.
type Sink interface {
	Publish(Event)
}
