package protocol

import (
	"context"
	"encoding/json"
	"time"
)

// Dialer produces live protocol connections. Each implementation knows how
// to establish one authenticated (or authenticating) link to the messaging
// network given whatever credential material has been persisted so far.
//
// Dial must return quickly with a handle that completes its handshake in
// the background, reporting progress on the events channel. The caller owns
// the returned Client and is the only component allowed to close it.
type Dialer interface {
	// Dial opens a new connection attempt. creds is the previously
	// persisted credential blob, or nil for a fresh, unregistered
	// session. Every event the connection produces is tagged with the
	// returned Client so consumers can discard events from handles they
	// have since replaced.
	Dial(ctx context.Context, creds json.RawMessage, events chan<- Event) (Client, error)
}

// Client is one live connection handle.
type Client interface {
	// Registered reports whether the underlying credentials have
	// completed pairing before. Pairing codes can only be requested on
	// an unregistered connection.
	Registered() bool

	// RequestPairingCode asks the network for a pairing code bound to
	// the given E.164 phone number. Returns the raw, unformatted code.
	RequestPairingCode(ctx context.Context, phone string) (string, error)

	// Logout terminates the session on the network side, invalidating
	// the stored credentials, then closes the transport.
	Logout(ctx context.Context) error

	// Close tears down the transport without logging out, leaving the
	// credentials valid for a later reconnect.
	Close() error
}

// EventKind discriminates connection events.
type EventKind int

const (
	// EventQR carries a fresh QR payload to display for scanning.
	EventQR EventKind = iota
	// EventOpen signals the handshake completed; User is set.
	EventOpen
	// EventClosed signals the connection ended; Code carries the
	// wire status code for classification.
	EventClosed
	// EventCreds signals updated credential material to persist.
	EventCreds
	// EventMessage carries an inbound message's metadata.
	EventMessage
)

// Event is one occurrence on a connection's lifecycle stream. Client always
// identifies the handle that produced it.
type Event struct {
	Client Client
	Kind   EventKind

	QR      string          // EventQR
	User    *UserIdentity   // EventOpen
	Code    int             // EventClosed
	Creds   json.RawMessage // EventCreds
	Message *Message        // EventMessage
}

// UserIdentity describes the authenticated account.
type UserIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Message is the metadata of one inbound message. Content handling beyond
// forwarding these fields is not this service's business.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
