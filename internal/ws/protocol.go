package ws

import (
	"github.com/wabridge/backend/internal/protocol"
	"github.com/wabridge/backend/internal/session"
)

type MessageType string

const (
	MsgStatusUpdate MessageType = "status-update"
	MsgQRCode       MessageType = "qr-code"
	MsgPairingCode  MessageType = "pairing-code"
	MsgNewMessage   MessageType = "new-message"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusPayload struct {
	Status session.Status         `json:"status"`
	User   *protocol.UserIdentity `json:"user,omitempty"`
	Reason string                 `json:"reason,omitempty"`
}

// messageFor translates a normalized session event into its wire message.
func messageFor(ev session.Event) (WSMessage, bool) {
	switch ev.Type {
	case session.EventStatus:
		return WSMessage{Type: MsgStatusUpdate, Payload: StatusPayload{
			Status: ev.Status,
			User:   ev.User,
			Reason: ev.Reason,
		}}, true
	case session.EventQR:
		return WSMessage{Type: MsgQRCode, Payload: ev.QR}, true
	case session.EventPairingCode:
		return WSMessage{Type: MsgPairingCode, Payload: ev.Code}, true
	case session.EventMessage:
		return WSMessage{Type: MsgNewMessage, Payload: ev.Message}, true
	}
	return WSMessage{}, false
}
