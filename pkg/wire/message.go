// Package wire defines the message envelope exchanged over websocket
// connections. The envelope carries an opaque payload; senders populate
// it, the presence core never inspects it.
package wire

import (
	"encoding/json"
	"time"
)

// Type discriminates websocket messages.
type Type string

const (
	TypeUserOnline         Type = "user_online"
	TypeUserOffline        Type = "user_offline"
	TypeAdminNotification  Type = "admin_notification"
	TypeSystemNotification Type = "system_notification"
	TypeError              Type = "error"
	TypePing               Type = "ping"
	TypePong               Type = "pong"
)

// Envelope is the wire shape of every message: a type, a payload and an
// ISO-8601 timestamp.
type Envelope struct {
	Type      Type   `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// New builds an envelope stamped with the current time.
func New(t Type, data any) Envelope {
	return Envelope{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Encode marshals the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// PresencePayload is the data of user_online / user_offline events. The
// display name arrives pre-composed with the resolved region.
type PresencePayload struct {
	UserID           string `json:"user_id,omitempty"`
	Username         string `json:"username"`
	OriginalUsername string `json:"original_username"`
	IPLocation       string `json:"ip_location"`
	Avatar           string `json:"avatar,omitempty"`
	IsAdmin          bool   `json:"is_admin"`
	IsAnonymous      bool   `json:"is_anonymous"`
}

// AdminNotificationPayload is an operator-authored notice.
type AdminNotificationPayload struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Level     string `json:"level"`
	AdminID   string `json:"admin_id"`
	AdminName string `json:"admin_name"`
}

// SystemPayload carries server-generated notices such as the welcome
// message sent right after a connection is accepted.
type SystemPayload struct {
	Message     string `json:"message"`
	ClientID    string `json:"client_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	IPAddress   string `json:"ip_address,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// ErrorPayload reports a malformed or unauthorized client message.
type ErrorPayload struct {
	Message      string `json:"message"`
	ReceivedType string `json:"received_type,omitempty"`
}
