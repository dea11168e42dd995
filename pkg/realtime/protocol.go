package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Lifecycle events exchanged between the broker and clients.
const (
	EventConnectionEstablished = "connection_established"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
	EventMemberAdded           = "member_added"
	EventMemberRemoved         = "member_removed"
)

// ClientEventPrefix marks events relayed peer-to-peer through the broker
// without touching application logic.
const ClientEventPrefix = "client-"

// EventCursorMove is the reserved client event for live cursor positions.
const EventCursorMove = "client-cursor-move"

// Server-fired task mutation events.
const (
	EventTaskCreated = "task-created"
	EventTaskUpdated = "task-updated"
	EventTaskDeleted = "task-deleted"
	EventTaskMoved   = "task-moved"
)

// TaskEvents lists every event name the relay accepts.
var TaskEvents = []string{
	EventTaskCreated,
	EventTaskUpdated,
	EventTaskDeleted,
	EventTaskMoved,
}

var ErrInvalidMessage = errors.New("invalid message")

// Message is the JSON frame exchanged over a broker connection.
type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a message with the payload marshaled into the data field.
func NewMessage(event, channel string, payload any) (*Message, error) {
	msg := &Message{
		Event:   event,
		Channel: channel,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Event == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}

// IsClientEvent reports whether event is a peer-to-peer client event.
func IsClientEvent(event string) bool {
	return strings.HasPrefix(event, ClientEventPrefix)
}

// IsTaskEvent reports whether event is one of the reserved task mutation events.
func IsTaskEvent(event string) bool {
	for _, e := range TaskEvents {
		if e == event {
			return true
		}
	}
	return false
}

// ConnectionEstablishedData is the payload of EventConnectionEstablished.
type ConnectionEstablishedData struct {
	SocketID string `json:"socket_id"`
}

// SubscribeData is the payload of EventSubscribe. Auth and ChannelData come
// from the authorization handshake and are required for presence channels.
type SubscribeData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

// UnsubscribeData is the payload of EventUnsubscribe.
type UnsubscribeData struct {
	Channel string `json:"channel"`
}

// SubscriptionSucceededData is the payload of EventSubscriptionSucceeded.
// Members is only populated for presence channels.
type SubscriptionSucceededData struct {
	Members []PresenceMember `json:"members,omitempty"`
}

// SubscriptionErrorData is the payload of EventSubscriptionError.
type SubscriptionErrorData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// MemberRemovedData is the payload of EventMemberRemoved.
type MemberRemovedData struct {
	ID string `json:"id"`
}
