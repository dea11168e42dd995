package realtime

import "encoding/json"

// MemberInfo is the public profile attached to a presence member.
type MemberInfo struct {
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	GithubURL *string `json:"githubUrl,omitempty"`
}

// PresenceMember is one entry in a presence channel roster.
type PresenceMember struct {
	ID   string     `json:"id"`
	Info MemberInfo `json:"info"`
}

// ChannelData is the serialized presence payload embedded in an
// authorization grant and presented back to the broker on subscribe.
type ChannelData struct {
	UserID   string     `json:"user_id"`
	UserInfo MemberInfo `json:"user_info"`
}

// CursorPosition is an ephemeral pointer position. It is never persisted;
// the latest position per user wins and stale entries expire client-side.
type CursorPosition struct {
	UserID    string  `json:"userId"`
	UserName  string  `json:"userName"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

// TaskEventEnvelope carries the origin fields the relay stamps onto every
// task mutation notification. The task payload itself stays raw; the durable
// record lives in the board application's store.
type TaskEventEnvelope struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// ParseTaskEvent extracts the envelope fields from a task event payload.
func ParseTaskEvent(data json.RawMessage) (TaskEventEnvelope, error) {
	var env TaskEventEnvelope
	err := json.Unmarshal(data, &env)
	return env, err
}
