package realtime

import (
	"errors"
	"regexp"
	"strings"
)

// Channel naming convention shared by the server and all clients.
const (
	PresenceChannelPrefix  = "presence-project-"
	BroadcastChannelPrefix = "project-"
)

// Project ID constraints for channel names
const (
	MinProjectIDLength = 1
	MaxProjectIDLength = 50
)

// ErrInvalidChannel is returned for channel names that do not match the
// naming convention. Malformed names are rejected outright, never partially
// matched.
var ErrInvalidChannel = errors.New("invalid channel name")

// projectIDPattern matches valid project IDs: alphanumeric, underscore, and hyphen
var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// PresenceChannel returns the presence channel name for a project.
func PresenceChannel(projectID string) string {
	return PresenceChannelPrefix + projectID
}

// BroadcastChannel returns the broadcast channel name for a project.
func BroadcastChannel(projectID string) string {
	return BroadcastChannelPrefix + projectID
}

// ParsePresenceChannel extracts the project ID from a presence channel name.
func ParsePresenceChannel(name string) (string, error) {
	if !strings.HasPrefix(name, PresenceChannelPrefix) {
		return "", ErrInvalidChannel
	}
	projectID := name[len(PresenceChannelPrefix):]
	if !validProjectID(projectID) {
		return "", ErrInvalidChannel
	}
	return projectID, nil
}

// ParseBroadcastChannel extracts the project ID from a broadcast channel name.
// Presence channel names are not valid broadcast channel names.
func ParseBroadcastChannel(name string) (string, error) {
	if !strings.HasPrefix(name, BroadcastChannelPrefix) {
		return "", ErrInvalidChannel
	}
	projectID := name[len(BroadcastChannelPrefix):]
	if !validProjectID(projectID) {
		return "", ErrInvalidChannel
	}
	return projectID, nil
}

// IsPresenceChannel reports whether name follows the presence channel convention.
func IsPresenceChannel(name string) bool {
	_, err := ParsePresenceChannel(name)
	return err == nil
}

func validProjectID(id string) bool {
	if len(id) < MinProjectIDLength || len(id) > MaxProjectIDLength {
		return false
	}
	return projectIDPattern.MatchString(id)
}
