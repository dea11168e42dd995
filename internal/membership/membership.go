package membership

import (
	"context"
	"errors"
	"strings"
)

// ErrNotMember is returned when a user does not belong to a project or the
// project does not exist. The two cases are deliberately indistinguishable
// so that probing the API cannot reveal which projects exist.
var ErrNotMember = errors.New("project not found or user is not a member")

// Member is the minimal identity payload attached to presence.
type Member struct {
	ID        string
	Email     string
	Name      string
	GithubURL *string
}

// DisplayName returns the member's name, falling back to the local part of
// the email address.
func (m Member) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if at := strings.Index(m.Email, "@"); at > 0 {
		return m.Email[:at]
	}
	return m.Email
}

// Store answers whether a user may join a project's collaboration space and
// supplies the identity payload to attach to presence. Implementations must
// be safe for concurrent use.
type Store interface {
	// IsMember reports whether userID belongs to projectID.
	IsMember(ctx context.Context, userID, projectID string) (bool, error)

	// Member returns the member's public profile for a project, or
	// ErrNotMember.
	Member(ctx context.Context, userID, projectID string) (Member, error)
}
