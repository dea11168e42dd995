package membership

import (
	"context"

	"kanban-realtime/pkg/log"
)

// PermissiveStore allows every user into every project. It exists so the
// service can run without a board database in local development; never
// deploy it to production.
type PermissiveStore struct {
	logger log.Logger
}

// NewPermissiveStore creates a permissive membership store.
func NewPermissiveStore(logger log.Logger) *PermissiveStore {
	logger.Warn(context.Background(), "Using permissive membership store: all users are members of all projects")
	return &PermissiveStore{logger: logger}
}

func (s *PermissiveStore) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	s.logger.Debugf(ctx, "Permissive membership: allowing user %s into project %s", userID, projectID)
	return true, nil
}

func (s *PermissiveStore) Member(ctx context.Context, userID, projectID string) (Member, error) {
	return Member{
		ID:    userID,
		Email: userID + "@localhost",
		Name:  userID,
	}, nil
}
