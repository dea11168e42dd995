package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"kanban-realtime/pkg/log"
)

// PostgresStore reads project membership from the board application's
// relational store. This subsystem only ever reads; the board owns writes.
type PostgresStore struct {
	db     *sql.DB
	logger log.Logger
}

// NewPostgresStore opens a connection pool against the board database.
func NewPostgresStore(url string, logger log.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromDB wraps an existing pool. Used by tests.
func NewPostgresStoreFromDB(db *sql.DB, logger log.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM project_members
			WHERE project_id = $1 AND user_id = $2
		)
	`
	var isMember bool
	if err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(&isMember); err != nil {
		s.logger.Errorf(ctx, "internal.membership.postgres.IsMember: %v", err)
		return false, fmt.Errorf("membership lookup: %w", err)
	}
	return isMember, nil
}

func (s *PostgresStore) Member(ctx context.Context, userID, projectID string) (Member, error) {
	const query = `
		SELECT u.id, u.email, COALESCE(u.name, ''), u.github_url
		FROM users u
		JOIN project_members pm ON pm.user_id = u.id
		WHERE pm.project_id = $1 AND u.id = $2
	`
	var m Member
	err := s.db.QueryRowContext(ctx, query, projectID, userID).
		Scan(&m.ID, &m.Email, &m.Name, &m.GithubURL)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, ErrNotMember
	}
	if err != nil {
		s.logger.Errorf(ctx, "internal.membership.postgres.Member: %v", err)
		return Member{}, fmt.Errorf("member lookup: %w", err)
	}
	return m, nil
}
