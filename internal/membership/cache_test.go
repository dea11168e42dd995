package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"kanban-realtime/pkg/log"
)

// countingStore counts delegate lookups
type countingStore struct {
	members map[string]bool // userID:projectID -> member
	lookups int
	err     error
}

func (s *countingStore) IsMember(ctx context.Context, userID, projectID string) (bool, error) {
	s.lookups++
	if s.err != nil {
		return false, s.err
	}
	return s.members[userID+":"+projectID], nil
}

func (s *countingStore) Member(ctx context.Context, userID, projectID string) (Member, error) {
	s.lookups++
	if s.err != nil {
		return Member{}, s.err
	}
	if !s.members[userID+":"+projectID] {
		return Member{}, ErrNotMember
	}
	return Member{ID: userID, Email: userID + "@example.com", Name: userID}, nil
}

func TestCachedStore_CachesPositiveLookups(t *testing.T) {
	delegate := &countingStore{members: map[string]bool{"u1:p1": true}}
	cs := NewCachedStore(delegate, time.Minute, log.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := cs.IsMember(ctx, "u1", "p1")
		if err != nil || !ok {
			t.Fatalf("IsMember: ok=%v err=%v", ok, err)
		}
	}

	if delegate.lookups != 1 {
		t.Errorf("expected 1 delegate lookup, got %d", delegate.lookups)
	}

	hits, misses, size := cs.GetCacheStats()
	if hits != 4 || misses != 1 || size != 1 {
		t.Errorf("unexpected cache stats: hits=%d misses=%d size=%d", hits, misses, size)
	}
}

func TestCachedStore_CachesNegativeLookups(t *testing.T) {
	delegate := &countingStore{members: map[string]bool{}}
	cs := NewCachedStore(delegate, time.Minute, log.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := cs.Member(ctx, "outsider", "p1"); !errors.Is(err, ErrNotMember) {
			t.Fatalf("expected ErrNotMember, got %v", err)
		}
	}

	if delegate.lookups != 1 {
		t.Errorf("a denied membership must be cached too, got %d lookups", delegate.lookups)
	}
}

func TestCachedStore_ExpiredEntriesRefresh(t *testing.T) {
	delegate := &countingStore{members: map[string]bool{"u1:p1": true}}
	cs := NewCachedStore(delegate, 20*time.Millisecond, log.NewNop())
	ctx := context.Background()

	if _, err := cs.Member(ctx, "u1", "p1"); err != nil {
		t.Fatalf("Member: %v", err)
	}

	// Revoke membership; the cache still answers until the entry expires.
	delegate.members["u1:p1"] = false
	if _, err := cs.Member(ctx, "u1", "p1"); err != nil {
		t.Fatalf("expected cached membership to answer, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := cs.Member(ctx, "u1", "p1"); !errors.Is(err, ErrNotMember) {
		t.Errorf("expected the revocation to surface after expiry, got %v", err)
	}
}

func TestCachedStore_DelegateErrorsAreNotCached(t *testing.T) {
	delegate := &countingStore{err: errors.New("connection refused")}
	cs := NewCachedStore(delegate, time.Minute, log.NewNop())
	ctx := context.Background()

	if _, err := cs.IsMember(ctx, "u1", "p1"); err == nil {
		t.Fatal("expected the delegate error to propagate")
	}

	delegate.err = nil
	delegate.members = map[string]bool{"u1:p1": true}
	ok, err := cs.IsMember(ctx, "u1", "p1")
	if err != nil || !ok {
		t.Errorf("expected a fresh lookup once the delegate recovers, got ok=%v err=%v", ok, err)
	}
}

func TestCachedStore_Invalidation(t *testing.T) {
	delegate := &countingStore{members: map[string]bool{"u1:p1": true, "u1:p2": true, "u2:p1": true}}
	cs := NewCachedStore(delegate, time.Minute, log.NewNop())
	ctx := context.Background()

	for _, pair := range [][2]string{{"u1", "p1"}, {"u1", "p2"}, {"u2", "p1"}} {
		if _, err := cs.Member(ctx, pair[0], pair[1]); err != nil {
			t.Fatalf("warm cache: %v", err)
		}
	}

	t.Run("by user", func(t *testing.T) {
		cs.InvalidateUser("u1")
		_, _, size := cs.GetCacheStats()
		if size != 1 {
			t.Errorf("expected only u2's entry to survive, got %d entries", size)
		}
	})

	t.Run("by project", func(t *testing.T) {
		cs.InvalidateProject("p1")
		_, _, size := cs.GetCacheStats()
		if size != 0 {
			t.Errorf("expected no entries to survive, got %d", size)
		}
	})
}
