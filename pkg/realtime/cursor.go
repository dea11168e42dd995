package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"kanban-realtime/pkg/log"
)

// Cursor timing defaults. Sends are throttled trailing-edge; received
// cursors expire after a fixed inactivity window.
const (
	DefaultCursorThrottle = 50 * time.Millisecond
	DefaultCursorTTL      = 4 * time.Second
)

// CursorBroadcaster exchanges ephemeral pointer positions over a presence
// channel using client events. Nothing here is persisted, retried, or
// guaranteed delivered: a dropped event leaves a cursor stale until the next
// sample arrives or the entry expires.
type CursorBroadcaster struct {
	sub      Subscription
	selfID   string
	selfName string
	throttle time.Duration
	ttl      time.Duration
	logger   log.Logger

	mu       sync.Mutex
	cursors  map[string]CursorPosition
	pending  *CursorPosition
	armed    bool
	stopped  bool
}

// CursorOptions tunes the broadcaster's timing. Zero values use the defaults.
type CursorOptions struct {
	Throttle time.Duration
	TTL      time.Duration
	Logger   log.Logger
}

// BroadcastCursors binds the cursor exchange onto an existing presence
// subscription.
func BroadcastCursors(sub Subscription, selfID, selfName string, opts CursorOptions) *CursorBroadcaster {
	if opts.Throttle == 0 {
		opts.Throttle = DefaultCursorThrottle
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultCursorTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}

	c := &CursorBroadcaster{
		sub:      sub,
		selfID:   selfID,
		selfName: selfName,
		throttle: opts.Throttle,
		ttl:      opts.TTL,
		logger:   opts.Logger,
		cursors:  make(map[string]CursorPosition),
	}

	sub.Bind(EventCursorMove, c.handleCursorMove)
	return c
}

// Broadcast samples the local pointer position. Samples are throttled
// trailing-edge: at most one emission per throttle window, carrying the most
// recent position seen within it.
func (c *CursorBroadcaster) Broadcast(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.pending = &CursorPosition{
		UserID:   c.selfID,
		UserName: c.selfName,
		X:        x,
		Y:        y,
	}

	if c.armed {
		return
	}
	c.armed = true
	time.AfterFunc(c.throttle, c.flush)
}

// Cursors returns a snapshot of the remote cursors currently known.
func (c *CursorBroadcaster) Cursors() map[string]CursorPosition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CursorPosition, len(c.cursors))
	for id, pos := range c.cursors {
		out[id] = pos
	}
	return out
}

// Stop unbinds the receive path and drops all cursor state.
func (c *CursorBroadcaster) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.pending = nil
	c.cursors = make(map[string]CursorPosition)
	c.mu.Unlock()

	c.sub.Unbind(EventCursorMove)
}

// flush emits the most recent pending sample. Send failures (e.g. the
// channel is not ready yet) are logged and dropped; they must never reach
// the caller's input path.
func (c *CursorBroadcaster) flush() {
	c.mu.Lock()
	pos := c.pending
	c.pending = nil
	c.armed = false
	stopped := c.stopped
	c.mu.Unlock()

	if pos == nil || stopped {
		return
	}

	pos.Timestamp = time.Now().UnixMilli()
	if err := c.sub.Trigger(EventCursorMove, pos); err != nil {
		c.logger.Debugf(context.Background(), "cursor broadcast dropped: %v", err)
	}
}

// handleCursorMove upserts a remote cursor (last write wins by arrival) and
// schedules its expiry. The expiry only fires if no fresher update replaced
// the stored timestamp in the meantime, so a late timer can never delete a
// cursor that was just refreshed.
func (c *CursorBroadcaster) handleCursorMove(data json.RawMessage) {
	var pos CursorPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		c.logger.Warnf(context.Background(), "malformed cursor event: %v", err)
		return
	}

	// Never apply the local user's own echo.
	if pos.UserID == c.selfID {
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.cursors[pos.UserID] = pos
	c.mu.Unlock()

	userID, stamp := pos.UserID, pos.Timestamp
	time.AfterFunc(c.ttl, func() {
		c.expire(userID, stamp)
	})
}

func (c *CursorBroadcaster) expire(userID string, stamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.cursors[userID]; ok && cur.Timestamp == stamp {
		delete(c.cursors, userID)
	}
}
