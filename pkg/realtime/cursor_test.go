package realtime

import (
	"encoding/json"
	"testing"
	"time"
)

func cursorAt(userID string, x, y float64, stamp int64) CursorPosition {
	return CursorPosition{
		UserID:    userID,
		UserName:  userID,
		X:         x,
		Y:         y,
		Timestamp: stamp,
	}
}

func TestCursorBroadcaster_TrailingEdgeThrottle(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{Throttle: 40 * time.Millisecond})
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.Broadcast(float64(i), float64(i*2))
	}

	time.Sleep(120 * time.Millisecond)

	sent := sub.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 emission for 10 samples in one window, got %d", len(sent))
	}

	var pos CursorPosition
	if err := json.Unmarshal(sent[0].Data, &pos); err != nil {
		t.Fatalf("decode emission: %v", err)
	}
	if pos.X != 9 || pos.Y != 18 {
		t.Errorf("expected last sample coordinates (9,18), got (%v,%v)", pos.X, pos.Y)
	}
	if pos.UserID != "self" || pos.UserName != "Self" {
		t.Errorf("unexpected identity on emission: %+v", pos)
	}
	if pos.Timestamp == 0 {
		t.Error("expected emission to carry a timestamp")
	}
}

func TestCursorBroadcaster_SeparateWindowsEmitSeparately(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{Throttle: 30 * time.Millisecond})
	defer c.Stop()

	c.Broadcast(1, 1)
	time.Sleep(80 * time.Millisecond)
	c.Broadcast(2, 2)
	time.Sleep(80 * time.Millisecond)

	if got := len(sub.sent()); got != 2 {
		t.Errorf("expected 2 emissions across 2 windows, got %d", got)
	}
}

func TestCursorBroadcaster_ExpiryRemovesStaleCursor(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{TTL: 50 * time.Millisecond})
	defer c.Stop()

	sub.emit(t, EventCursorMove, cursorAt("U", 10, 20, 100))

	if _, ok := c.Cursors()["U"]; !ok {
		t.Fatal("expected cursor for U immediately after update")
	}

	time.Sleep(150 * time.Millisecond)

	if _, ok := c.Cursors()["U"]; ok {
		t.Error("expected cursor for U to expire after the inactivity window")
	}
}

func TestCursorBroadcaster_FreshUpdateSurvivesStaleTimer(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{TTL: 100 * time.Millisecond})
	defer c.Stop()

	sub.emit(t, EventCursorMove, cursorAt("U", 10, 20, 100))
	time.Sleep(50 * time.Millisecond)
	sub.emit(t, EventCursorMove, cursorAt("U", 11, 21, 120))

	// The first update's timer fires around t=100ms; the entry now carries
	// timestamp 120, so the guard must keep it alive.
	time.Sleep(80 * time.Millisecond)
	cur, ok := c.Cursors()["U"]
	if !ok {
		t.Fatal("expected refreshed cursor to survive the first expiry timer")
	}
	if cur.Timestamp != 120 {
		t.Errorf("expected surviving cursor to carry timestamp 120, got %d", cur.Timestamp)
	}

	// The second update's own timer eventually removes it.
	time.Sleep(120 * time.Millisecond)
	if _, ok := c.Cursors()["U"]; ok {
		t.Error("expected cursor to expire after the refreshed window elapsed")
	}
}

func TestCursorBroadcaster_LastWriteWinsByArrival(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{TTL: time.Second})
	defer c.Stop()

	// Out-of-order claimed timestamps: arrival order wins.
	sub.emit(t, EventCursorMove, cursorAt("U", 1, 1, 200))
	sub.emit(t, EventCursorMove, cursorAt("U", 2, 2, 150))

	cur := c.Cursors()["U"]
	if cur.X != 2 || cur.Timestamp != 150 {
		t.Errorf("expected the later arrival to win, got %+v", cur)
	}
}

func TestCursorBroadcaster_IgnoresSelfEcho(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{})
	defer c.Stop()

	sub.emit(t, EventCursorMove, cursorAt("self", 5, 5, 100))

	if got := len(c.Cursors()); got != 0 {
		t.Errorf("expected self events to never enter the cursor map, got %d entries", got)
	}
}

func TestCursorBroadcaster_TriggerFailureIsDropped(t *testing.T) {
	sub := newFakeSubscription(PresenceChannel("p1"))
	sub.triggerErr = ErrNotConnected
	c := BroadcastCursors(sub, "self", "Self", CursorOptions{Throttle: 20 * time.Millisecond})
	defer c.Stop()

	// Must not panic or surface the failure to the caller.
	c.Broadcast(1, 2)
	time.Sleep(60 * time.Millisecond)
}
