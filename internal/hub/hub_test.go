package hub

import (
	"encoding/json"
	"testing"
	"time"

	"kanban-realtime/internal/auth"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

func newTestHub(signer *auth.Signer) *Hub {
	if signer == nil {
		signer = auth.NewSigner("", "")
	}
	return NewHub(signer, log.NewNop(), 64)
}

func newTestConn(h *Hub) *Connection {
	c := NewConnection(h, nil, time.Minute, time.Minute, time.Second, 4096, log.NewNop())
	h.registerConnection(c)
	return c
}

func readFrame(t *testing.T, c *Connection) *realtime.Message {
	t.Helper()
	select {
	case data := <-c.send:
		msg, err := realtime.FromJSON(data)
		if err != nil {
			t.Fatalf("malformed frame enqueued: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a frame, send buffer is empty")
	}
	return nil
}

func assertNoFrame(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame enqueued: %s", data)
	default:
	}
}

func drainFrames(c *Connection) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func subscribePresence(t *testing.T, h *Hub, c *Connection, signer *auth.Signer, projectID, userID string) {
	t.Helper()
	channel := realtime.PresenceChannel(projectID)
	cd, err := json.Marshal(realtime.ChannelData{
		UserID:   userID,
		UserInfo: realtime.MemberInfo{Email: userID + "@example.com", Name: userID},
	})
	if err != nil {
		t.Fatalf("marshal channel data: %v", err)
	}
	grant := signer.Sign(c.socketID, channel, string(cd))
	h.Subscribe(c, realtime.SubscribeData{
		Channel:     channel,
		Auth:        grant.Auth,
		ChannelData: grant.ChannelData,
	})
}

func decodeRoster(t *testing.T, msg *realtime.Message) []string {
	t.Helper()
	if msg.Event != realtime.EventSubscriptionSucceeded {
		t.Fatalf("expected subscription_succeeded, got %q", msg.Event)
	}
	var data realtime.SubscriptionSucceededData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("decode roster: %v", err)
	}
	ids := make([]string, 0, len(data.Members))
	for _, m := range data.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestHub_BroadcastChannelSubscription(t *testing.T) {
	h := newTestHub(nil)
	c := newTestConn(h)

	h.Subscribe(c, realtime.SubscribeData{Channel: "project-p1"})

	msg := readFrame(t, c)
	if msg.Event != realtime.EventSubscriptionSucceeded || msg.Channel != "project-p1" {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	payload := json.RawMessage(`{"taskId":"t1","userId":"u1"}`)
	h.Broadcast("project-p1", realtime.EventTaskMoved, payload)

	msg = readFrame(t, c)
	if msg.Event != realtime.EventTaskMoved || msg.Channel != "project-p1" {
		t.Errorf("unexpected broadcast frame: %+v", msg)
	}
	if string(msg.Data) != string(payload) {
		t.Errorf("payload corrupted: %s", msg.Data)
	}

	// A channel nobody watches swallows the broadcast.
	h.Broadcast("project-empty", realtime.EventTaskCreated, nil)
	assertNoFrame(t, c)
}

func TestHub_InvalidChannelName(t *testing.T) {
	h := newTestHub(nil)
	c := newTestConn(h)

	for _, channel := range []string{"project-", "presence-project-", "boards-p1", ""} {
		h.Subscribe(c, realtime.SubscribeData{Channel: channel})

		msg := readFrame(t, c)
		if msg.Event != realtime.EventSubscriptionError {
			t.Fatalf("expected subscription_error for %q, got %q", channel, msg.Event)
		}
		var errData realtime.SubscriptionErrorData
		if err := json.Unmarshal(msg.Data, &errData); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		if errData.Status != 400 {
			t.Errorf("expected status 400 for %q, got %d", channel, errData.Status)
		}
	}

	if len(c.channels) != 0 {
		t.Errorf("rejected subscriptions must not be recorded, got %v", c.channels)
	}
}

func TestHub_PresenceLifecycle(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)

	alice := newTestConn(h)
	subscribePresence(t, h, alice, signer, "p1", "alice")

	ids := decodeRoster(t, readFrame(t, alice))
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("expected roster {alice}, got %v", ids)
	}

	bob := newTestConn(h)
	subscribePresence(t, h, bob, signer, "p1", "bob")

	// Alice is told about bob; bob's snapshot already includes both.
	added := readFrame(t, alice)
	if added.Event != realtime.EventMemberAdded {
		t.Fatalf("expected member_added, got %q", added.Event)
	}
	var member realtime.PresenceMember
	if err := json.Unmarshal(added.Data, &member); err != nil {
		t.Fatalf("decode member: %v", err)
	}
	if member.ID != "bob" || member.Info.Email != "bob@example.com" {
		t.Errorf("unexpected member announced: %+v", member)
	}

	ids = decodeRoster(t, readFrame(t, bob))
	if len(ids) != 2 {
		t.Fatalf("expected roster of 2, got %v", ids)
	}

	h.Unsubscribe(bob, realtime.PresenceChannel("p1"))

	removed := readFrame(t, alice)
	if removed.Event != realtime.EventMemberRemoved {
		t.Fatalf("expected member_removed, got %q", removed.Event)
	}
	var gone realtime.MemberRemovedData
	if err := json.Unmarshal(removed.Data, &gone); err != nil {
		t.Fatalf("decode removal: %v", err)
	}
	if gone.ID != "bob" {
		t.Errorf("expected bob's departure, got %q", gone.ID)
	}
}

func TestHub_RejectsBadSignature(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)
	c := newTestConn(h)

	channel := realtime.PresenceChannel("p1")
	h.Subscribe(c, realtime.SubscribeData{
		Channel:     channel,
		Auth:        "app-key:forged-signature",
		ChannelData: `{"user_id":"mallory","user_info":{"email":"m@example.com","name":"mallory"}}`,
	})

	msg := readFrame(t, c)
	if msg.Event != realtime.EventSubscriptionError {
		t.Fatalf("expected subscription_error, got %q", msg.Event)
	}
	var errData realtime.SubscriptionErrorData
	if err := json.Unmarshal(msg.Data, &errData); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errData.Status != 403 {
		t.Errorf("expected status 403, got %d", errData.Status)
	}
	if len(c.channels) != 0 {
		t.Errorf("forged subscription must not be recorded, got %v", c.channels)
	}
}

func TestHub_MultiTabAnnouncesOnce(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)

	observer := newTestConn(h)
	subscribePresence(t, h, observer, signer, "p1", "observer")
	drainFrames(observer)

	tab1 := newTestConn(h)
	tab2 := newTestConn(h)
	subscribePresence(t, h, tab1, signer, "p1", "alice")
	subscribePresence(t, h, tab2, signer, "p1", "alice")

	added := readFrame(t, observer)
	if added.Event != realtime.EventMemberAdded {
		t.Fatalf("expected member_added for first tab, got %q", added.Event)
	}
	assertNoFrame(t, observer) // second tab joins silently

	// Closing one tab keeps alice on the roster.
	h.unregisterConnection(tab1)
	assertNoFrame(t, observer)

	h.unregisterConnection(tab2)
	removed := readFrame(t, observer)
	if removed.Event != realtime.EventMemberRemoved {
		t.Fatalf("expected member_removed after last tab, got %q", removed.Event)
	}
}

func TestHub_DuplicateSubscribeIsIdempotent(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)

	observer := newTestConn(h)
	subscribePresence(t, h, observer, signer, "p1", "observer")
	drainFrames(observer)

	alice := newTestConn(h)
	subscribePresence(t, h, alice, signer, "p1", "alice")
	subscribePresence(t, h, alice, signer, "p1", "alice")

	// One socket, one join announcement, no matter how often it subscribes.
	added := readFrame(t, observer)
	if added.Event != realtime.EventMemberAdded {
		t.Fatalf("expected member_added, got %q", added.Event)
	}
	assertNoFrame(t, observer)

	// Both subscribe frames are confirmed with the current roster.
	for i := 0; i < 2; i++ {
		ids := decodeRoster(t, readFrame(t, alice))
		if len(ids) != 2 {
			t.Errorf("confirmation %d: expected roster of 2, got %v", i+1, ids)
		}
	}

	// The resubscribe must not have inflated alice's socket count: her only
	// socket going away removes her from the roster.
	h.unregisterConnection(alice)
	removed := readFrame(t, observer)
	if removed.Event != realtime.EventMemberRemoved {
		t.Fatalf("expected member_removed after disconnect, got %q", removed.Event)
	}
	var gone realtime.MemberRemovedData
	if err := json.Unmarshal(removed.Data, &gone); err != nil {
		t.Fatalf("decode removal: %v", err)
	}
	if gone.ID != "alice" {
		t.Errorf("expected alice's departure, got %q", gone.ID)
	}
}

func TestHub_ClientEventRelay(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)

	alice := newTestConn(h)
	bob := newTestConn(h)
	carol := newTestConn(h)
	for conn, user := range map[*Connection]string{alice: "alice", bob: "bob", carol: "carol"} {
		subscribePresence(t, h, conn, signer, "p1", user)
	}
	for _, conn := range []*Connection{alice, bob, carol} {
		drainFrames(conn)
	}

	channel := realtime.PresenceChannel("p1")
	cursor := json.RawMessage(`{"userId":"alice","userName":"alice","x":0.5,"y":0.25,"timestamp":1}`)
	h.RelayClientEvent(alice, &realtime.Message{Event: realtime.EventCursorMove, Channel: channel, Data: cursor})

	for _, peer := range []*Connection{bob, carol} {
		msg := readFrame(t, peer)
		if msg.Event != realtime.EventCursorMove || string(msg.Data) != string(cursor) {
			t.Errorf("unexpected relayed frame: %+v", msg)
		}
	}
	assertNoFrame(t, alice) // sender never hears its own event

	t.Run("non-subscriber cannot relay", func(t *testing.T) {
		outsider := newTestConn(h)
		h.RelayClientEvent(outsider, &realtime.Message{Event: realtime.EventCursorMove, Channel: channel, Data: cursor})
		assertNoFrame(t, bob)
	})

	t.Run("reserved events are not relayable", func(t *testing.T) {
		h.RelayClientEvent(alice, &realtime.Message{Event: realtime.EventTaskMoved, Channel: channel, Data: cursor})
		assertNoFrame(t, bob)
	})

	t.Run("broadcast channels do not relay", func(t *testing.T) {
		// Broadcast channels require no grant to join, so allowing relay
		// there would let any socket spam every board viewer.
		sender := newTestConn(h)
		viewer := newTestConn(h)
		h.Subscribe(sender, realtime.SubscribeData{Channel: "project-p1"})
		h.Subscribe(viewer, realtime.SubscribeData{Channel: "project-p1"})
		drainFrames(sender)
		drainFrames(viewer)

		h.RelayClientEvent(sender, &realtime.Message{Event: "client-junk", Channel: "project-p1", Data: cursor})
		assertNoFrame(t, viewer)
	})
}

func TestHub_DisabledSignerDegradesOpen(t *testing.T) {
	h := newTestHub(nil) // no credentials configured

	c := newTestConn(h)
	channel := realtime.PresenceChannel("p1")

	// An unsigned subscription without presence data still succeeds; the
	// socket just joins unannounced.
	h.Subscribe(c, realtime.SubscribeData{Channel: channel})
	ids := decodeRoster(t, readFrame(t, c))
	if len(ids) != 0 {
		t.Errorf("expected empty roster for anonymous join, got %v", ids)
	}

	// Self-declared presence data is honored when no secret is configured.
	other := newTestConn(h)
	h.Subscribe(other, realtime.SubscribeData{
		Channel:     channel,
		ChannelData: `{"user_id":"alice","user_info":{"email":"a@example.com","name":"alice"}}`,
	})
	ids = decodeRoster(t, readFrame(t, other))
	if len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("expected roster {alice}, got %v", ids)
	}
}

func TestHub_UnregisterCleansChannels(t *testing.T) {
	signer := auth.NewSigner("app-key", "app-secret")
	h := newTestHub(signer)

	c := newTestConn(h)
	subscribePresence(t, h, c, signer, "p1", "alice")
	h.Subscribe(c, realtime.SubscribeData{Channel: "project-p1"})

	h.unregisterConnection(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.channels) != 0 {
		t.Errorf("expected all channel state to be reclaimed, got %d channels", len(h.channels))
	}
	if len(h.connections) != 0 {
		t.Errorf("expected connection registry to be empty, got %d", len(h.connections))
	}
}
