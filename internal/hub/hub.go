package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"kanban-realtime/internal/auth"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

// presenceEntry tracks one member of a presence channel. A member with
// several open tabs holds one entry with a socket count, so the roster
// announces them exactly once.
type presenceEntry struct {
	member  realtime.PresenceMember
	sockets int
}

// channelState is the live state of one channel: who receives its frames
// and, for presence channels, who is on the roster.
type channelState struct {
	subscribers map[*Connection]bool
	presence    map[string]*presenceEntry
}

// Hub maintains the set of active connections and routes frames between
// them. Client events fan out to a channel's other subscribers; bus
// envelopes fan out to all of them.
type Hub struct {
	// Registered connections and per-channel subscription state
	connections map[*Connection]bool
	channels    map[string]*channelState
	mu          sync.RWMutex

	// Channels for connection lifecycle
	register   chan *Connection
	unregister chan *Connection

	// Metrics
	totalMessagesSent   atomic.Int64
	totalMessagesFailed atomic.Int64

	// Configuration
	maxConnections int

	// Dependencies
	signer *auth.Signer
	logger log.Logger

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(signer *auth.Signer, logger log.Logger, maxConnections int) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		connections:    make(map[*Connection]bool),
		channels:       make(map[string]*channelState),
		register:       make(chan *Connection, 100),
		unregister:     make(chan *Connection, 100),
		maxConnections: maxConnections,
		signer:         signer,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info(context.Background(), "Hub shutting down...")
			h.closeAllConnections()
			return

		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		}
	}
}

// registerConnection registers a new connection
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.connections) >= h.maxConnections {
		h.logger.Warnf(context.Background(), "Max connections reached, rejecting socket %s", conn.socketID)
		go conn.Close()
		return
	}

	h.connections[conn] = true
	h.logger.Infof(context.Background(), "Socket connected: %s (total connections: %d)", conn.socketID, len(h.connections))
}

// unregisterConnection removes a connection and cleans up every channel it
// subscribed to, including its presence memberships.
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connections[conn] {
		return
	}
	delete(h.connections, conn)

	for channel := range conn.channels {
		h.leaveChannelLocked(conn, channel)
	}

	close(conn.send)
	h.logger.Infof(context.Background(), "Socket disconnected: %s (total connections: %d)", conn.socketID, len(h.connections))
}

// Subscribe processes a subscribe frame from a connection. The reply
// (subscription_succeeded or subscription_error) is enqueued on the same
// connection; presence joins are announced to the channel's other members.
func (h *Hub) Subscribe(conn *Connection, req realtime.SubscribeData) {
	channel := req.Channel
	presence := realtime.IsPresenceChannel(channel)

	var err error
	if presence {
		_, err = realtime.ParsePresenceChannel(channel)
	} else {
		_, err = realtime.ParseBroadcastChannel(channel)
	}
	if err != nil {
		h.sendSubscriptionError(conn, channel, 400, "Invalid channel name")
		return
	}

	if presence && !h.signer.Verify(req.Auth, conn.socketID, channel, req.ChannelData) {
		h.logger.Warnf(context.Background(), "Rejected subscription to %s: bad signature from socket %s", channel, conn.socketID)
		h.sendSubscriptionError(conn, channel, 403, "Invalid authorization signature")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// A duplicate subscribe from the same socket is confirmed again but
	// must not count as a fresh presence join.
	if conn.channels[channel] {
		var members []realtime.PresenceMember
		if state := h.channels[channel]; presence && state != nil {
			members = rosterLocked(state)
		}
		h.sendToConnection(conn, &realtime.Message{Event: realtime.EventSubscriptionSucceeded, Channel: channel},
			realtime.SubscriptionSucceededData{Members: members})
		return
	}

	state := h.channels[channel]
	if state == nil {
		state = &channelState{
			subscribers: make(map[*Connection]bool),
			presence:    make(map[string]*presenceEntry),
		}
		h.channels[channel] = state
	}
	state.subscribers[conn] = true
	conn.channels[channel] = true

	var members []realtime.PresenceMember
	if presence {
		if member, ok := parseChannelData(req.ChannelData); ok {
			h.joinPresenceLocked(conn, channel, state, member)
		} else if h.signer.Enabled() {
			h.logger.Warnf(context.Background(), "Presence subscription to %s carries no channel data, socket %s joins unannounced", channel, conn.socketID)
		}
		members = rosterLocked(state)
	}

	h.sendToConnection(conn, &realtime.Message{Event: realtime.EventSubscriptionSucceeded, Channel: channel},
		realtime.SubscriptionSucceededData{Members: members})
}

// Unsubscribe processes an unsubscribe frame from a connection.
func (h *Hub) Unsubscribe(conn *Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !conn.channels[channel] {
		return
	}
	h.leaveChannelLocked(conn, channel)
	delete(conn.channels, channel)
}

// RelayClientEvent forwards a client event to every other subscriber of its
// channel. The sender never receives its own event back, and a connection
// can only relay on channels it has subscribed to.
func (h *Hub) RelayClientEvent(conn *Connection, msg *realtime.Message) {
	if !realtime.IsClientEvent(msg.Event) {
		h.logger.Debugf(context.Background(), "Dropping non-client event %q from socket %s", msg.Event, conn.socketID)
		return
	}

	// Client events only travel on presence channels, where every
	// subscriber holds a grant. Broadcast channels need no authorization,
	// so relaying there would let anyone spam a board's viewers.
	if !realtime.IsPresenceChannel(msg.Channel) {
		h.logger.Debugf(context.Background(), "Dropping client event on non-presence channel %q from socket %s", msg.Channel, conn.socketID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !conn.channels[msg.Channel] {
		h.logger.Debugf(context.Background(), "Dropping client event on unsubscribed channel %q from socket %s", msg.Channel, conn.socketID)
		return
	}

	state := h.channels[msg.Channel]
	if state == nil {
		return
	}

	data, err := msg.ToJSON()
	if err != nil {
		h.logger.Errorf(context.Background(), "Failed to marshal client event: %v", err)
		h.totalMessagesFailed.Add(1)
		return
	}
	for subscriber := range state.subscribers {
		if subscriber == conn {
			continue
		}
		h.sendRawLocked(subscriber, data)
	}
}

// Broadcast delivers a bus envelope to every subscriber of a channel. A
// channel with no subscribers is skipped silently.
func (h *Hub) Broadcast(channel, event string, payload json.RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	state := h.channels[channel]
	if state == nil || len(state.subscribers) == 0 {
		return
	}

	msg := &realtime.Message{Event: event, Channel: channel, Data: payload}
	data, err := msg.ToJSON()
	if err != nil {
		h.logger.Errorf(context.Background(), "Failed to marshal broadcast: %v", err)
		h.totalMessagesFailed.Add(1)
		return
	}
	for subscriber := range state.subscribers {
		h.sendRawLocked(subscriber, data)
	}
}

// joinPresenceLocked adds a member socket to a presence channel. Only the
// member's first socket triggers a member_added announcement.
func (h *Hub) joinPresenceLocked(conn *Connection, channel string, state *channelState, member realtime.PresenceMember) {
	entry := state.presence[member.ID]
	if entry == nil {
		entry = &presenceEntry{member: member}
		state.presence[member.ID] = entry
		h.announceLocked(state, conn, channel, realtime.EventMemberAdded, member)
	}
	entry.sockets++
	conn.presenceUser[channel] = member.ID
}

// leaveChannelLocked removes a connection from a channel and, if it was the
// member's last socket, announces the member's departure. Must be called
// with the hub lock held.
func (h *Hub) leaveChannelLocked(conn *Connection, channel string) {
	state := h.channels[channel]
	if state == nil {
		return
	}
	delete(state.subscribers, conn)

	if userID, ok := conn.presenceUser[channel]; ok {
		delete(conn.presenceUser, channel)
		if entry := state.presence[userID]; entry != nil {
			entry.sockets--
			if entry.sockets <= 0 {
				delete(state.presence, userID)
				h.announceLocked(state, conn, channel, realtime.EventMemberRemoved, realtime.MemberRemovedData{ID: userID})
			}
		}
	}

	if len(state.subscribers) == 0 {
		delete(h.channels, channel)
	}
}

// announceLocked fans a presence lifecycle event out to a channel's
// subscribers, excluding the socket that caused it.
func (h *Hub) announceLocked(state *channelState, cause *Connection, channel, event string, payload any) {
	msg, err := realtime.NewMessage(event, channel, payload)
	if err != nil {
		h.logger.Errorf(context.Background(), "Failed to marshal %s: %v", event, err)
		return
	}
	data, err := msg.ToJSON()
	if err != nil {
		return
	}
	for subscriber := range state.subscribers {
		if subscriber == cause {
			continue
		}
		h.sendRawLocked(subscriber, data)
	}
}

// sendToConnection marshals and enqueues one frame for a single connection.
func (h *Hub) sendToConnection(conn *Connection, msg *realtime.Message, payload any) {
	full, err := realtime.NewMessage(msg.Event, msg.Channel, payload)
	if err != nil {
		h.logger.Errorf(context.Background(), "Failed to marshal %s: %v", msg.Event, err)
		h.totalMessagesFailed.Add(1)
		return
	}
	data, err := full.ToJSON()
	if err != nil {
		h.totalMessagesFailed.Add(1)
		return
	}
	h.sendRawLocked(conn, data)
}

// sendRawLocked enqueues raw bytes without blocking. A subscriber whose
// buffer is full misses the frame rather than stalling the channel.
func (h *Hub) sendRawLocked(conn *Connection, data []byte) {
	select {
	case conn.send <- data:
		h.totalMessagesSent.Add(1)
	default:
		h.logger.Warnf(context.Background(), "Send buffer full for socket %s, dropping frame", conn.socketID)
		h.totalMessagesFailed.Add(1)
	}
}

func (h *Hub) sendSubscriptionError(conn *Connection, channel string, status int, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendToConnection(conn, &realtime.Message{Event: realtime.EventSubscriptionError, Channel: channel},
		realtime.SubscriptionErrorData{Status: status, Message: message})
}

// rosterLocked snapshots a presence channel's member list.
func rosterLocked(state *channelState) []realtime.PresenceMember {
	members := make([]realtime.PresenceMember, 0, len(state.presence))
	for _, entry := range state.presence {
		members = append(members, entry.member)
	}
	return members
}

// parseChannelData decodes the presence payload carried by a grant. A
// payload without a user id cannot be placed on the roster.
func parseChannelData(channelData string) (realtime.PresenceMember, bool) {
	if channelData == "" {
		return realtime.PresenceMember{}, false
	}
	var data realtime.ChannelData
	if err := json.Unmarshal([]byte(channelData), &data); err != nil || data.UserID == "" {
		return realtime.PresenceMember{}, false
	}
	return realtime.PresenceMember{ID: data.UserID, Info: data.UserInfo}, true
}

// closeAllConnections closes all active connections
func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		conn.Close()
	}
	h.connections = make(map[*Connection]bool)
	h.channels = make(map[string]*channelState)
}

// GetStats returns hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HubStats{
		ActiveConnections:   len(h.connections),
		ActiveChannels:      len(h.channels),
		TotalMessagesSent:   h.totalMessagesSent.Load(),
		TotalMessagesFailed: h.totalMessagesFailed.Load(),
	}
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HubStats represents hub statistics
type HubStats struct {
	ActiveConnections   int   `json:"active_connections"`
	ActiveChannels      int   `json:"active_channels"`
	TotalMessagesSent   int64 `json:"total_messages_sent"`
	TotalMessagesFailed int64 `json:"total_messages_failed"`
}
