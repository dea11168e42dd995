package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

// Connection represents one WebSocket connection. A connection has no user
// identity of its own; identity is established per channel through the
// subscription grant.
type Connection struct {
	// Hub reference
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Socket identity assigned at connect time
	socketID string

	// Buffered channel of outbound frames
	send chan []byte

	// Subscribed channels and, for presence channels, the member identity
	// this connection joined as. Guarded by the hub's mutex.
	channels     map[string]bool
	presenceUser map[string]string

	// Configuration
	pongWait       time.Duration
	pingPeriod     time.Duration
	writeWait      time.Duration
	maxMessageSize int64

	// Logger
	logger log.Logger

	// Done signal
	done chan struct{}
}

// NewConnection creates a new Connection instance
func NewConnection(
	hub *Hub,
	conn *websocket.Conn,
	pongWait time.Duration,
	pingPeriod time.Duration,
	writeWait time.Duration,
	maxMessageSize int64,
	logger log.Logger,
) *Connection {
	return &Connection{
		hub:            hub,
		conn:           conn,
		socketID:       newSocketID(),
		send:           make(chan []byte, 256),
		channels:       make(map[string]bool),
		presenceUser:   make(map[string]string),
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		writeWait:      writeWait,
		maxMessageSize: maxMessageSize,
		logger:         logger,
		done:           make(chan struct{}),
	}
}

// SocketID returns the socket identity assigned to this connection.
func (c *Connection) SocketID() string {
	return c.socketID
}

// newSocketID produces a socket identity in the "<n>.<n>" form clients echo
// back during the authorization handshake.
func newSocketID() string {
	return fmt.Sprintf("%d.%d", rand.Int63n(1_000_000_000), rand.Int63n(1_000_000_000))
}

// readPump pumps frames from the WebSocket connection to the hub
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})
	c.conn.SetReadLimit(c.maxMessageSize)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Errorf(context.Background(), "WebSocket read error for socket %s: %v", c.socketID, err)
			}
			break
		}

		msg, err := realtime.FromJSON(data)
		if err != nil {
			c.logger.Debugf(context.Background(), "Dropping malformed frame from socket %s: %v", c.socketID, err)
			continue
		}

		c.dispatch(msg)
	}
}

// dispatch routes one inbound frame. Lifecycle frames mutate subscription
// state; everything else is treated as a client event.
func (c *Connection) dispatch(msg *realtime.Message) {
	switch msg.Event {
	case realtime.EventSubscribe:
		var req realtime.SubscribeData
		if err := unmarshalData(msg, &req); err != nil || req.Channel == "" {
			c.logger.Debugf(context.Background(), "Dropping malformed subscribe frame from socket %s", c.socketID)
			return
		}
		c.hub.Subscribe(c, req)

	case realtime.EventUnsubscribe:
		var req realtime.UnsubscribeData
		if err := unmarshalData(msg, &req); err != nil || req.Channel == "" {
			return
		}
		c.hub.Unsubscribe(c, req.Channel)

	default:
		c.hub.RelayClientEvent(c, msg)
	}
}

func unmarshalData(msg *realtime.Message, v any) error {
	if len(msg.Data) == 0 {
		return realtime.ErrInvalidMessage
	}
	return json.Unmarshal(msg.Data, v)
}

// writePump pumps frames from the hub to the WebSocket connection
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))

			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Start announces the socket identity and starts the read and write pumps.
func (c *Connection) Start() {
	msg, err := realtime.NewMessage(realtime.EventConnectionEstablished, "",
		realtime.ConnectionEstablishedData{SocketID: c.socketID})
	if err == nil {
		if data, err := msg.ToJSON(); err == nil {
			c.send <- data
		}
	}

	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() {
	select {
	case <-c.done:
		// Already closed
		return
	default:
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}
