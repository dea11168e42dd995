package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kanban-realtime/pkg/log"
)

var (
	ErrNotConnected   = errors.New("client is not connected")
	ErrNotClientEvent = errors.New("event name must begin with \"client-\"")
)

// AuthError is returned when the authorization handshake for a presence
// channel is denied.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("channel authorization denied (%d): %s", e.Status, e.Message)
}

// Options configures a broker client.
type Options struct {
	// URL is the broker websocket endpoint, e.g. ws://host:8081/ws.
	URL string

	// AuthURL is the authorization handshake endpoint, e.g.
	// http://host:8081/realtime/auth. Required for presence channels.
	AuthURL string

	// Token is the session token presented to the handshake endpoint.
	Token string

	HTTPClient       *http.Client
	Logger           log.Logger
	HandshakeTimeout time.Duration
}

// Client is the websocket implementation of Transport.
type Client struct {
	opts   Options
	logger log.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	socketID string
	subs     map[string]*subscription

	ready chan struct{}
	done  chan struct{}

	closeOnce sync.Once
}

var (
	sharedOnce   sync.Once
	sharedClient *Client
	sharedErr    error
)

// Shared lazily connects a process-wide client on first use and reuses it
// for every subsequent call, regardless of the options passed later.
func Shared(ctx context.Context, opts Options) (*Client, error) {
	sharedOnce.Do(func() {
		sharedClient, sharedErr = Connect(ctx, opts)
	})
	return sharedClient, sharedErr
}

// Connect dials the broker and waits for the connection handshake.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, opts.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	c := &Client{
		opts:   opts,
		logger: opts.Logger,
		conn:   conn,
		subs:   make(map[string]*subscription),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	go c.readLoop()

	select {
	case <-c.ready:
	case <-time.After(opts.HandshakeTimeout):
		c.Close()
		return nil, fmt.Errorf("timed out waiting for connection handshake")
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	return c, nil
}

// SocketID returns the broker-assigned socket identity for this connection.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Subscribe joins a channel. Presence channels run the authorization
// handshake first; a denial is returned here and is not retried.
func (c *Client) Subscribe(channel string) (Subscription, error) {
	presence := IsPresenceChannel(channel)
	if !presence {
		if _, err := ParseBroadcastChannel(channel); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	if sub, ok := c.subs[channel]; ok {
		c.mu.Unlock()
		return sub, nil
	}
	socketID := c.socketID
	c.mu.Unlock()

	var auth, channelData string
	if presence {
		grant, err := c.authorize(socketID, channel)
		if err != nil {
			return nil, err
		}
		auth = grant.Auth
		channelData = grant.ChannelData
	}

	sub := &subscription{
		client:   c,
		channel:  channel,
		handlers: make(map[string]Handler),
	}

	c.mu.Lock()
	c.subs[channel] = sub
	c.mu.Unlock()

	msg, err := NewMessage(EventSubscribe, "", SubscribeData{
		Channel:     channel,
		Auth:        auth,
		ChannelData: channelData,
	})
	if err != nil {
		return nil, err
	}
	if err := c.send(msg); err != nil {
		c.mu.Lock()
		delete(c.subs, channel)
		c.mu.Unlock()
		return nil, err
	}

	return sub, nil
}

// Close tears down the connection and discards all subscriptions.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.mu.Lock()
		c.subs = make(map[string]*subscription)
		c.mu.Unlock()
	})
	return nil
}

// authGrant mirrors the handshake endpoint's success body.
type authGrant struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

func (c *Client) authorize(socketID, channel string) (authGrant, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequest(http.MethodPost, c.opts.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return authGrant{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return authGrant{}, fmt.Errorf("authorization request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errBody)
		return authGrant{}, &AuthError{Status: resp.StatusCode, Message: errBody.Error}
	}

	var grant authGrant
	if err := json.Unmarshal(body, &grant); err != nil {
		return authGrant{}, fmt.Errorf("decode grant: %w", err)
	}
	return grant, nil
}

func (c *Client) send(msg *Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop dispatches incoming frames. All handler callbacks run on this
// single goroutine, so one event is fully applied before the next.
func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warnf(context.Background(), "broker connection closed: %v", err)
			}
			return
		}

		msg, err := FromJSON(data)
		if err != nil {
			c.logger.Warnf(context.Background(), "dropping malformed frame: %v", err)
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	if msg.Event == EventConnectionEstablished {
		var est ConnectionEstablishedData
		if err := json.Unmarshal(msg.Data, &est); err != nil {
			c.logger.Warnf(context.Background(), "malformed connection handshake: %v", err)
			return
		}
		c.mu.Lock()
		first := c.socketID == ""
		c.socketID = est.SocketID
		c.mu.Unlock()
		if first {
			close(c.ready)
		}
		return
	}

	if msg.Channel == "" {
		return
	}

	c.mu.Lock()
	sub := c.subs[msg.Channel]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	if h := sub.handler(msg.Event); h != nil {
		h(msg.Data)
	}
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.subs, channel)
	c.mu.Unlock()

	msg, err := NewMessage(EventUnsubscribe, "", UnsubscribeData{Channel: channel})
	if err != nil {
		return
	}
	if err := c.send(msg); err != nil {
		c.logger.Debugf(context.Background(), "unsubscribe %s: %v", channel, err)
	}
}

type subscription struct {
	client  *Client
	channel string

	mu           sync.Mutex
	handlers     map[string]Handler
	unsubscribed bool
}

func (s *subscription) Channel() string {
	return s.channel
}

func (s *subscription) Bind(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribed {
		return
	}
	s.handlers[event] = h
}

func (s *subscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *subscription) Trigger(event string, payload any) error {
	if !IsClientEvent(event) {
		return ErrNotClientEvent
	}

	s.mu.Lock()
	gone := s.unsubscribed
	s.mu.Unlock()
	if gone {
		return ErrNotConnected
	}

	msg, err := NewMessage(event, s.channel, payload)
	if err != nil {
		return err
	}
	return s.client.send(msg)
}

func (s *subscription) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	s.handlers = make(map[string]Handler)
	s.mu.Unlock()

	s.client.unsubscribe(s.channel)
}

func (s *subscription) handler(event string) Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[event]
}
