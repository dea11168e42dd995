package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	redis_client "github.com/redis/go-redis/v9"

	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/redis"
)

// Subscriber listens on the redis bus and fans envelopes out to the local
// broker. One subscriber runs per node.
type Subscriber struct {
	client     *redis.Client
	target     Broadcaster
	logger     log.Logger
	busChannel string

	pubsub *redis_client.PubSub

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Reconnection settings
	maxRetries int
	retryDelay time.Duration

	// Health tracking
	mu            sync.RWMutex
	lastMessageAt time.Time
	isActive      atomic.Bool
}

// NewSubscriber creates a new bus subscriber
func NewSubscriber(client *redis.Client, target Broadcaster, busChannel string, logger log.Logger) *Subscriber {
	if busChannel == "" {
		busChannel = DefaultBusChannel
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscriber{
		client:     client,
		target:     target,
		logger:     logger,
		busChannel: busChannel,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		maxRetries: 10,
		retryDelay: 5 * time.Second,
	}
}

// Start starts the bus subscriber
func (s *Subscriber) Start() error {
	s.pubsub = s.client.Client.Subscribe(s.ctx, s.busChannel)
	s.isActive.Store(true)

	s.logger.Infof(s.ctx, "Bus subscriber started, listening on channel: %s", s.busChannel)

	go s.listen()

	return nil
}

// listen receives envelopes from redis and routes them to the broker
func (s *Subscriber) listen() {
	defer close(s.done)

	ch := s.pubsub.Channel()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info(context.Background(), "Bus subscriber shutting down...")
			return

		case msg, ok := <-ch:
			if !ok {
				s.logger.Error(s.ctx, "Bus pub/sub channel closed, attempting to reconnect...")
				if err := s.reconnect(); err != nil {
					s.logger.Errorf(s.ctx, "Failed to reconnect to the bus: %v", err)
					s.isActive.Store(false)
					return
				}
				ch = s.pubsub.Channel()
				continue
			}

			s.handleMessage(msg.Payload)
		}
	}
}

// handleMessage fans one envelope out to the local broker
func (s *Subscriber) handleMessage(payload string) {
	s.mu.Lock()
	s.lastMessageAt = time.Now()
	s.mu.Unlock()

	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Errorf(s.ctx, "Failed to unmarshal bus envelope: %v", err)
		return
	}

	if env.Channel == "" || env.Event == "" {
		s.logger.Warnf(s.ctx, "Dropping bus envelope with missing channel or event")
		return
	}

	s.target.Broadcast(env.Channel, env.Event, env.Payload)

	s.logger.Debugf(s.ctx, "Routed %s to channel %s", env.Event, env.Channel)
}

// reconnect attempts to re-establish the bus subscription
func (s *Subscriber) reconnect() error {
	for i := 0; i < s.maxRetries; i++ {
		s.logger.Infof(s.ctx, "Reconnecting to the bus (attempt %d/%d)...", i+1, s.maxRetries)

		if s.pubsub != nil {
			s.pubsub.Close()
		}

		s.pubsub = s.client.Client.Subscribe(s.ctx, s.busChannel)

		if _, err := s.pubsub.Receive(s.ctx); err == nil {
			s.logger.Info(s.ctx, "Successfully reconnected to the bus")
			return nil
		}

		time.Sleep(s.retryDelay)
	}

	return fmt.Errorf("failed to reconnect to the bus after %d attempts", s.maxRetries)
}

// GetHealthInfo returns the current health info of the subscriber
func (s *Subscriber) GetHealthInfo() (active bool, lastMessageAt time.Time, channel string) {
	s.mu.RLock()
	lastMsg := s.lastMessageAt
	s.mu.RUnlock()

	return s.isActive.Load(), lastMsg, s.busChannel
}

// Shutdown gracefully shuts down the subscriber
func (s *Subscriber) Shutdown(ctx context.Context) error {
	s.isActive.Store(false)
	s.cancel()

	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			s.logger.Errorf(context.Background(), "Error closing pub/sub: %v", err)
		}
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
