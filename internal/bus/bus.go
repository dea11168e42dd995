package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/redis"
)

// DefaultBusChannel is the redis pub/sub channel carrying broker envelopes
// between nodes.
const DefaultBusChannel = "realtime:events"

// ErrTransportUnavailable means no transport is configured for publishing.
var ErrTransportUnavailable = errors.New("transport is not configured")

// Envelope is one published event on its way to a channel's subscribers.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Publisher publishes events toward all subscribers of a channel,
// process-local or across nodes. Implementations must be safe for
// concurrent use; the relay shares one publisher per process.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload json.RawMessage) error
}

// Broadcaster delivers an event to a channel's local subscribers. The hub
// implements it.
type Broadcaster interface {
	Broadcast(channel, event string, payload json.RawMessage)
}

// LocalPublisher delivers directly to the local hub. Used for single-node
// deployments without redis.
type LocalPublisher struct {
	target Broadcaster
}

// NewLocalPublisher creates a publisher that bypasses the bus.
func NewLocalPublisher(target Broadcaster) *LocalPublisher {
	return &LocalPublisher{target: target}
}

func (p *LocalPublisher) Publish(ctx context.Context, channel, event string, payload json.RawMessage) error {
	p.target.Broadcast(channel, event, payload)
	return nil
}

// RedisPublisher publishes envelopes onto the redis bus so every node's
// subscriber can fan them out to its local connections.
type RedisPublisher struct {
	client     *redis.Client
	busChannel string
	logger     log.Logger
}

// NewRedisPublisher creates a redis-backed publisher.
func NewRedisPublisher(client *redis.Client, busChannel string, logger log.Logger) *RedisPublisher {
	if busChannel == "" {
		busChannel = DefaultBusChannel
	}
	return &RedisPublisher{
		client:     client,
		busChannel: busChannel,
		logger:     logger,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel, event string, payload json.RawMessage) error {
	data, err := json.Marshal(Envelope{
		Channel: channel,
		Event:   event,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.client.Client.Publish(ctx, p.busChannel, data).Err(); err != nil {
		return fmt.Errorf("publish to bus: %w", err)
	}

	p.logger.Debugf(ctx, "Published %s to %s", event, channel)
	return nil
}

// NopPublisher drops every event. Used when neither redis nor a local hub
// is configured, so the trigger endpoint degrades to a no-op instead of
// crashing.
type NopPublisher struct {
	logger log.Logger
}

// NewNopPublisher creates a publisher that drops everything.
func NewNopPublisher(logger log.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) Publish(ctx context.Context, channel, event string, payload json.RawMessage) error {
	p.logger.Debugf(ctx, "Transport not configured, dropping %s for %s", event, channel)
	return nil
}
