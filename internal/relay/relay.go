package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kanban-realtime/internal/auth"
	"kanban-realtime/internal/bus"
	"kanban-realtime/internal/membership"
	"kanban-realtime/pkg/log"
	"kanban-realtime/pkg/realtime"
)

var (
	// ErrInvalidEvent is returned for event names outside the reserved
	// task mutation set.
	ErrInvalidEvent = errors.New("invalid event name")

	// ErrRelayFailure wraps a transport publish failure. It is reported to
	// the caller but must never roll back the task mutation that triggered
	// the notification.
	ErrRelayFailure = errors.New("failed to publish event")
)

// Relay fans task mutation notifications out to all viewers of a project's
// board. It is a best-effort side channel, not a transactional outbox.
type Relay struct {
	store     membership.Store
	publisher bus.Publisher
	logger    log.Logger
}

// NewRelay creates a new Relay
func NewRelay(store membership.Store, publisher bus.Publisher, logger log.Logger) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Trigger validates and publishes one task event on behalf of actorID.
//
// Membership is re-checked here even though the client already authenticated
// for presence: the broadcast channel is a distinct authorization boundary
// and must not be bypassed by a crafted trigger call.
func (r *Relay) Trigger(ctx context.Context, channelName, event string, data json.RawMessage, actorID string) error {
	projectID, err := realtime.ParseBroadcastChannel(channelName)
	if err != nil {
		return err
	}

	if !realtime.IsTaskEvent(event) {
		return ErrInvalidEvent
	}

	isMember, err := r.store.IsMember(ctx, actorID, projectID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !isMember {
		r.logger.Warnf(ctx, "Denied trigger: user %s is not a member of project %s", actorID, projectID)
		return auth.ErrForbidden
	}

	payload, err := stampOrigin(data, actorID, time.Now())
	if err != nil {
		return fmt.Errorf("augment payload: %w", err)
	}

	if err := r.publisher.Publish(ctx, channelName, event, payload); err != nil {
		r.logger.Errorf(ctx, "Publish %s to %s failed: %v", event, channelName, err)
		return fmt.Errorf("%w: %v", ErrRelayFailure, err)
	}

	return nil
}

// stampOrigin augments the task payload with the originating actor and a
// server timestamp, so every recipient (including the sender's other
// devices) sees a consistent origin and time.
func stampOrigin(data json.RawMessage, actorID string, now time.Time) (json.RawMessage, error) {
	payload := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
	}

	payload["userId"] = actorID
	payload["timestamp"] = now.UnixMilli()

	return json.Marshal(payload)
}
