package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"kanban-realtime/pkg/log"
)

// PresenceState is the lifecycle of a presence subscription.
type PresenceState int

const (
	PresenceUnsubscribed PresenceState = iota
	PresenceSubscribing
	PresenceSynced
)

// PresenceTracker maintains the live roster of users viewing a project.
// The roster is authoritative only at the subscription_succeeded snapshot;
// afterwards it is updated incrementally from member events and self-heals
// only on a full resubscription.
type PresenceTracker struct {
	logger log.Logger
	selfID string

	mu      sync.Mutex
	sub     Subscription
	state   PresenceState
	members map[string]PresenceMember
	err     error
}

// TrackPresence subscribes to a project's presence channel and returns a
// tracker reconciling its roster. If the subscription is denied the tracker
// surfaces an empty roster and the error; it does not retry.
func TrackPresence(t Transport, projectID, selfID string, logger log.Logger) *PresenceTracker {
	if logger == nil {
		logger = log.NewNop()
	}

	p := &PresenceTracker{
		logger:  logger,
		selfID:  selfID,
		state:   PresenceSubscribing,
		members: make(map[string]PresenceMember),
	}

	sub, err := t.Subscribe(PresenceChannel(projectID))
	if err != nil {
		logger.Warnf(context.Background(), "presence subscription denied for project %s: %v", projectID, err)
		p.mu.Lock()
		p.state = PresenceUnsubscribed
		p.err = err
		p.mu.Unlock()
		return p
	}

	p.sub = sub
	sub.Bind(EventSubscriptionSucceeded, p.handleSubscriptionSucceeded)
	sub.Bind(EventSubscriptionError, p.handleSubscriptionError)
	sub.Bind(EventMemberAdded, p.handleMemberAdded)
	sub.Bind(EventMemberRemoved, p.handleMemberRemoved)

	return p
}

// Members returns a snapshot of the roster, never including the local user.
func (p *PresenceTracker) Members() []PresenceMember {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PresenceMember, 0, len(p.members))
	for _, m := range p.members {
		out = append(out, m)
	}
	return out
}

// State returns the tracker's subscription state.
func (p *PresenceTracker) State() PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the subscription error, if any.
func (p *PresenceTracker) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Subscription returns the underlying channel handle, shared with the
// cursor broadcaster. Nil when the subscription was denied.
func (p *PresenceTracker) Subscription() Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub
}

// Stop leaves the channel and discards all local state. Presence does not
// outlive the viewing session.
func (p *PresenceTracker) Stop() {
	p.mu.Lock()
	sub := p.sub
	p.sub = nil
	p.state = PresenceUnsubscribed
	p.members = make(map[string]PresenceMember)
	p.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// handleSubscriptionSucceeded replaces the roster wholesale from the
// broker's snapshot. This is the single point of full replacement, so no
// stale entries from a previous subscription can leak through.
func (p *PresenceTracker) handleSubscriptionSucceeded(data json.RawMessage) {
	var snapshot SubscriptionSucceededData
	if err := json.Unmarshal(data, &snapshot); err != nil {
		p.logger.Warnf(context.Background(), "malformed presence snapshot: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.members = make(map[string]PresenceMember, len(snapshot.Members))
	for _, m := range snapshot.Members {
		if m.ID == p.selfID {
			continue
		}
		p.members[m.ID] = m
	}
	p.state = PresenceSynced
}

func (p *PresenceTracker) handleSubscriptionError(data json.RawMessage) {
	var subErr SubscriptionErrorData
	_ = json.Unmarshal(data, &subErr)
	p.logger.Warnf(context.Background(), "presence subscription rejected: %d %s", subErr.Status, subErr.Message)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = make(map[string]PresenceMember)
	p.state = PresenceUnsubscribed
	p.err = &AuthError{Status: subErr.Status, Message: subErr.Message}
}

func (p *PresenceTracker) handleMemberAdded(data json.RawMessage) {
	var m PresenceMember
	if err := json.Unmarshal(data, &m); err != nil {
		p.logger.Warnf(context.Background(), "malformed member_added event: %v", err)
		return
	}
	if m.ID == p.selfID {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Duplicate join notifications are no-ops.
	if _, ok := p.members[m.ID]; ok {
		return
	}
	p.members[m.ID] = m
}

func (p *PresenceTracker) handleMemberRemoved(data json.RawMessage) {
	var removed MemberRemovedData
	if err := json.Unmarshal(data, &removed); err != nil {
		p.logger.Warnf(context.Background(), "malformed member_removed event: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.members, removed.ID)
}
