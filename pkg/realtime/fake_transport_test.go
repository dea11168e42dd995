package realtime

import (
	"encoding/json"
	"sync"
	"testing"
)

// fakeSubscription is an in-memory Subscription for testing the client-side
// components without a broker.
type fakeSubscription struct {
	channel string

	mu           sync.Mutex
	handlers     map[string]Handler
	triggered    []Message
	triggerErr   error
	unsubscribed bool
}

func newFakeSubscription(channel string) *fakeSubscription {
	return &fakeSubscription{
		channel:  channel,
		handlers: make(map[string]Handler),
	}
}

func (s *fakeSubscription) Channel() string { return s.channel }

func (s *fakeSubscription) Bind(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

func (s *fakeSubscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *fakeSubscription) Trigger(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggerErr != nil {
		return s.triggerErr
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.triggered = append(s.triggered, Message{Event: event, Channel: s.channel, Data: data})
	return nil
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
	s.handlers = make(map[string]Handler)
}

// emit delivers an event to the bound handler, as the broker would.
func (s *fakeSubscription) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	s.mu.Lock()
	h := s.handlers[event]
	s.mu.Unlock()
	if h != nil {
		h(data)
	}
}

func (s *fakeSubscription) sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.triggered))
	copy(out, s.triggered)
	return out
}

// fakeTransport hands out fakeSubscriptions and can simulate denial.
type fakeTransport struct {
	mu           sync.Mutex
	subs         map[string]*fakeSubscription
	subscribeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSubscription)}
}

func (t *fakeTransport) Subscribe(channel string) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscribeErr != nil {
		return nil, t.subscribeErr
	}
	if sub, ok := t.subs[channel]; ok {
		return sub, nil
	}
	sub := newFakeSubscription(channel)
	t.subs[channel] = sub
	return sub, nil
}

func (t *fakeTransport) Close() error { return nil }

func (t *fakeTransport) subscription(channel string) *fakeSubscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[channel]
}
