package realtime

import "encoding/json"

// Handler is invoked with the data field of a received event. Handlers for
// one subscription are dispatched from a single goroutine, so roster and
// cursor mutations never race each other.
type Handler func(data json.RawMessage)

// Subscription is a handle to one subscribed channel.
type Subscription interface {
	// Channel returns the subscribed channel name.
	Channel() string

	// Bind registers a handler for an event on this channel, replacing any
	// previous handler for the same event.
	Bind(event string, h Handler)

	// Unbind removes the handler for an event.
	Unbind(event string)

	// Trigger relays a client event (name must begin with "client-") to the
	// channel's other subscribers without a server round-trip.
	Trigger(event string, payload any) error

	// Unsubscribe leaves the channel and unregisters all bound handlers
	// synchronously.
	Unsubscribe()
}

// Transport is the capability interface over a pub/sub message bus. The
// presence tracker and cursor broadcaster are written against it rather than
// against one broker implementation.
type Transport interface {
	// Subscribe joins a channel. The subscription is asynchronous: the
	// returned handle is live immediately, and EventSubscriptionSucceeded
	// arrives once the broker confirms.
	Subscribe(channel string) (Subscription, error)

	// Close tears down the connection and all subscriptions.
	Close() error
}
