package domain

import "context"

// EventBus is the boundary resolution events are published on. Analytics
// and conversation logging live on the other side of this boundary; the
// engine only publishes.
type EventBus interface {
	// Publish sends an event payload to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic. Returns a subscription
	// that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventHandler processes incoming events.
type EventHandler func(ctx context.Context, evt *Event) error

// Event is a published message envelope.
type Event struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics published by the engine.
const (
	TopicResolution  = "tariff.resolution"
	TopicMissingText = "tariff.rule.missing_text"
)

// ResolutionEvent is the payload published on TopicResolution after every
// terminal resolution.
type ResolutionEvent struct {
	Query      Query            `json:"query"`
	Status     ResolutionStatus `json:"status"`
	RuleID     string           `json:"ruleId,omitempty"`
	SessionID  string           `json:"sessionId,omitempty"`
	DurationMs int64            `json:"durationMs"`
}
