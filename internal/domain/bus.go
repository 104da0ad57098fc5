package domain

import (
	"context"
)

// EventBus carries engine events between replicas. Topics are partitioned
// by tenant: a subscriber only sees messages published for its tenant.
// Delivery is at most once.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe runs handler for every message on the tenant's topic until
	// the subscription is cancelled or the bus closes.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler consumes one message. A returned error is logged only.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every payload travels in. Metadata carries the
// publisher's trace_id when one is known.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is a live handler registration.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects the transport.
type EventBusConfig struct {
	// Type is "channel" (in-process) or "nats".
	Type string `env:"KESTREL_BUS_TYPE"`

	// ChannelBufferSize is the per-subscriber queue; a full queue drops.
	ChannelBufferSize int `env:"KESTREL_BUS_BUFFER_SIZE"`

	NATSUrl           string `env:"KESTREL_NATS_URL"`
	NATSToken         string `env:"KESTREL_NATS_TOKEN"`
	NATSMaxReconnects int    `env:"KESTREL_NATS_MAX_RECONNECTS"`
	// NATSReconnectWait is in seconds.
	NATSReconnectWait int `env:"KESTREL_NATS_RECONNECT_WAIT"`

	// NATSQueueGroup, when set, load-balances subscribers across replicas.
	NATSQueueGroup string `env:"KESTREL_NATS_QUEUE_GROUP"`
}

// Topics published and consumed around the engine.
const (
	// TopicEvaluationRequested carries an EvaluationRequest for the async worker.
	TopicEvaluationRequested = "kestrel.evaluation.requested"

	// TopicScoreUpdated carries every freshly stored snapshot. Consumers that
	// need score history subscribe here; the core keeps only the latest row.
	TopicScoreUpdated = "kestrel.score.updated"

	// TopicScoreHigh carries snapshots whose severity is high.
	TopicScoreHigh = "kestrel.score.high"
)

// EvaluationRequest asks for one entity to be evaluated.
type EvaluationRequest struct {
	Scope    Scope  `json:"scope"`
	EntityID string `json:"entityId"`
	TraceID  string `json:"traceId,omitempty"`
}
