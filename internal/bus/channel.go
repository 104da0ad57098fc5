package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChannelBus is the in-process bus of the community tier. Each subscription
// owns a buffered channel drained by one goroutine; a full buffer drops the
// message for that subscriber and counts it.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	subs       map[string]map[*channelSubscription]struct{}
	closed     bool
	dropped    atomic.Int64
}

var _ domain.EventBus = (*ChannelBus)(nil)

type channelSubscription struct {
	bus    *ChannelBus
	key    string
	topic  string
	msgCh  chan *domain.Message
	cancel context.CancelFunc
	once   sync.Once
}

// NewChannelBus creates a bus with the given per-subscription buffer.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		subs:       make(map[string]map[*channelSubscription]struct{}),
	}
}

func subjectKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Publish delivers the message to every subscriber of (tenantID, topic)
// without blocking.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	msg, err := newMessage(ctx, tenantID, topic, payload)
	if err != nil {
		return err
	}

	// Sends happen under the read lock so Close cannot race them.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	for sub := range b.subs[subjectKey(tenantID, topic)] {
		select {
		case sub.msgCh <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("event dropped, subscriber buffer full",
				"tenant_id", tenantID,
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe registers handler for (tenantID, topic). The handler runs until
// the subscription is removed, ctx is cancelled, or the bus is closed.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if _, err := newMessage(ctx, tenantID, topic, nil); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		bus:    b,
		key:    subjectKey(tenantID, topic),
		topic:  topic,
		msgCh:  make(chan *domain.Message, b.bufferSize),
		cancel: cancel,
	}
	if b.subs[sub.key] == nil {
		b.subs[sub.key] = make(map[*channelSubscription]struct{})
	}
	b.subs[sub.key][sub] = struct{}{}

	go sub.run(subCtx, handler)
	return sub, nil
}

func (s *channelSubscription) run(ctx context.Context, handler domain.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := handler(ctx, msg); err != nil {
				slog.Error("event handler failed",
					"tenant_id", msg.TenantID,
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Ping fails once the bus is closed.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close stops every subscription. It is safe to call more than once.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for sub := range set {
			sub.cancel()
		}
	}
	b.subs = make(map[string]map[*channelSubscription]struct{})
	return nil
}

// Unsubscribe stops delivery and removes the subscription from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		s.bus.mu.Lock()
		if set := s.bus.subs[s.key]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.subs, s.key)
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
