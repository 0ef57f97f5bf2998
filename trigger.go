package devicemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maniartech/signals"
)

// Topic names a trigger signal.
type Topic string

// Trigger topics fired by buttons or key presses.
const (
	TopicCycleBackground Topic = "cycle-background"
	TopicToggleIsometric Topic = "toggle-isometric"
)

// Topics lists all known topics.
var Topics = []Topic{TopicCycleBackground, TopicToggleIsometric}

// ErrUnknownTopic is returned for a topic the bus does not carry.
var ErrUnknownTopic = errors.New("unknown topic")

// ParseTopic converts a name into a Topic.
func ParseTopic(s string) (Topic, error) {
	for _, t := range Topics {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownTopic)
}

// TriggerBus carries payload-free trigger signals to any number of listeners.
// Listeners are called synchronously in the order they subscribed.
// A panicking listener is logged and the remaining listeners still run.
type TriggerBus struct {
	signals map[Topic]signals.Signal[struct{}]
	logger  *slog.Logger
}

// TriggerOption configures a TriggerBus.
type TriggerOption func(*TriggerBus)

// WithTriggerLogger sets the logger used for failing listeners.
func WithTriggerLogger(l *slog.Logger) TriggerOption {
	return func(b *TriggerBus) {
		b.logger = l
	}
}

// NewTriggerBus creates a bus carrying all known topics.
func NewTriggerBus(opts ...TriggerOption) *TriggerBus {
	b := &TriggerBus{
		signals: make(map[Topic]signals.Signal[struct{}]),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, t := range Topics {
		b.signals[t] = signals.NewSync[struct{}]()
	}
	return b
}

var defaultTriggers = NewTriggerBus()

// DefaultTriggers returns the process-wide trigger bus.
func DefaultTriggers() *TriggerBus {
	return defaultTriggers
}

// Subscribe adds fn as listener for topic under key.
// A key that is already subscribed to the topic is not added again.
func (b *TriggerBus) Subscribe(topic Topic, key string, fn func(ctx context.Context)) error {
	s, ok := b.signals[topic]
	if !ok {
		return fmt.Errorf("subscribe %q: %w", topic, ErrUnknownTopic)
	}
	s.AddListener(func(ctx context.Context, _ struct{}) {
		defer func() {
			if x := recover(); x != nil {
				b.logger.Error("Trigger listener panicked", "topic", topic, "listener", key, "error", x)
			}
		}()
		fn(ctx)
	}, key)
	return nil
}

// Unsubscribe removes the listener for topic registered under key.
func (b *TriggerBus) Unsubscribe(topic Topic, key string) {
	if s, ok := b.signals[topic]; ok {
		s.RemoveListener(key)
	}
}

// Fire notifies all listeners of topic.
func (b *TriggerBus) Fire(ctx context.Context, topic Topic) error {
	s, ok := b.signals[topic]
	if !ok {
		return fmt.Errorf("fire %q: %w", topic, ErrUnknownTopic)
	}
	s.Emit(ctx, struct{}{})
	return nil
}

// ListenerCount returns the number of listeners subscribed to topic.
func (b *TriggerBus) ListenerCount(topic Topic) int {
	s, ok := b.signals[topic]
	if !ok {
		return 0
	}
	return s.Len()
}
