package devicemap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoProvider is returned when a feed has no state provider.
var ErrNoProvider = errors.New("no state provider set")

// ErrAlreadyStarted is returned when a feed is started twice.
var ErrAlreadyStarted = errors.New("feed already started")

// Feed periodically pulls devices from a StateProvider into a Registry.
// It is the producer side of the registry.
type Feed struct {
	mu       sync.RWMutex
	provider StateProvider
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// FeedOption configures the Feed.
type FeedOption func(*Feed)

// WithFeedInterval sets the update interval for periodic updates.
func WithFeedInterval(d time.Duration) FeedOption {
	return func(f *Feed) {
		f.interval = d
	}
}

// WithFeedLogger sets the logger used for provider failures.
func WithFeedLogger(l *slog.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = l
	}
}

// NewFeed creates a new Feed publishing into registry.
// A nil registry selects the process-wide one.
func NewFeed(registry *Registry, opts ...FeedOption) *Feed {
	if registry == nil {
		registry = Default()
	}
	f := &Feed{
		registry: registry,
		interval: time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetStateProvider sets the source of devices.
func (f *Feed) SetStateProvider(p StateProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider = p
}

// Start publishes once and then keeps publishing every interval until ctx ends or Stop is called.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	f.mu.Unlock()

	if err := f.Tick(); err != nil {
		f.logger.Warn("Initial device update failed", "error", err)
	}

	go f.run(ctx)
	return nil
}

func (f *Feed) run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Tick(); err != nil {
				f.logger.Warn("Device update failed", "error", err)
			}
		}
	}
}

// Stop stops periodic updates and waits for the loop to end.
func (f *Feed) Stop() {
	f.mu.Lock()
	done := f.done
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Tick pulls devices from the provider and publishes them right away.
// On provider failure the registry keeps its current devices.
func (f *Feed) Tick() error {
	f.mu.RLock()
	provider := f.provider
	f.mu.RUnlock()

	if provider == nil {
		return ErrNoProvider
	}
	devices, err := provider.GetDevices()
	if err != nil {
		return fmt.Errorf("failed to get devices: %w", err)
	}
	f.registry.Update(devices)
	return nil
}
