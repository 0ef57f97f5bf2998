package devicemap

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"
)

// MapView is a device map bound to a registry and a trigger bus.
//
// An inactive view is not registered anywhere. Activate registers it with the
// registry and subscribes it to the trigger topics. Deactivate undoes both,
// detaching triggers before leaving the registry.
type MapView struct {
	key      string
	registry *Registry
	triggers *TriggerBus
	logger   *slog.Logger

	mu      sync.Mutex
	targets []Target
	active  bool
	devices DeviceCollection
	state   ViewState
	last    *RenderDescription
	renders int
}

// ViewOption configures a MapView.
type ViewOption func(*MapView)

// WithTarget adds an output target to the view.
func WithTarget(t Target) ViewOption {
	return func(v *MapView) {
		v.targets = append(v.targets, t)
	}
}

// WithViewLogger sets the logger of the view.
func WithViewLogger(l *slog.Logger) ViewOption {
	return func(v *MapView) {
		v.logger = l
	}
}

// WithKey sets the key the view uses for its trigger subscriptions.
func WithKey(key string) ViewOption {
	return func(v *MapView) {
		v.key = key
	}
}

// NewMapView creates an inactive view.
// A nil registry or bus selects the process-wide instance.
func NewMapView(registry *Registry, triggers *TriggerBus, opts ...ViewOption) *MapView {
	if registry == nil {
		registry = Default()
	}
	if triggers == nil {
		triggers = DefaultTriggers()
	}
	v := &MapView{
		key:      generateUniqueID(),
		registry: registry,
		triggers: triggers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddTarget adds an output target.
func (v *MapView) AddTarget(t Target) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = append(v.targets, t)
	v.last = nil
}

// Key returns the subscription key of the view.
func (v *MapView) Key() string {
	return v.key
}

// Activate registers the view and subscribes it to the trigger topics.
// The view renders the registry's current devices right away.
// Activating an active view does nothing.
func (v *MapView) Activate(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active {
		return nil
	}
	v.registry.RegisterObserver(v)
	if err := v.subscribe(); err != nil {
		v.unsubscribe()
		v.registry.RemoveObserver(v)
		return fmt.Errorf("activate view: %w", err)
	}
	v.active = true
	v.devices = v.registry.Devices()
	_, err := v.render(ctx)
	return err
}

// Deactivate unsubscribes the view from the triggers and removes it from the registry.
// Deactivating an inactive view does nothing.
func (v *MapView) Deactivate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return
	}
	v.unsubscribe()
	v.registry.RemoveObserver(v)
	v.active = false
}

func (v *MapView) subscribe() error {
	if err := v.triggers.Subscribe(TopicCycleBackground, v.key, func(ctx context.Context) {
		if err := v.CycleBackground(ctx); err != nil {
			v.logger.Warn("Failed to render after background change", "view", v.key, "error", err)
		}
	}); err != nil {
		return err
	}
	return v.triggers.Subscribe(TopicToggleIsometric, v.key, func(ctx context.Context) {
		if err := v.ToggleIsometric(ctx); err != nil {
			v.logger.Warn("Failed to render after projection change", "view", v.key, "error", err)
		}
	})
}

func (v *MapView) unsubscribe() {
	v.triggers.Unsubscribe(TopicCycleBackground, v.key)
	v.triggers.Unsubscribe(TopicToggleIsometric, v.key)
}

// OnNotify implements Observer. The device cache is replaced wholesale.
func (v *MapView) OnNotify(devices DeviceCollection) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.devices = devices.Clone()
	if !v.active {
		return nil
	}
	_, err := v.render(context.Background())
	return err
}

// CycleBackground selects the next background pattern and re-renders.
func (v *MapView) CycleBackground(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = v.state.CycledPattern()
	_, err := v.render(ctx)
	return err
}

// ToggleIsometric flips between the top-down and the isometric projection and re-renders.
func (v *MapView) ToggleIsometric(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = v.state.ToggledIsometric()
	_, err := v.render(ctx)
	return err
}

// Render projects the cached devices and delivers the result to all targets.
func (v *MapView) Render(ctx context.Context) (*RenderDescription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.render(ctx)
}

// render must be called with mu held.
// Targets are skipped when the result equals the last delivered description.
func (v *MapView) render(ctx context.Context) (*RenderDescription, error) {
	r := Project(v.devices, v.state)
	v.renders++
	if len(r.Skipped) > 0 {
		v.logger.Warn("Skipped malformed devices", "view", v.key, "devices", r.Skipped)
	}
	if r.Equal(v.last) {
		return r, nil
	}
	v.last = r

	var lastErr error
	for _, t := range v.targets {
		if err := t.Update(ctx, r); err != nil {
			lastErr = fmt.Errorf("target %s: %w", t.Name(), err)
			v.logger.Warn("Failed to update target", "view", v.key, "target", t.Name(), "error", err)
		}
	}
	return r, lastErr
}

// Active reports whether the view is active.
func (v *MapView) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// State returns the presentation state.
func (v *MapView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Devices returns a copy of the cached devices.
func (v *MapView) Devices() DeviceCollection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.devices.Clone()
}

// Last returns the last description delivered to the targets.
func (v *MapView) Last() *RenderDescription {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Renders returns how often the view has been projected.
func (v *MapView) Renders() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders
}

// Close deactivates the view and closes all targets.
func (v *MapView) Close() error {
	v.Deactivate()
	v.mu.Lock()
	targets := v.targets
	v.targets = nil
	v.mu.Unlock()

	var lastErr error
	for _, t := range targets {
		if err := t.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func generateUniqueID() string {
	currentTime := time.Now().UnixNano()
	randomNumber, _ := rand.Int(rand.Reader, big.NewInt(1000000))
	return fmt.Sprintf("view-%d-%d", currentTime, randomNumber)
}
