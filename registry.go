package devicemap

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/ErikKalkoken/go-set"
)

// Observer receives the full device collection whenever the simulation state changes.
type Observer interface {
	// OnNotify is called with the complete current collection, never a diff.
	OnNotify(devices DeviceCollection) error
}

// ObserverFunc adapts a function to the Observer interface.
// Function values cannot be compared, so register a pointer to one.
type ObserverFunc func(devices DeviceCollection) error

// OnNotify implements Observer.
func (f *ObserverFunc) OnNotify(devices DeviceCollection) error {
	return (*f)(devices)
}

// Registry holds the current device collection and fans out changes to observers.
//
// Observers are notified synchronously in registration order.
// A failing observer is logged and the remaining observers are still notified.
type Registry struct {
	mu        sync.RWMutex
	devices   DeviceCollection
	observers []Observer
	members   set.Set[Observer]
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for fan-out failures.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		devices: DeviceCollection{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// RegisterObserver adds o to the notification set.
// Registering an observer that is already registered does nothing.
// Observers of a non-comparable type, like slices or maps, are ignored.
func (r *Registry) RegisterObserver(o Observer) {
	if !comparableObserver(o) {
		if o != nil {
			r.logger.Warn("Ignoring observer of non-comparable type", "observer", fmt.Sprintf("%T", o))
		}
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members.Contains(o) {
		return
	}
	r.members.Add(o)
	r.observers = append(r.observers, o)
}

// RemoveObserver removes o from the notification set.
// Removing an unknown observer does nothing.
func (r *Registry) RemoveObserver(o Observer) {
	if !comparableObserver(o) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.members.Contains(o) {
		return
	}
	r.members.Delete(o)
	for i, x := range r.observers {
		if x == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func comparableObserver(o Observer) bool {
	return o != nil && reflect.TypeOf(o).Comparable()
}

// ObserverCount returns the number of registered observers.
func (r *Registry) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

// Devices returns a copy of the current device collection.
func (r *Registry) Devices() DeviceCollection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices.Clone()
}

// Update replaces the current device collection and notifies all observers.
func (r *Registry) Update(devices DeviceCollection) {
	current := devices.Clone()
	if current == nil {
		current = DeviceCollection{}
	}
	r.mu.Lock()
	r.devices = current
	r.mu.Unlock()
	r.notify(current)
}

// notify delivers devices to every observer registered at the time of the call.
// The lock is not held while observers run, so an observer may deregister itself.
func (r *Registry) notify(devices DeviceCollection) {
	r.mu.RLock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()

	for _, o := range observers {
		if err := r.deliver(o, devices.Clone()); err != nil {
			r.logger.Warn("Failed to notify observer", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
}

func (r *Registry) deliver(o Observer, devices DeviceCollection) (err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("observer panicked: %v", x)
		}
	}()
	return o.OnNotify(devices)
}
