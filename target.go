package devicemap

import "context"

// Target represents a destination for rendered map descriptions.
type Target interface {
	// Update delivers a new render description to the target.
	// It is called with the view locked, so it must not fire triggers or
	// call back into the view synchronously. Do that from another goroutine.
	Update(ctx context.Context, r *RenderDescription) error

	// Close cleans up the target.
	Close() error

	// Name returns a descriptive name for logging.
	Name() string
}
