// Package syncengine drains local outbox queues against the remote service.
//
// An Engine owns one queue (one work type). A Coordinator decides when every
// registered engine should run: on a periodic timer while online, and
// immediately whenever connectivity comes back.
package syncengine

import (
	"fmt"
	"time"

	"github.com/juju/clock"

	domainerrors "github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/tracing"
)

// Default engine settings.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultConcurrency = 2
	DefaultMinQuality  = outbox.StatusOnline
)

// Options configures an Engine. Zero and negative values fall back to defaults.
type Options struct {
	Name                 string                  // Queue name used in events and logs
	MaxRetries           int                     // Attempts before an item is failed-but-retained
	RetryDelay           time.Duration           // Base for exponential backoff
	Concurrency          int                     // Max simultaneous deliveries
	MinConnectionQuality outbox.ConnectionStatus // Minimum oracle status required to run

	Logger *logging.Logger
	Tracer *tracing.Tracer
	Clock  clock.Clock
}

// DefaultOptions returns the default engine options for the named queue.
func DefaultOptions(name string) Options {
	return Options{
		Name:                 name,
		MaxRetries:           DefaultMaxRetries,
		RetryDelay:           DefaultRetryDelay,
		Concurrency:          DefaultConcurrency,
		MinConnectionQuality: DefaultMinQuality,
	}
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MinConnectionQuality == "" {
		o.MinConnectionQuality = DefaultMinQuality
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Tracer == nil {
		o.Tracer = tracing.Default()
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

// Validate checks fields that have no sensible fallback.
func (o Options) Validate() error {
	if o.Name == "" {
		return domainerrors.NewError(domainerrors.CodeValidation, "engine name is required", nil)
	}
	if o.MinConnectionQuality != "" && !o.MinConnectionQuality.Valid() {
		return domainerrors.NewError(domainerrors.CodeValidation, "invalid engine options",
			fmt.Errorf("%w: %q", domainerrors.ErrInvalidConnectionQuality, o.MinConnectionQuality))
	}
	return nil
}
