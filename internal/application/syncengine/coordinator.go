package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/jbctechsolutions/scribesync/internal/application/ports"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
)

// DefaultInterval is the periodic sync interval used when Start is given none.
const DefaultInterval = 30 * time.Second

// CoordinatorConfig contains configuration options for the coordinator.
type CoordinatorConfig struct {
	Logger *logging.Logger
	Clock  clock.Clock
}

// CycleReport is the outcome of one engine's cycle within SyncAll.
type CycleReport struct {
	Queue    string
	Progress outbox.Progress
	Err      error
}

// Coordinator triggers sync cycles on every registered engine: periodically
// while online, and immediately when connectivity returns.
type Coordinator struct {
	oracle   ports.NetworkOracle
	registry *Registry
	logger   *logging.Logger
	clk      clock.Clock

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex

	mu          sync.Mutex
	running     bool
	lastStatus  outbox.ConnectionStatus
	stop        chan struct{}
	loopDone    chan struct{}
	unsubscribe func()
	triggered   sync.WaitGroup
}

// NewCoordinator creates a stopped coordinator with an empty registry.
func NewCoordinator(oracle ports.NetworkOracle, cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Coordinator{
		oracle:   oracle,
		registry: NewRegistry(),
		logger:   cfg.Logger,
		clk:      cfg.Clock,
	}
}

// Register adds an engine. Registering the same engine twice is a no-op.
func (c *Coordinator) Register(engine ports.Syncer) error {
	return c.registry.Register(engine)
}

// Unregister removes an engine. Unregistering an absent engine is a no-op.
func (c *Coordinator) Unregister(engine ports.Syncer) {
	c.registry.Unregister(engine)
}

// Engines returns the registered engines in registration order.
func (c *Coordinator) Engines() []ports.Syncer {
	return c.registry.Engines()
}

// Running reports whether Start has been called without a matching Stop.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start begins periodic and reconnect-triggered syncing, and syncs at once if
// the oracle reports online. Calling Start on a running coordinator does
// nothing. Cycles started by the coordinator run under ctx.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.lastStatus = c.oracle.Status()
	c.stop = make(chan struct{})
	c.loopDone = make(chan struct{})
	stop, loopDone := c.stop, c.loopDone
	online := c.lastStatus == outbox.StatusOnline
	c.mu.Unlock()

	unsubscribe := c.oracle.Subscribe(func(status outbox.ConnectionStatus) {
		c.onStatus(ctx, status)
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.logger.Info("sync coordinator started",
		"interval", interval.String(),
		"engines", c.registry.Count(),
		"status", c.lastStatusString(),
	)

	go c.loop(ctx, interval, stop, loopDone)

	if online {
		c.trigger(ctx, "start")
	}
}

// Stop cancels the timer and the oracle subscription. Cycles already
// running are left to finish; engines are not aborted.
func (c *Coordinator) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	unsubscribe, loopDone := c.unsubscribe, c.loopDone
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	<-loopDone
	c.logger.Info("sync coordinator stopped")
}

// Wait blocks until every coordinator-triggered SyncAll has returned.
func (c *Coordinator) Wait() {
	c.triggered.Wait()
}

// SyncAll runs one cycle on every registered engine concurrently and waits
// for all of them. Engine failures are logged, not returned.
func (c *Coordinator) SyncAll(ctx context.Context) []CycleReport {
	engines := c.registry.Engines()
	reports := make([]CycleReport, len(engines))

	var g errgroup.Group
	for i, engine := range engines {
		i, engine := i, engine
		g.Go(func() error {
			reports[i] = c.syncOne(ctx, engine)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

func (c *Coordinator) syncOne(ctx context.Context, engine ports.Syncer) (report CycleReport) {
	report.Queue = engine.Name()
	ctx = logging.WithQueue(ctx, report.Queue)

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "sync engine panicked", "panic", r)
			report.Err = panicError{value: r}
		}
	}()

	report.Progress, report.Err = engine.Sync(ctx)
	if report.Err != nil {
		c.logger.WarnContext(ctx, "sync cycle failed", "error", report.Err.Error())
	}
	return report
}

func (c *Coordinator) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-c.clk.After(interval):
			if c.oracle.Status() == outbox.StatusOnline {
				c.trigger(ctx, "timer")
			}
		}
	}
}

// onStatus fires SyncAll on a transition into online.
func (c *Coordinator) onStatus(ctx context.Context, status outbox.ConnectionStatus) {
	c.mu.Lock()
	prev := c.lastStatus
	c.lastStatus = status
	c.mu.Unlock()

	if status == outbox.StatusOnline && prev != outbox.StatusOnline {
		c.trigger(ctx, "reconnect")
	}
}

// trigger runs SyncAll in the background unless the coordinator is stopped.
func (c *Coordinator) trigger(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.triggered.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.triggered.Done()
		c.logger.DebugContext(ctx, "sync triggered", "reason", reason)
		c.SyncAll(ctx)
	}()
}

func (c *Coordinator) lastStatusString() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus.String()
}

// panicError reports a recovered engine panic in a CycleReport.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("sync engine panicked: %v", p.value)
}
