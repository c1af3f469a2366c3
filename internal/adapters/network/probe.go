// Package network provides connectivity oracles for the sync engines.
package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/jbctechsolutions/scribesync/internal/domain/errors"
	"github.com/jbctechsolutions/scribesync/internal/domain/outbox"
	"github.com/jbctechsolutions/scribesync/internal/infrastructure/logging"
)

// Probe defaults.
const (
	DefaultProbeInterval   = 15 * time.Second
	DefaultProbeTimeout    = 5 * time.Second
	DefaultDegradedLatency = 2 * time.Second
)

// ProbeConfig configures a ProbeOracle.
type ProbeConfig struct {
	URL             string
	Interval        time.Duration
	Timeout         time.Duration
	DegradedLatency time.Duration
	Logger          *logging.Logger
	Clock           clock.Clock
}

// Check is the outcome of a single probe.
type Check struct {
	Status    outbox.ConnectionStatus
	Latency   time.Duration
	Message   string
	CheckedAt time.Time
}

// ProbeOracle derives connectivity from periodic HEAD requests against a URL.
// Status is offline until the first probe completes.
type ProbeOracle struct {
	client *http.Client
	config ProbeConfig
	clk    clock.Clock
	logger *logging.Logger

	mu        sync.RWMutex
	status    outbox.ConnectionStatus
	lastCheck Check
	subs      *subscribers

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewProbeOracle creates a probe oracle. The probe loop starts with Start.
func NewProbeOracle(config ProbeConfig) (*ProbeOracle, error) {
	if config.URL == "" {
		return nil, errors.NewError(errors.CodeConfiguration, "probe URL is required", nil)
	}
	if config.Interval <= 0 {
		config.Interval = DefaultProbeInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	if config.DegradedLatency <= 0 {
		config.DegradedLatency = DefaultDegradedLatency
	}
	if config.Logger == nil {
		config.Logger = logging.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	return &ProbeOracle{
		client: &http.Client{
			// Redirects count as reachable.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		config: config,
		clk:    config.Clock,
		logger: config.Logger.With("component", "network_probe"),
		status: outbox.StatusOffline,
		subs:   newSubscribers(),
	}, nil
}

// Status returns the status from the most recent probe.
func (o *ProbeOracle) Status() outbox.ConnectionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// LastCheck returns the most recent probe result.
func (o *ProbeOracle) LastCheck() Check {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastCheck
}

// Subscribe registers fn for status transitions.
func (o *ProbeOracle) Subscribe(fn func(outbox.ConnectionStatus)) func() {
	return o.subs.add(fn)
}

// Check probes once, records the result, and notifies subscribers if the status changed.
func (o *ProbeOracle) Check(ctx context.Context) Check {
	c := o.probe(ctx)

	o.mu.Lock()
	prev := o.status
	o.status = c.Status
	o.lastCheck = c
	o.mu.Unlock()

	if prev != c.Status {
		o.logger.Info("connectivity changed",
			"from", prev.String(),
			"to", c.Status.String(),
			"latency_ms", c.Latency.Milliseconds(),
			"message", c.Message,
		)
		o.subs.notify(c.Status)
	}
	return c
}

func (o *ProbeOracle) probe(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	start := o.clk.Now()
	check := func(status outbox.ConnectionStatus, msg string) Check {
		now := o.clk.Now()
		return Check{Status: status, Latency: now.Sub(start), Message: msg, CheckedAt: now}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.config.URL, nil)
	if err != nil {
		return check(outbox.StatusOffline, err.Error())
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return check(outbox.StatusOffline, err.Error())
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= 500 {
		return check(outbox.StatusOffline, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	c := check(outbox.StatusOnline, fmt.Sprintf("HTTP %d", resp.StatusCode))
	if c.Latency > o.config.DegradedLatency {
		c.Status = outbox.StatusDegraded
	}
	return c
}

// Start probes once synchronously and then every Interval until Stop or ctx is done.
// Calling Start on a running oracle does nothing.
func (o *ProbeOracle) Start(ctx context.Context) {
	o.runMu.Lock()
	if o.running {
		o.runMu.Unlock()
		return
	}
	o.running = true
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	stop, done := o.stop, o.done
	o.runMu.Unlock()

	o.Check(ctx)
	go o.loop(ctx, stop, done)
}

// Stop ends the probe loop and waits for it to exit.
func (o *ProbeOracle) Stop() {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return
	}
	o.running = false
	close(o.stop)
	done := o.done
	o.runMu.Unlock()

	<-done
}

func (o *ProbeOracle) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-o.clk.After(o.config.Interval):
			o.Check(ctx)
		}
	}
}
