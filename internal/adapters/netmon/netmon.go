// Package netmon watches outbound connectivity and tells subscribers when it
// changes. The delivery queue subscribes so a reconnect flushes the backlog
// immediately instead of waiting for the next cycle.
package netmon

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulsegate/pkg/logger"
	"github.com/okian/pulsegate/pkg/metrics"
)

// Defaults for the connectivity probe.
const (
	defaultProbeTarget   = "1.1.1.1:443"
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Listener is told about connectivity transitions. Called from the monitor
// goroutine; must not block.
type Listener interface {
	ConnectivityChanged(online bool)
}

// Prober answers whether the network is currently reachable.
type Prober func(ctx context.Context) bool

// Monitor probes connectivity on an interval and fans transitions out to
// subscribers.
type Monitor struct {
	clk      clock.Clock
	probe    Prober
	interval time.Duration
	lg       logger.Logger

	mu        sync.Mutex
	online    bool
	listeners []Listener
}

// New creates a monitor with configuration options. The monitor assumes it
// is online until the first probe says otherwise.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		clk:      clock.New(),
		probe:    dialProber(defaultProbeTarget),
		interval: defaultProbeInterval,
		lg:       logger.Named("netmon"),
		online:   true,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// dialProber reports reachability by opening a TCP connection to target.
func dialProber(target string) Prober {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: defaultProbeTimeout}
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Subscribe registers a listener for connectivity transitions.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Online reports the last observed connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is done. The first probe fires immediately so the
// queue does not spend a whole interval trusting the optimistic default.
func (m *Monitor) Run(ctx context.Context) {
	m.check(ctx)

	ticker := m.clk.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check runs one probe and notifies subscribers on a transition.
func (m *Monitor) check(ctx context.Context) {
	online := m.probe(ctx)

	m.mu.Lock()
	changed := online != m.online
	m.online = online
	ls := make([]Listener, len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()

	metrics.UpdateNetworkOnline(online)
	if !changed {
		return
	}

	metrics.RecordNetworkTransition()
	if online {
		m.lg.Info(ctx, "network connectivity restored")
	} else {
		m.lg.Warn(ctx, "network connectivity lost")
	}
	for _, l := range ls {
		l.ConnectivityChanged(online)
	}
}
