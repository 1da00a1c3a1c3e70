package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lukasbauer/aloud/internal/tts"
)

// Monitor tracks recent success/failure outcomes for one provider and
// condenses them into the coarse three-valued status the router
// consumes. Optionally it runs a periodic reachability probe whose
// results feed the same window.
type Monitor struct {
	windowSize    int
	failThreshold int
	probe         Probe
	probeInterval time.Duration
	probeTimeout  time.Duration

	mu          sync.Mutex
	window      []bool // true = success, newest last
	consecutive int    // consecutive failures
	running     bool
	stopCh      chan struct{}
}

// Probe checks backend reachability. A nil error counts as a success.
type Probe func(ctx context.Context) error

// Config tunes a monitor. Zero values pick the defaults.
type Config struct {
	WindowSize       int           // outcomes kept, default 10
	FailureThreshold int           // consecutive failures before unhealthy, default 3
	Probe            Probe         // optional periodic reachability check
	ProbeInterval    time.Duration // default 30s
	ProbeTimeout     time.Duration // default 5s
}

// New creates a monitor. It starts in the healthy state: health is
// earned by default and lost through observed failures.
func New(cfg Config) *Monitor {
	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = 10
	}
	failThreshold := cfg.FailureThreshold
	if failThreshold <= 0 {
		failThreshold = 3
	}
	probeInterval := cfg.ProbeInterval
	if probeInterval <= 0 {
		probeInterval = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Monitor{
		windowSize:    windowSize,
		failThreshold: failThreshold,
		probe:         cfg.Probe,
		probeInterval: probeInterval,
		probeTimeout:  probeTimeout,
	}
}

// StartMonitoring begins the periodic probe, if one is configured.
// Idempotent.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.probe == nil {
		m.running = true
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	go m.probeLoop(m.stopCh)
}

// StopMonitoring halts the periodic probe. Idempotent.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
}

func (m *Monitor) probeLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
			err := m.probe(ctx)
			cancel()
			if err != nil {
				m.RecordFailure()
			} else {
				m.RecordSuccess()
			}
		}
	}
}

// RecordSuccess notes one successful synthesis.
func (m *Monitor) RecordSuccess() { m.record(true) }

// RecordFailure notes one failed synthesis.
func (m *Monitor) RecordFailure() { m.record(false) }

func (m *Monitor) record(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, success)
	if len(m.window) > m.windowSize {
		m.window = m.window[1:]
	}
	if success {
		m.consecutive = 0
	} else {
		m.consecutive++
	}
}

// Status condenses the window: enough consecutive failures mean
// unhealthy, any recent failure means degraded, otherwise healthy. A
// monitor with no recorded outcomes is healthy.
func (m *Monitor) Status() tts.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.consecutive >= m.failThreshold {
		return tts.HealthUnhealthy
	}
	for _, ok := range m.window {
		if !ok {
			return tts.HealthDegraded
		}
	}
	return tts.HealthHealthy
}

// TCPProbe checks that a TCP connection to address can be established.
func TCPProbe(address string) Probe {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("health: dial %s: %w", address, err)
		}
		return conn.Close()
	}
}

// HTTPProbe checks that url answers with a 2xx status.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("health: create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("health: get %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("health: %s returned status %d", url, resp.StatusCode)
		}
		return nil
	}
}
