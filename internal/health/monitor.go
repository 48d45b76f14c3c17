package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// JobMetrics reports probe activity to the centralized background-job
// metrics.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// JobTypeStoreProbe labels the monitor in the job metrics.
const JobTypeStoreProbe = "store_probe"

// MonitorConfig configures the store resilience monitor.
type MonitorConfig struct {
	// Interval between probes.
	Interval time.Duration
	// ProbeTimeout bounds one probe (including reconnect attempts).
	ProbeTimeout time.Duration
	// ReconnectAttempts bounds how many back-to-back probes one cycle
	// makes before declaring the store down.
	ReconnectAttempts int
	// ReconnectDelay separates attempts within one cycle.
	ReconnectDelay time.Duration
	// Logger for monitor activity.
	Logger *slog.Logger
	// Metrics for background-job tracking. May be nil.
	Metrics JobMetrics
}

// Monitor defaults.
const (
	DefaultProbeInterval     = 15 * time.Second
	DefaultProbeTimeout      = 10 * time.Second
	DefaultReconnectAttempts = 3
	DefaultReconnectDelay    = time.Second
)

// StoreMonitor periodically probes the local store and exposes the last
// known health as a boolean signal. Request-path callers consult the
// signal and fail fast; only the monitor ever pays reconnect latency.
type StoreMonitor struct {
	config  MonitorConfig
	checker Checker

	healthy atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewStoreMonitor creates a monitor that starts out optimistic: the store
// is considered healthy until the first probe says otherwise.
func NewStoreMonitor(config MonitorConfig, checker Checker) *StoreMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultProbeInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	if config.ReconnectAttempts <= 0 {
		config.ReconnectAttempts = DefaultReconnectAttempts
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultReconnectDelay
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	m := &StoreMonitor{config: config, checker: checker}
	m.healthy.Store(true)
	return m
}

// Healthy returns the last probed store health.
func (m *StoreMonitor) Healthy() bool {
	return m.healthy.Load()
}

// Start begins periodic probing. Returns immediately.
func (m *StoreMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop signals the monitor to stop and waits for it to finish.
func (m *StoreMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *StoreMonitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.config.Logger.Info("store monitor stopping due to context cancellation")
			return
		case <-m.stopCh:
			m.config.Logger.Info("store monitor stopping due to stop signal")
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs one health cycle: a ping, then a bounded number of reconnect
// attempts before flipping the signal to unhealthy. Exported so startup
// and tests can force a probe without waiting for the ticker.
func (m *StoreMonitor) Probe(parentCtx context.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parentCtx, m.config.ProbeTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= m.config.ReconnectAttempts; attempt++ {
		err = m.checker.HealthCheck(ctx)
		if err == nil {
			break
		}
		if attempt < m.config.ReconnectAttempts {
			m.config.Logger.Warn("store probe failed, retrying",
				"attempt", attempt,
				"max_attempts", m.config.ReconnectAttempts,
				"error", err)
			select {
			case <-ctx.Done():
				attempt = m.config.ReconnectAttempts
			case <-time.After(m.config.ReconnectDelay):
			}
		}
	}

	was := m.healthy.Load()
	now := err == nil
	m.healthy.Store(now)

	switch {
	case was && !now:
		m.config.Logger.Error("store marked unhealthy", "error", err)
	case !was && now:
		m.config.Logger.Info("store recovered")
	}

	if m.config.Metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
			m.config.Metrics.IncJobErrors(JobTypeStoreProbe, "probe_failed")
		}
		m.config.Metrics.IncJobsTotal(JobTypeStoreProbe, status)
		m.config.Metrics.ObserveJobDuration(JobTypeStoreProbe, time.Since(start).Seconds())
	}
}
