package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedChecker struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (c *scriptedChecker) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *scriptedChecker) set(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *scriptedChecker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:          time.Hour, // probes driven manually in tests
		ProbeTimeout:      time.Second,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
	}
}

func TestMonitorStartsOptimistic(t *testing.T) {
	m := NewStoreMonitor(testMonitorConfig(), &scriptedChecker{})
	if !m.Healthy() {
		t.Error("monitor starts unhealthy, want optimistic start")
	}
}

func TestProbeFlipsUnhealthyThenRecovers(t *testing.T) {
	ctx := context.Background()
	checker := &scriptedChecker{err: errors.New("connection refused")}
	m := NewStoreMonitor(testMonitorConfig(), checker)

	m.Probe(ctx)
	if m.Healthy() {
		t.Fatal("Healthy() = true after failed probe")
	}

	checker.set(nil)
	m.Probe(ctx)
	if !m.Healthy() {
		t.Fatal("Healthy() = false after store recovered")
	}
}

func TestProbeBoundsReconnectAttempts(t *testing.T) {
	ctx := context.Background()
	checker := &scriptedChecker{err: errors.New("down")}
	m := NewStoreMonitor(testMonitorConfig(), checker)

	m.Probe(ctx)
	if got := checker.callCount(); got != 3 {
		t.Errorf("probe made %d attempts, want 3", got)
	}
}

func TestProbeStopsRetryingOnSuccess(t *testing.T) {
	ctx := context.Background()
	checker := &scriptedChecker{}
	m := NewStoreMonitor(testMonitorConfig(), checker)

	m.Probe(ctx)
	if got := checker.callCount(); got != 1 {
		t.Errorf("probe made %d attempts, want 1 when first ping succeeds", got)
	}
}

func TestMonitorStartStop(t *testing.T) {
	cfg := testMonitorConfig()
	cfg.Interval = 5 * time.Millisecond
	checker := &scriptedChecker{}
	m := NewStoreMonitor(cfg, checker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	m.Start(ctx) // no-op

	deadline := time.After(2 * time.Second)
	for checker.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("monitor never probed")
		case <-time.After(time.Millisecond):
		}
	}

	m.Stop()
	m.Stop() // no-op

	settled := checker.callCount()
	time.Sleep(20 * time.Millisecond)
	if got := checker.callCount(); got != settled {
		t.Errorf("monitor probed after Stop: %d -> %d", settled, got)
	}
}
