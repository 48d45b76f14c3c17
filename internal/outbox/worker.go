package outbox

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ferrovax/gatehouse/internal/attendance"
)

// Mirror is the remote store the worker replicates into. Upsert must be
// safe to retry: the (subject, day) conflict key makes duplicate deliveries
// converge instead of duplicating rows.
type Mirror interface {
	Upsert(ctx context.Context, rec attendance.Record) error
}

// JobMetrics reports worker activity to the centralized background-job
// metrics.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// WorkerConfig configures the replication worker.
type WorkerConfig struct {
	// Interval is the drain cadence.
	Interval time.Duration
	// BatchSize bounds how many items one drain picks up.
	BatchSize int
	// MaxAttempts is the attempt count after which an item is parked.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// DrainTimeout bounds one whole drain pass.
	DrainTimeout time.Duration
	// Logger for worker activity.
	Logger *slog.Logger
	// Metrics for background-job tracking. May be nil.
	Metrics JobMetrics
}

// Worker defaults.
const (
	DefaultDrainInterval = 10 * time.Second
	DefaultBatchSize     = 50
	DefaultMaxAttempts   = 8
	DefaultBaseBackoff   = 5 * time.Second
	DefaultMaxBackoff    = 10 * time.Minute
	DefaultDrainTimeout  = 30 * time.Second
)

// JobTypeReplication labels this worker in the job metrics.
const JobTypeReplication = "mirror_replication"

// Worker periodically drains the outbox into the remote mirror. It runs
// independently of gate cycles and tolerates the mirror being unreachable
// for arbitrarily long: items just accumulate and back off.
type Worker struct {
	config WorkerConfig
	repo   Repository
	mirror Mirror

	mu      sync.Mutex
	rng     *rand.Rand // protected by mu
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWorker creates a replication worker.
func NewWorker(config WorkerConfig, repo Repository, mirror Mirror) *Worker {
	if config.Interval <= 0 {
		config.Interval = DefaultDrainInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultBaseBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = DefaultMaxBackoff
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Worker{
		config: config,
		repo:   repo,
		mirror: mirror,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the periodic drain. Returns immediately; the worker runs in
// a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current drain to end.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Info("replication worker stopping due to context cancellation")
			return
		case <-w.stopCh:
			w.config.Logger.Info("replication worker stopping due to stop signal")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain replicates one batch of due items. Exported so tests and the admin
// surface can force a pass without waiting for the ticker.
func (w *Worker) Drain(parentCtx context.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parentCtx, w.config.DrainTimeout)
	defer cancel()

	items, err := w.repo.Due(ctx, time.Now(), w.config.BatchSize)
	if err != nil {
		w.config.Logger.Error("outbox read failed", "error", err)
		w.report("failure", start, "outbox_read")
		return
	}
	if len(items) == 0 {
		return
	}

	delivered, failed := 0, 0
	for _, it := range items {
		select {
		case <-ctx.Done():
			w.config.Logger.Warn("drain pass timed out", "remaining", len(items)-delivered-failed)
			w.report("failure", start, "timeout")
			return
		default:
		}
		if w.replicate(ctx, it) {
			delivered++
		} else {
			failed++
		}
	}

	w.config.Logger.Info("outbox drained",
		"delivered", delivered,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds())
	status := "success"
	if failed > 0 {
		status = "failure"
	}
	w.report(status, start, "")
}

// replicate attempts one item; returns true when the mirror acknowledged.
func (w *Worker) replicate(ctx context.Context, it Item) bool {
	err := w.mirror.Upsert(ctx, it.Record())
	if err == nil {
		if err := w.repo.MarkDone(ctx, it.ID); err != nil {
			w.config.Logger.Error("outbox delete failed after ack", "item", it.ID, "error", err)
		}
		return true
	}

	attempts := it.Attempts + 1
	if attempts >= w.config.MaxAttempts {
		// Parked, not discarded: the record stays for manual inspection
		// and the parked count is surfaced through Counts.
		if perr := w.repo.Park(ctx, it.ID, attempts); perr != nil {
			w.config.Logger.Error("outbox park failed", "item", it.ID, "error", perr)
			return false
		}
		w.config.Logger.Warn("outbox item parked for manual inspection",
			"item", it.ID,
			"subject", it.SubjectID,
			"day", it.Day,
			"attempts", attempts,
			"error", err)
		if w.config.Metrics != nil {
			w.config.Metrics.IncJobErrors(JobTypeReplication, "parked")
		}
		return false
	}

	next := time.Now().Add(w.backoff(attempts))
	if rerr := w.repo.Reschedule(ctx, it.ID, attempts, next); rerr != nil {
		w.config.Logger.Error("outbox reschedule failed", "item", it.ID, "error", rerr)
		return false
	}
	w.config.Logger.Warn("mirror upsert failed, will retry",
		"item", it.ID,
		"subject", it.SubjectID,
		"attempt", attempts,
		"next_retry_at", next,
		"error", err)
	return false
}

// backoff computes base * 2^(attempts-1) capped at MaxBackoff, with up to
// 25% jitter so a recovering mirror is not hit by a thundering herd.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.config.MaxBackoff {
			d = w.config.MaxBackoff
			break
		}
	}
	w.mu.Lock()
	jitter := time.Duration(w.rng.Int63n(int64(d)/4 + 1))
	w.mu.Unlock()
	return d + jitter
}

func (w *Worker) report(status string, start time.Time, errorType string) {
	if w.config.Metrics == nil {
		return
	}
	w.config.Metrics.IncJobsTotal(JobTypeReplication, status)
	w.config.Metrics.ObserveJobDuration(JobTypeReplication, time.Since(start).Seconds())
	if errorType != "" {
		w.config.Metrics.IncJobErrors(JobTypeReplication, errorType)
	}
}
