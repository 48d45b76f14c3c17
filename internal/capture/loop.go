// Package capture runs the long-lived loop that feeds camera frames
// through the verification pipeline and into the gate. It is the only
// writer to the pipeline; the gate pulls the loop's verdicts through its
// own single-writer command path.
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ferrovax/gatehouse/internal/verify"
)

// FrameSource produces camera frames. Capture must respect ctx and return
// promptly on cancellation.
type FrameSource interface {
	Capture(ctx context.Context) (verify.Frame, error)
}

// Gate is the slice of the orchestrator the loop needs.
type Gate interface {
	Submit(v verify.Verdict) bool
	Busy() bool
}

// DefaultCadence matches the original deployment's 10 frames/second scan
// rate.
const DefaultCadence = 100 * time.Millisecond

// captureErrorLogEvery throttles camera failure logging; one line per this
// many consecutive failures.
const captureErrorLogEvery = 50

// Loop drives capture -> evaluate -> submit at a fixed cadence.
type Loop struct {
	source   FrameSource
	pipeline *verify.Pipeline
	gate     Gate
	cadence  time.Duration
	logger   *slog.Logger

	consecutiveErrs atomic.Int64
}

// NewLoop creates a capture loop. A zero cadence uses DefaultCadence.
func NewLoop(source FrameSource, pipeline *verify.Pipeline, gate Gate, cadence time.Duration, logger *slog.Logger) *Loop {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:   source,
		pipeline: pipeline,
		gate:     gate,
		cadence:  cadence,
		logger:   logger,
	}
}

// CameraAvailable reports whether the last capture attempt succeeded.
func (l *Loop) CameraAvailable() bool {
	return l.consecutiveErrs.Load() == 0
}

// Run drives the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("capture loop stopping")
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	// While a door cycle is in flight the gate would drop anything we
	// submit; skip the capture work entirely.
	if l.gate.Busy() {
		return
	}

	frame, err := l.source.Capture(ctx)
	if err != nil {
		n := l.consecutiveErrs.Add(1)
		if n == 1 || n%captureErrorLogEvery == 0 {
			l.logger.Error("frame capture failed", "consecutive", n, "error", err)
		}
		return
	}
	if l.consecutiveErrs.Swap(0) > 0 {
		l.logger.Info("camera recovered")
	}

	verdict, err := l.pipeline.Evaluate(ctx, frame)
	if err != nil {
		// Registry store error: skip the cycle rather than mistake it
		// for an unknown credential.
		l.logger.Warn("verification skipped", "error", err)
		return
	}
	if verdict.Kind == verify.NoCredential {
		return
	}
	l.gate.Submit(verdict)
}
