package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferrovax/gatehouse/internal/registry"
)

// Frame is one captured camera frame. The pipeline never inspects the bytes
// itself; it hands them to the decoder and matcher collaborators.
type Frame []byte

// Decoder extracts a credential string from a frame. ok is false when the
// frame contains no scannable code.
type Decoder interface {
	Decode(ctx context.Context, frame Frame) (credential string, ok bool, err error)
}

// LiveMatcher confirms a live subject is present in the frame.
type LiveMatcher interface {
	Matches(ctx context.Context, frame Frame) (bool, error)
}

// Lookup is the read-only registry view the pipeline needs.
type Lookup interface {
	Lookup(ctx context.Context, externalID string) (*registry.Entry, error)
}

// DefaultStageTimeout bounds each pipeline stage. A stage that overruns is
// treated as that stage failing, not as a fatal error.
const DefaultStageTimeout = 2 * time.Second

// Pipeline evaluates frames in a fixed decode -> lookup -> live-match order,
// short-circuiting on the first failed stage. It is safe to call Evaluate
// repeatedly and concurrently; it has no side effects beyond the registry
// read.
type Pipeline struct {
	decoder      Decoder
	matcher      LiveMatcher
	lookup       Lookup
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewPipeline creates a pipeline. A zero stageTimeout uses DefaultStageTimeout.
func NewPipeline(decoder Decoder, matcher LiveMatcher, lookup Lookup, stageTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		decoder:      decoder,
		matcher:      matcher,
		lookup:       lookup,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Evaluate runs the three stages against one frame and returns a Verdict.
// A decode timeout or error yields NoCredential and a match timeout or error
// yields LivenessFailed, so a flaky collaborator degrades that stage rather
// than killing the cycle. A registry store error is the one case surfaced as
// an error: the caller cannot distinguish unknown-credential from
// store-down, so the cycle must be skipped instead of alerting.
func (p *Pipeline) Evaluate(ctx context.Context, frame Frame) (Verdict, error) {
	credential, ok, err := p.decode(ctx, frame)
	if err != nil {
		p.logger.Debug("decode stage failed", "error", err)
		return Verdict{Kind: NoCredential}, nil
	}
	if !ok {
		return Verdict{Kind: NoCredential}, nil
	}

	entry, err := p.lookupEntry(ctx, credential)
	if err != nil {
		return Verdict{}, fmt.Errorf("registry lookup for %q: %w", credential, err)
	}
	if entry == nil {
		return Verdict{Kind: CredentialUnknown, Credential: credential}, nil
	}

	matched, err := p.match(ctx, frame)
	if err != nil {
		p.logger.Debug("live-match stage failed", "credential", credential, "error", err)
		return Verdict{Kind: LivenessFailed, Credential: credential}, nil
	}
	if !matched {
		return Verdict{Kind: LivenessFailed, Credential: credential}, nil
	}

	return Verdict{Kind: Verified, Credential: credential, Entry: entry}, nil
}

func (p *Pipeline) decode(ctx context.Context, frame Frame) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	return p.decoder.Decode(ctx, frame)
}

func (p *Pipeline) lookupEntry(ctx context.Context, credential string) (*registry.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	entry, err := p.lookup.Lookup(ctx, credential)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("registry lookup timed out after %s: %w", p.stageTimeout, err)
	}
	return entry, err
}

func (p *Pipeline) match(ctx context.Context, frame Frame) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	return p.matcher.Matches(ctx, frame)
}
