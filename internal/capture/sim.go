package capture

import (
	"context"
	"sync"

	"github.com/ferrovax/gatehouse/internal/verify"
)

// SimSource is a scriptable frame source for development and tests. It
// returns whatever frame was last staged, or an empty frame when nothing
// is staged.
type SimSource struct {
	mu    sync.Mutex
	frame verify.Frame
	err   error
}

// NewSimSource creates a source producing empty frames.
func NewSimSource() *SimSource {
	return &SimSource{}
}

// Stage sets the frame returned by subsequent Capture calls.
func (s *SimSource) Stage(frame verify.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
	s.err = nil
}

// Fail makes subsequent Capture calls return err. Pass nil to clear.
func (s *SimSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Capture implements FrameSource.
func (s *SimSource) Capture(ctx context.Context) (verify.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}
