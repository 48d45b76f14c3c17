package verify

import "context"

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, frame Frame) (string, bool, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(ctx context.Context, frame Frame) (string, bool, error) {
	return f(ctx, frame)
}

// MatcherFunc adapts a function to the LiveMatcher interface.
type MatcherFunc func(ctx context.Context, frame Frame) (bool, error)

// Matches implements LiveMatcher.
func (f MatcherFunc) Matches(ctx context.Context, frame Frame) (bool, error) {
	return f(ctx, frame)
}

// PrefixDecoder is the development decoder: a frame whose bytes start with
// "CRED:" decodes to the remainder of the payload. It lets the simulator
// stage credentials without any optics.
type PrefixDecoder struct{}

const credPrefix = "CRED:"

// Decode implements Decoder.
func (PrefixDecoder) Decode(ctx context.Context, frame Frame) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s := string(frame)
	if len(s) > len(credPrefix) && s[:len(credPrefix)] == credPrefix {
		return s[len(credPrefix):], true, nil
	}
	return "", false, nil
}

// AlwaysMatcher is the development matcher: every non-empty frame counts
// as a live subject.
type AlwaysMatcher struct{}

// Matches implements LiveMatcher.
func (AlwaysMatcher) Matches(ctx context.Context, frame Frame) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return len(frame) > 0, nil
}
