// Package synth orchestrates brief synthesis: the external model capability,
// candidate decoding, and the bounded attempt/repair/fallback loop.
package synth

import (
	"context"
	"errors"

	"daybrief/internal/brief"
)

// Request is one synthesis invocation. Attempt 2 carries the first attempt's
// candidate and validation issues back to the model as repair feedback.
type Request struct {
	Input             brief.Input
	Attempt           int
	PreviousCandidate any
	Issues            []brief.Issue
}

// Synthesizer produces a JSON-like candidate brief. Implementations may fail
// with any error; the pipeline treats every failure identically. A pipeline
// run invokes a Synthesizer at most twice.
type Synthesizer interface {
	Invoke(ctx context.Context, req Request) (any, error)
}

// ErrNoSynthesizer is returned when no capability is bound at all, which the
// pipeline absorbs into the fallback path like any other synthesis failure.
var ErrNoSynthesizer = errors.New("no synthesizer bound")

// Func adapts a plain function to the Synthesizer interface.
type Func func(ctx context.Context, req Request) (any, error)

// Invoke implements Synthesizer.
func (f Func) Invoke(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Scripted returns a Synthesizer that replays the given candidates in order,
// one per invocation, then fails. Raw strings are decoded as model output;
// any other value is returned as-is. Used by tests and by the delivery
// surface's test-double hook.
func Scripted(candidates ...any) Synthesizer {
	i := 0
	return Func(func(_ context.Context, _ Request) (any, error) {
		if i >= len(candidates) {
			return nil, errors.New("scripted synthesizer exhausted")
		}
		c := candidates[i]
		i++
		if raw, ok := c.(string); ok {
			return DecodeCandidate(raw)
		}
		return c, nil
	})
}
