package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"daybrief/internal/brief"
	"daybrief/internal/view"
)

// ReasoningMode records which path produced the delivered brief.
type ReasoningMode string

const (
	ModeLLM      ReasoningMode = "llm"
	ModeFallback ReasoningMode = "fallback"
)

// FallbackReason says why the deterministic fallback was used.
type FallbackReason string

const (
	FallbackLLMError         FallbackReason = "llm_error"
	FallbackValidationFailed FallbackReason = "validation_failed"
)

// Telemetry is emitted exactly once per pipeline run.
type Telemetry struct {
	ReasoningMode  ReasoningMode  `json:"reasoning_mode"`
	Attempt        int            `json:"attempt"`
	ValidationFail bool           `json:"validation_fail"`
	RepairUsed     bool           `json:"repair_used"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
}

// Outcome is the settled result of one run. Every run produces one: the
// pipeline never surfaces an error to its caller.
type Outcome struct {
	Brief     brief.Brief   `json:"brief"`
	View      view.View     `json:"view"`
	Issues    []brief.Issue `json:"issues"`
	Telemetry Telemetry     `json:"telemetry"`
}

// RunSink receives one telemetry record per run. Delivery is fire-and-forget;
// sink failures never affect the pipeline.
type RunSink interface {
	RecordRun(t Telemetry)
}

// Pipeline is the repair-loop controller: attempt, validate, one repair
// attempt with issue feedback, then the deterministic fallback. At most two
// synthesizer calls are ever made per run; that bound is a contract, not a
// tuning knob.
type Pipeline struct {
	synthesizer Synthesizer
	repairer    Synthesizer
	clock       func() time.Time
	sink        RunSink
	log         *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRepairer binds a distinct capability for the repair attempt. Without it
// the repair call goes to the primary synthesizer.
func WithRepairer(r Synthesizer) Option {
	return func(p *Pipeline) { p.repairer = r }
}

// WithClock injects the time source used for duration measurement.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithSink attaches a telemetry sink.
func WithSink(sink RunSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// NewPipeline builds a controller around the given synthesizer, which may be
// nil: every run then settles on the fallback brief with reason llm_error.
func NewPipeline(s Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		synthesizer: s,
		clock:       time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.repairer == nil {
		p.repairer = p.synthesizer
	}
	return p
}

// Run executes one synthesis cycle and always returns a usable outcome.
func (p *Pipeline) Run(ctx context.Context, input brief.Input) Outcome {
	start := p.clock()
	generatedAt := start

	// Attempt 1. Undecodable output is repairable: the raw text goes back to
	// the model with a synthetic issue, same as a validation failure. Any
	// other invocation error settles on the fallback immediately.
	var prior any
	var priorIssues []brief.Issue

	candidate, err := p.invoke(ctx, p.synthesizer, Request{Input: input, Attempt: 1})
	switch {
	case err == nil:
		first := brief.Normalize(candidate, input, generatedAt)
		r1 := brief.Validate(first)
		if r1.OK {
			return p.done(first, start, Telemetry{
				ReasoningMode: ModeLLM,
				Attempt:       1,
			}, nil)
		}
		prior, priorIssues = candidate, r1.Issues
	default:
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			p.log.Warn("synthesis failed, falling back",
				zap.Int("attempt", 1), zap.Error(err))
			return p.fallback(input, generatedAt, start, Telemetry{
				Attempt:        1,
				FallbackReason: FallbackLLMError,
			}, nil)
		}
		prior = decodeErr.Raw
		priorIssues = []brief.Issue{{
			Code:    brief.IssueUndecodableCandidate,
			Path:    "/",
			Message: decodeErr.Error(),
		}}
	}

	// Attempt 2: repair, seeded with the prior candidate and its issues.
	repaired, err := p.invoke(ctx, p.repairer, Request{
		Input:             input,
		Attempt:           2,
		PreviousCandidate: prior,
		Issues:            priorIssues,
	})
	if err != nil {
		p.log.Warn("repair synthesis failed, falling back",
			zap.Int("attempt", 2), zap.Error(err))
		return p.fallback(input, generatedAt, start, Telemetry{
			Attempt:        2,
			ValidationFail: true,
			RepairUsed:     true,
			FallbackReason: FallbackLLMError,
		}, priorIssues)
	}

	second := brief.Normalize(repaired, input, generatedAt)
	r2 := brief.Validate(second)
	if r2.OK {
		return p.done(second, start, Telemetry{
			ReasoningMode:  ModeLLM,
			Attempt:        2,
			ValidationFail: true,
			RepairUsed:     true,
		}, nil)
	}

	p.log.Warn("both attempts invalid, falling back",
		zap.Int("first_issues", len(priorIssues)),
		zap.Int("second_issues", len(r2.Issues)))
	return p.fallback(input, generatedAt, start, Telemetry{
		Attempt:        2,
		ValidationFail: true,
		RepairUsed:     true,
		FallbackReason: FallbackValidationFailed,
	}, append(append([]brief.Issue{}, priorIssues...), r2.Issues...))
}

func (p *Pipeline) invoke(ctx context.Context, s Synthesizer, req Request) (candidate any, err error) {
	if s == nil {
		return nil, ErrNoSynthesizer
	}
	// A panicking capability is treated like any other synthesis failure.
	defer func() {
		if r := recover(); r != nil {
			candidate = nil
			err = panicError{value: r}
		}
	}()
	return s.Invoke(ctx, req)
}

func (p *Pipeline) fallback(input brief.Input, generatedAt, start time.Time, t Telemetry, issues []brief.Issue) Outcome {
	t.ReasoningMode = ModeFallback
	return p.done(brief.BuildFallback(input, generatedAt), start, t, issues)
}

func (p *Pipeline) done(b brief.Brief, start time.Time, t Telemetry, issues []brief.Issue) Outcome {
	t.DurationMS = p.clock().Sub(start).Milliseconds()
	if p.sink != nil {
		p.sink.RecordRun(t)
	}
	p.log.Info("brief settled",
		zap.String("reasoning_mode", string(t.ReasoningMode)),
		zap.Int("attempt", t.Attempt),
		zap.Bool("repair_used", t.RepairUsed),
		zap.Int64("duration_ms", t.DurationMS))
	return Outcome{
		Brief:     b,
		View:      view.Project(b),
		Issues:    issues,
		Telemetry: t,
	}
}

type panicError struct{ value any }

func (e panicError) Error() string { return fmt.Sprintf("synthesizer panic: %v", e.value) }
