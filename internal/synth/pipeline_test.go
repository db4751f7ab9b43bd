package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/brief"
)

var (
	pipeInput = brief.Input{
		Workspace:   "ws-1",
		MissionHint: "Ship it",
		Evidence: []brief.EvidenceInput{
			{ID: "e1", Source: "deploys", Entity: "api", Metric: "failed_deploys", ValueText: "2 failed deploys", FreshnessMinutes: 30},
		},
	}
	t0 = time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)
)

// mockSynth records every request it receives and delegates to invokeFunc.
type mockSynth struct {
	invokeFunc func(ctx context.Context, req Request) (any, error)
	calls      int
	requests   []Request
}

func (m *mockSynth) Invoke(ctx context.Context, req Request) (any, error) {
	m.calls++
	m.requests = append(m.requests, req)
	return m.invokeFunc(ctx, req)
}

// recordingSink captures telemetry records.
type recordingSink struct{ records []Telemetry }

func (r *recordingSink) RecordRun(t Telemetry) { r.records = append(r.records, t) }

func validCandidate() map[string]any {
	return map[string]any{
		"schema": brief.SchemaVersion,
		"mission": map[string]any{
			"title": "Stabilize deploys", "rationale": "Two failures overnight", "horizon": "today",
		},
		"priorities": []any{
			map[string]any{
				"id": "p1", "rank": float64(1), "headline": "Fix the deploy pipeline",
				"summary": "Roll back the flaky release step", "confidence": "high",
				"evidence_refs": []any{"e1"},
			},
		},
		"evidence": []any{
			map[string]any{
				"id": "e1", "source": "deploys", "entity": "api", "metric": "failed_deploys",
				"value_text": "2 failed deploys", "freshness_minutes": float64(30),
			},
		},
		"quick_reaction_prompt": "Start with the rollback?",
	}
}

// invalidCandidate normalizes into a brief whose priority cites no evidence.
func invalidCandidate() map[string]any {
	return map[string]any{
		"priorities": []any{
			map[string]any{"rank": float64(1), "headline": "unsupported claim"},
		},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestPipeline_FirstAttemptValid(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return validCandidate(), nil
	}}
	sink := &recordingSink{}
	p := NewPipeline(syn, WithClock(fixedClock(t0)), WithSink(sink))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 1, syn.calls)
	assert.Equal(t, Telemetry{ReasoningMode: ModeLLM, Attempt: 1}, outcome.Telemetry)
	assert.Empty(t, outcome.Issues)
	assert.Len(t, outcome.View.Sections, 4)
	require.Len(t, sink.records, 1, "telemetry is emitted exactly once per run")
	assert.Equal(t, outcome.Telemetry, sink.records[0])
}

func TestPipeline_RepairSucceeds(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, req Request) (any, error) {
		if req.Attempt == 1 {
			return invalidCandidate(), nil
		}
		return validCandidate(), nil
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 2, syn.calls)
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeLLM, Attempt: 2, ValidationFail: true, RepairUsed: true,
	}, outcome.Telemetry)
	assert.Empty(t, outcome.Issues)

	// The repair request must carry the prior candidate and its issues.
	repair := syn.requests[1]
	assert.NotNil(t, repair.PreviousCandidate)
	require.NotEmpty(t, repair.Issues)
	assert.Equal(t, brief.IssueMissingEvidenceRef, repair.Issues[0].Code)
}

func TestPipeline_BothAttemptsInvalid(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return invalidCandidate(), nil
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 2, syn.calls, "no retry beyond the single repair attempt")
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeFallback, Attempt: 2, ValidationFail: true,
		RepairUsed: true, FallbackReason: FallbackValidationFailed,
	}, outcome.Telemetry)
	assert.NotEmpty(t, outcome.Issues, "accumulated issues from both passes are returned")

	if diff := cmp.Diff(brief.BuildFallback(pipeInput, t0), outcome.Brief); diff != "" {
		t.Errorf("settled brief is not the deterministic fallback (-want +got):\n%s", diff)
	}
}

func TestPipeline_SynthesizerErrorBeforeRepair(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return nil, errors.New("model unavailable")
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 1, syn.calls)
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeFallback, Attempt: 1, FallbackReason: FallbackLLMError,
	}, outcome.Telemetry)
	assert.True(t, brief.Validate(outcome.Brief).OK)
}

func TestPipeline_RepairErrorFallsBack(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, req Request) (any, error) {
		if req.Attempt == 1 {
			return invalidCandidate(), nil
		}
		return nil, context.DeadlineExceeded
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 2, syn.calls)
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeFallback, Attempt: 2, ValidationFail: true,
		RepairUsed: true, FallbackReason: FallbackLLMError,
	}, outcome.Telemetry)
	assert.NotEmpty(t, outcome.Issues)
}

func TestPipeline_UndecodableFirstResponseIsRepaired(t *testing.T) {
	raw := "apologies, I cannot produce a brief right now"
	syn := &mockSynth{invokeFunc: func(_ context.Context, req Request) (any, error) {
		if req.Attempt == 1 {
			return DecodeCandidate(raw)
		}
		return validCandidate(), nil
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 2, syn.calls, "an undecodable response feeds the repair attempt")
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeLLM, Attempt: 2, ValidationFail: true, RepairUsed: true,
	}, outcome.Telemetry)

	// The repair request carries the raw text and a synthetic issue.
	repair := syn.requests[1]
	assert.Equal(t, raw, repair.PreviousCandidate)
	require.Len(t, repair.Issues, 1)
	assert.Equal(t, brief.IssueUndecodableCandidate, repair.Issues[0].Code)
}

func TestPipeline_UndecodableBothResponsesFallsBack(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return DecodeCandidate("still no json")
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 2, syn.calls)
	assert.Equal(t, Telemetry{
		ReasoningMode: ModeFallback, Attempt: 2, ValidationFail: true,
		RepairUsed: true, FallbackReason: FallbackLLMError,
	}, outcome.Telemetry)
	assert.True(t, brief.Validate(outcome.Brief).OK)
}

func TestPipeline_NilSynthesizerFallsBack(t *testing.T) {
	p := NewPipeline(nil, WithClock(fixedClock(t0)))
	outcome := p.Run(context.Background(), pipeInput)
	assert.Equal(t, ModeFallback, outcome.Telemetry.ReasoningMode)
	assert.Equal(t, FallbackLLMError, outcome.Telemetry.FallbackReason)
}

func TestPipeline_PanickingSynthesizerIsAbsorbed(t *testing.T) {
	syn := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		panic("synthesizer blew up")
	}}
	p := NewPipeline(syn, WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)
	assert.Equal(t, ModeFallback, outcome.Telemetry.ReasoningMode)
	assert.Equal(t, FallbackLLMError, outcome.Telemetry.FallbackReason)
	assert.True(t, brief.Validate(outcome.Brief).OK)
}

func TestPipeline_DistinctRepairCapability(t *testing.T) {
	primary := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return invalidCandidate(), nil
	}}
	repairer := &mockSynth{invokeFunc: func(_ context.Context, _ Request) (any, error) {
		return validCandidate(), nil
	}}
	p := NewPipeline(primary, WithRepairer(repairer), WithClock(fixedClock(t0)))

	outcome := p.Run(context.Background(), pipeInput)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, repairer.calls)
	assert.Equal(t, ModeLLM, outcome.Telemetry.ReasoningMode)
}

func TestScripted_ReplaysAndDecodesStrings(t *testing.T) {
	syn := Scripted(`{"quick_reaction_prompt":"from raw text"}`, validCandidate())

	v, err := syn.Invoke(context.Background(), Request{Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, "from raw text", v.(map[string]any)["quick_reaction_prompt"])

	_, err = syn.Invoke(context.Background(), Request{Attempt: 2})
	require.NoError(t, err)

	_, err = syn.Invoke(context.Background(), Request{Attempt: 3})
	assert.Error(t, err, "exhausted script fails like a dead model")
}
