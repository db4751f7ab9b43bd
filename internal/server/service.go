// Package server exposes the delivery API surface and the service that ties
// the scheduler, pipeline, lifecycle and store together.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"daybrief/internal/brief"
	"daybrief/internal/lifecycle"
	"daybrief/internal/schedule"
	"daybrief/internal/synth"
)

// StateStore is the persistence the service needs. *store.Store satisfies it;
// tests may pass nil to run in-memory only.
type StateStore interface {
	SaveRuntime(ctx context.Context, workspace string, r schedule.Runtime) error
	SaveTriggers(ctx context.Context, workspace string, triggers []schedule.TriggerState) error
	SavePresentation(ctx context.Context, record *lifecycle.Record) error
}

// Service runs refresh cycles. Its mutex serializes whole runs: a trigger
// evaluation, the pipeline's external calls, the tracker update and the
// delivery all happen for one caller at a time per workspace runtime.
type Service struct {
	mu sync.Mutex

	workspace   string
	scheduler   *schedule.Scheduler
	synthesizer synth.Synthesizer
	sink        synth.RunSink
	record      *lifecycle.Record
	store       StateStore
	clock       func() time.Time
	log         *zap.Logger
}

// NewService wires the refresh service. synthesizer may be nil (every run
// then settles on the fallback brief); store may be nil.
func NewService(workspace string, scheduler *schedule.Scheduler, synthesizer synth.Synthesizer,
	sink synth.RunSink, record *lifecycle.Record, store StateStore, log *zap.Logger) *Service {
	if record == nil {
		record = lifecycle.NewRecord(workspace)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		workspace:   workspace,
		scheduler:   scheduler,
		synthesizer: synthesizer,
		sink:        sink,
		record:      record,
		store:       store,
		clock:       time.Now,
		log:         log,
	}
}

// WithClock injects the service time source. Test hook.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// RefreshResult is what one trigger event produced.
type RefreshResult struct {
	Decision  schedule.Decision
	Outcome   *synth.Outcome
	Writeback *OverrideWriteback
}

// OverrideWriteback confirms a user reaction recorded during a refresh call.
type OverrideWriteback struct {
	RecordedAt              time.Time              `json:"recorded_at"`
	Reaction                lifecycle.OverrideType `json:"reaction"`
	AppliedToBriefGenerated time.Time              `json:"applied_to_brief_generated_at"`
	Status                  string                 `json:"status"`
}

// Refresh evaluates the trigger and, if it fires, runs the full pipeline,
// feeds the degradation tracker, delivers the brief, and optionally applies
// an inline user reaction. testCandidates, when non-empty, bind a scripted
// synthesizer for this run instead of the production capability.
func (s *Service) Refresh(ctx context.Context, triggerType string, input brief.Input,
	reaction *lifecycle.Override, testCandidates []any) (RefreshResult, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	decision := s.scheduler.Evaluate(triggerType, now)
	result := RefreshResult{Decision: decision}
	if !decision.Fired {
		return result, nil
	}

	syn := s.synthesizer
	if len(testCandidates) > 0 {
		syn = synth.Scripted(testCandidates...)
	}
	pipeline := synth.NewPipeline(syn,
		synth.WithClock(s.clock),
		synth.WithSink(s.sink),
		synth.WithLogger(s.log))

	outcome := pipeline.Run(ctx, input)
	result.Outcome = &outcome

	s.scheduler.ObserveOutcome(outcome.Brief.OverallConfidence())
	s.record.Deliver(outcome.Brief, outcome.View, s.clock())

	if reaction != nil {
		wb, err := s.applyLocked(*reaction)
		if err != nil {
			// The brief was just presented, so this only happens for an
			// unknown reaction type; report it without undoing delivery.
			s.persistLocked(ctx)
			return result, err
		}
		result.Writeback = wb
	}

	s.persistLocked(ctx)
	return result, nil
}

// ApplyOverride records a user reaction against the current delivery.
func (s *Service) ApplyOverride(ctx context.Context, o lifecycle.Override) (*OverrideWriteback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wb, err := s.applyLocked(o)
	if err != nil {
		return nil, err
	}
	s.persistLocked(ctx)
	return wb, nil
}

// Record returns a deep copy of the current presentation record, detached
// from the slices a concurrent refresh or override may be appending to.
func (s *Service) Record() lifecycle.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Clone()
}

// ResetMode restores normal delivery mode. Admin capability.
func (s *Service) ResetMode(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.ResetMode()
	s.persistLocked(ctx)
}

func (s *Service) applyLocked(o lifecycle.Override) (*OverrideWriteback, error) {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = s.clock()
	}
	effect, err := s.record.Apply(o)
	if err != nil {
		return nil, err
	}
	if effect.SnoozedUntil != nil {
		s.scheduler.Snooze(*effect.SnoozedUntil)
	}
	if effect.NewObjective != "" {
		s.log.Info("objective replaced", zap.String("objective", effect.NewObjective))
	}
	return &OverrideWriteback{
		RecordedAt:              o.RecordedAt,
		Reaction:                o.Type,
		AppliedToBriefGenerated: s.record.Current.Brief.GeneratedAt,
		Status:                  "recorded",
	}, nil
}

// persistLocked flushes runtime, trigger, and presentation state. Failures
// are logged, never propagated: durability problems must not break delivery.
func (s *Service) persistLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRuntime(ctx, s.workspace, s.scheduler.RuntimeState()); err != nil {
		s.log.Warn("persist runtime failed", zap.Error(err))
	}
	if err := s.store.SaveTriggers(ctx, s.workspace, s.scheduler.TriggerStates()); err != nil {
		s.log.Warn("persist triggers failed", zap.Error(err))
	}
	if err := s.store.SavePresentation(ctx, s.record); err != nil {
		s.log.Warn("persist presentation failed", zap.Error(err))
	}
}
