// Package schedule gates refresh runs: trigger evaluation against snooze,
// cooldown and min-interval bookkeeping, plus the confidence degradation
// tracker that flips delivery into suggest-only mode.
package schedule

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"daybrief/internal/brief"
)

// TriggerUserRefresh is the privileged trigger type: it bypasses snooze,
// suggest-only mode, min-interval and cooldown, but still runs the normal
// pipeline and still updates bookkeeping.
const TriggerUserRefresh = "user.request_refresh"

// Mode is the delivery mode of the runtime.
type Mode string

const (
	ModeNormal      Mode = "normal"
	ModeSuggestOnly Mode = "suggest_only"
)

// suggestOnlyThreshold is the low-confidence streak at which delivery
// degrades to suggest-only.
const suggestOnlyThreshold = 2

// Reason explains a scheduling decision.
type Reason string

const (
	ReasonFired       Reason = "fired"
	ReasonSnoozed     Reason = "snoozed"
	ReasonSuggestOnly Reason = "suggest_only"
	ReasonMinInterval Reason = "min_interval"
	ReasonCooldown    Reason = "cooldown"
	ReasonDisabled    Reason = "disabled"
)

// Decision is the outcome of one trigger evaluation.
type Decision struct {
	TriggerType string    `json:"trigger_type"`
	Fired       bool      `json:"fired"`
	Reason      Reason    `json:"reason"`
	At          time.Time `json:"at"`
}

// TriggerState is the per-trigger bookkeeping. LastFiredAt is mutated only by
// the scheduler on a fired decision.
type TriggerState struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	Enabled            bool      `json:"enabled"`
	MinIntervalMinutes int       `json:"min_interval_minutes"`
	CoolDownMinutes    int       `json:"cooldown_minutes"`
	LastFiredAt        time.Time `json:"last_fired_at"`
}

// Runtime is the workspace-scoped delivery state.
type Runtime struct {
	Mode                Mode      `json:"mode"`
	LowConfidenceStreak int       `json:"low_confidence_streak"`
	SnoozedUntil        time.Time `json:"snoozed_until"`
}

// DecisionSink receives one record per scheduling decision, fire-and-forget.
type DecisionSink interface {
	RecordDecision(d Decision)
}

// Scheduler owns the runtime and trigger states as a single-writer critical
// section: every read and write goes through its mutex, so concurrent trigger
// events observe either the pre- or post-update state, never a torn one.
type Scheduler struct {
	mu       sync.Mutex
	runtime  Runtime
	triggers map[string]*TriggerState
	sink     DecisionSink
	log      *zap.Logger
}

// NewScheduler builds a scheduler over the given initial runtime and trigger
// states. A nil logger and sink are allowed.
func NewScheduler(runtime Runtime, triggers []TriggerState, sink DecisionSink, log *zap.Logger) *Scheduler {
	if runtime.Mode == "" {
		runtime.Mode = ModeNormal
	}
	if log == nil {
		log = zap.NewNop()
	}
	byType := make(map[string]*TriggerState, len(triggers))
	for i := range triggers {
		t := triggers[i]
		if t.ID == "" {
			t.ID = t.Type
		}
		byType[t.Type] = &t
	}
	return &Scheduler{runtime: runtime, triggers: byType, sink: sink, log: log}
}

// Evaluate decides whether a refresh may run for the given trigger at now,
// updating LastFiredAt on a fired decision. Gate order: snooze, suggest-only
// mode, min interval, cooldown. The privileged user-refresh trigger skips all
// four gates.
func (s *Scheduler) Evaluate(triggerType string, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.evaluateLocked(triggerType, now)
	if s.sink != nil {
		s.sink.RecordDecision(d)
	}
	s.log.Debug("trigger evaluated",
		zap.String("trigger", triggerType),
		zap.Bool("fired", d.Fired),
		zap.String("reason", string(d.Reason)))
	return d
}

func (s *Scheduler) evaluateLocked(triggerType string, now time.Time) Decision {
	d := Decision{TriggerType: triggerType, At: now}
	privileged := triggerType == TriggerUserRefresh

	if !s.runtime.SnoozedUntil.IsZero() && now.Before(s.runtime.SnoozedUntil) && !privileged {
		d.Reason = ReasonSnoozed
		return d
	}
	if s.runtime.Mode == ModeSuggestOnly && !privileged {
		d.Reason = ReasonSuggestOnly
		return d
	}

	state, ok := s.triggers[triggerType]
	if !ok || !state.Enabled {
		// The privileged trigger fires even without a configured state.
		if privileged {
			if !ok {
				state = &TriggerState{ID: triggerType, Type: triggerType, Enabled: true}
				s.triggers[triggerType] = state
			}
		} else {
			d.Reason = ReasonDisabled
			return d
		}
	}

	if !privileged && !state.LastFiredAt.IsZero() {
		since := now.Sub(state.LastFiredAt)
		if since < time.Duration(state.MinIntervalMinutes)*time.Minute {
			d.Reason = ReasonMinInterval
			return d
		}
		if since < time.Duration(state.CoolDownMinutes)*time.Minute {
			d.Reason = ReasonCooldown
			return d
		}
	}

	state.LastFiredAt = now
	d.Fired = true
	d.Reason = ReasonFired
	return d
}

// ObserveOutcome feeds the degradation tracker with the overall confidence of
// a fired run's brief. A low result extends the streak; reaching the
// threshold flips delivery to suggest-only. The streak does not reset on a
// non-low result; only ResetMode clears it.
func (s *Scheduler) ObserveOutcome(confidence brief.Confidence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if confidence != brief.ConfidenceLow {
		return
	}
	s.runtime.LowConfidenceStreak++
	if s.runtime.LowConfidenceStreak >= suggestOnlyThreshold && s.runtime.Mode != ModeSuggestOnly {
		s.runtime.Mode = ModeSuggestOnly
		s.log.Warn("delivery degraded to suggest-only",
			zap.Int("low_confidence_streak", s.runtime.LowConfidenceStreak))
	}
}

// Snooze suppresses non-privileged triggers until the given instant.
func (s *Scheduler) Snooze(until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtime.SnoozedUntil = until
}

// ResetMode is the external/admin capability: it restores normal delivery
// and clears the low-confidence streak.
func (s *Scheduler) ResetMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtime.Mode = ModeNormal
	s.runtime.LowConfidenceStreak = 0
}

// RuntimeState returns a copy of the runtime for persistence and inspection.
func (s *Scheduler) RuntimeState() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtime
}

// TriggerStates returns copies of all trigger states for persistence.
func (s *Scheduler) TriggerStates() []TriggerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TriggerState, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, *t)
	}
	return out
}
