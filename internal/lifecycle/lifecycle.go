// Package lifecycle tracks how a delivered brief was received: the
// presentation record, its state machine, and the ordered override log.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"daybrief/internal/brief"
	"daybrief/internal/view"
)

// State is the presentation state of the currently delivered brief.
type State string

const (
	StatePresented           State = "presented"
	StateAccepted            State = "accepted"
	StateReframed            State = "reframed"
	StateDeprioritized       State = "deprioritized"
	StateNotMyResponsibility State = "not_my_responsibility"
	StateObjectiveReplaced   State = "objective_replaced"
	StateSnoozed             State = "snoozed"
)

// OverrideType is the closed set of user reactions.
type OverrideType string

const (
	OverrideAccept              OverrideType = "accept"
	OverrideReframe             OverrideType = "reframe"
	OverrideDeprioritize        OverrideType = "deprioritize"
	OverrideNotMyResponsibility OverrideType = "not_my_responsibility"
	OverrideReplaceObjective    OverrideType = "replace_objective"
	OverrideSnooze              OverrideType = "snooze"
)

// stateFor maps each override type to the terminal state it produces.
var stateFor = map[OverrideType]State{
	OverrideAccept:              StateAccepted,
	OverrideReframe:             StateReframed,
	OverrideDeprioritize:        StateDeprioritized,
	OverrideNotMyResponsibility: StateNotMyResponsibility,
	OverrideReplaceObjective:    StateObjectiveReplaced,
	OverrideSnooze:              StateSnoozed,
}

// Payload carries type-specific override data.
type Payload struct {
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Objective       string `json:"objective,omitempty"`
}

// Override is one recorded user reaction.
type Override struct {
	Type       OverrideType `json:"type"`
	Note       string       `json:"note,omitempty"`
	Payload    Payload      `json:"payload,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Effect is what applying an override asks the caller to do: push a snooze
// window into the scheduler runtime, or hand a replacement objective to
// mission regeneration.
type Effect struct {
	SnoozedUntil *time.Time
	NewObjective string
}

// ErrNotPresented signals lifecycle misuse: an override applied to a brief
// that is not currently in the presented state.
var ErrNotPresented = errors.New("brief is not in the presented state")

// ErrUnknownOverride signals an override type outside the closed set.
var ErrUnknownOverride = errors.New("unknown override type")

// Delivery is one archived brief delivery.
type Delivery struct {
	Brief       brief.Brief `json:"brief"`
	View        view.View   `json:"view"`
	DeliveredAt time.Time   `json:"delivered_at"`
}

// Record is the per-workspace presentation record: the current delivery, the
// history of prior ones, the presentation state, and the override log.
type Record struct {
	ID        string     `json:"id"`
	Workspace string     `json:"workspace"`
	Current   *Delivery  `json:"current,omitempty"`
	History   []Delivery `json:"history"`
	State     State      `json:"state"`
	Overrides []Override `json:"overrides"`
}

// NewRecord creates an empty presentation record for a workspace.
func NewRecord(workspace string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Workspace: workspace,
	}
}

// Clone returns a deep copy of the record: the history and override slices
// get their own backing arrays, so the copy is safe to read while the owner
// keeps appending to the original.
func (r *Record) Clone() Record {
	out := *r
	if r.Current != nil {
		current := *r.Current
		out.Current = &current
	}
	out.History = append([]Delivery(nil), r.History...)
	out.Overrides = append([]Override(nil), r.Overrides...)
	return out
}

// Deliver installs a freshly settled brief as the current delivery, archives
// the previous one, and resets the state to presented for a new cycle.
func (r *Record) Deliver(b brief.Brief, v view.View, at time.Time) {
	if r.Current != nil {
		r.History = append(r.History, *r.Current)
	}
	r.Current = &Delivery{Brief: b, View: v, DeliveredAt: at}
	r.State = StatePresented
}

// Apply records a user override against the current delivery. The override is
// appended to the log and the state transitions to the matching terminal
// state. Applying to a record that is not presented is a caller error and is
// rejected with ErrNotPresented; nothing is recorded in that case.
func (r *Record) Apply(o Override) (Effect, error) {
	next, ok := stateFor[o.Type]
	if !ok {
		return Effect{}, fmt.Errorf("%w: %q", ErrUnknownOverride, o.Type)
	}
	if r.State != StatePresented || r.Current == nil {
		return Effect{}, fmt.Errorf("%w (state=%s)", ErrNotPresented, r.State)
	}

	r.Overrides = append(r.Overrides, o)
	r.State = next

	var effect Effect
	switch o.Type {
	case OverrideSnooze:
		until := o.RecordedAt.Add(time.Duration(o.Payload.DurationMinutes) * time.Minute)
		effect.SnoozedUntil = &until
	case OverrideReplaceObjective:
		effect.NewObjective = o.Payload.Objective
	}
	return effect, nil
}
