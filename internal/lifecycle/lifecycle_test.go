package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daybrief/internal/brief"
	"daybrief/internal/view"
)

var now = time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

func presentedRecord(t *testing.T) *Record {
	t.Helper()
	r := NewRecord("ws-1")
	b := brief.BuildFallback(brief.Input{}, now)
	r.Deliver(b, view.Project(b), now)
	require.Equal(t, StatePresented, r.State)
	return r
}

func TestApply_AcceptRoundTrip(t *testing.T) {
	r := presentedRecord(t)

	effect, err := r.Apply(Override{Type: OverrideAccept, RecordedAt: now})
	require.NoError(t, err)
	assert.Nil(t, effect.SnoozedUntil)
	assert.Equal(t, StateAccepted, r.State)
	require.Len(t, r.Overrides, 1, "exactly one override record appended")
	assert.Equal(t, OverrideAccept, r.Overrides[0].Type)
}

func TestApply_EveryTypeTransitions(t *testing.T) {
	cases := map[OverrideType]State{
		OverrideAccept:              StateAccepted,
		OverrideReframe:             StateReframed,
		OverrideDeprioritize:        StateDeprioritized,
		OverrideNotMyResponsibility: StateNotMyResponsibility,
		OverrideReplaceObjective:    StateObjectiveReplaced,
		OverrideSnooze:              StateSnoozed,
	}
	for overrideType, want := range cases {
		r := presentedRecord(t)
		_, err := r.Apply(Override{Type: overrideType, RecordedAt: now})
		require.NoError(t, err)
		assert.Equal(t, want, r.State)
	}
}

func TestApply_NotPresentedIsCallerError(t *testing.T) {
	r := presentedRecord(t)
	_, err := r.Apply(Override{Type: OverrideAccept, RecordedAt: now})
	require.NoError(t, err)

	_, err = r.Apply(Override{Type: OverrideReframe, RecordedAt: now})
	assert.ErrorIs(t, err, ErrNotPresented)
	assert.Len(t, r.Overrides, 1, "rejected override is not recorded")
}

func TestApply_EmptyRecordIsNotPresented(t *testing.T) {
	r := NewRecord("ws-1")
	_, err := r.Apply(Override{Type: OverrideAccept, RecordedAt: now})
	assert.ErrorIs(t, err, ErrNotPresented)
}

func TestApply_UnknownTypeRejected(t *testing.T) {
	r := presentedRecord(t)
	_, err := r.Apply(Override{Type: "shrug", RecordedAt: now})
	assert.ErrorIs(t, err, ErrUnknownOverride)
	assert.Equal(t, StatePresented, r.State)
}

func TestApply_SnoozeComputesWindow(t *testing.T) {
	r := presentedRecord(t)

	effect, err := r.Apply(Override{
		Type:       OverrideSnooze,
		RecordedAt: now,
		Payload:    Payload{DurationMinutes: 90},
	})
	require.NoError(t, err)
	require.NotNil(t, effect.SnoozedUntil)
	assert.Equal(t, now.Add(90*time.Minute), *effect.SnoozedUntil)
	assert.Equal(t, StateSnoozed, r.State)
}

func TestApply_ReplaceObjectiveCarriesPayload(t *testing.T) {
	r := presentedRecord(t)

	effect, err := r.Apply(Override{
		Type:       OverrideReplaceObjective,
		RecordedAt: now,
		Payload:    Payload{Objective: "Focus on the incident retro instead"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Focus on the incident retro instead", effect.NewObjective)
}

func TestClone_DetachedFromLiveRecord(t *testing.T) {
	r := presentedRecord(t)
	_, err := r.Apply(Override{Type: OverrideAccept, RecordedAt: now})
	require.NoError(t, err)

	snap := r.Clone()

	// Mutations to the live record must not show through the copy.
	r.Overrides[0].Note = "edited later"
	next := brief.BuildFallback(brief.Input{MissionHint: "later"}, now.Add(time.Hour))
	r.Deliver(next, view.Project(next), now.Add(time.Hour))

	assert.Equal(t, StateAccepted, snap.State)
	require.Len(t, snap.Overrides, 1)
	assert.Empty(t, snap.Overrides[0].Note)
	assert.Empty(t, snap.History)
	assert.NotEqual(t, "later", snap.Current.Brief.Mission.Title)
}

func TestDeliver_ResetsCycleAndArchivesHistory(t *testing.T) {
	r := presentedRecord(t)
	_, err := r.Apply(Override{Type: OverrideAccept, RecordedAt: now})
	require.NoError(t, err)

	next := brief.BuildFallback(brief.Input{MissionHint: "round two"}, now.Add(time.Hour))
	r.Deliver(next, view.Project(next), now.Add(time.Hour))

	assert.Equal(t, StatePresented, r.State, "new delivery resets the cycle")
	require.Len(t, r.History, 1)
	assert.Equal(t, "round two", r.Current.Brief.Mission.Title)
	assert.Len(t, r.Overrides, 1, "override log survives redelivery")

	// The fresh cycle accepts overrides again.
	_, err = r.Apply(Override{Type: OverrideReframe, RecordedAt: now.Add(2 * time.Hour)})
	assert.NoError(t, err)
}
