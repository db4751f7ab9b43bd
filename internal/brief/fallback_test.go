package brief

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The fallback brief must validate clean for any input.
func TestBuildFallback_AlwaysValid(t *testing.T) {
	inputs := []Input{
		{},
		testInput,
		{MissionHint: "hint only"},
		{Evidence: []EvidenceInput{{}, {}, {}}},
		{Evidence: []EvidenceInput{{ID: "x", Source: "bogus", FreshnessMinutes: -99}}},
	}

	for _, input := range inputs {
		b := BuildFallback(input, testNow)
		result := Validate(b)
		assert.True(t, result.OK, "fallback must validate clean, got %v", result.Issues)
	}
}

func TestBuildFallback_Deterministic(t *testing.T) {
	a := BuildFallback(testInput, testNow)
	b := BuildFallback(testInput, testNow)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("fallback not reproducible (-first +second):\n%s", diff)
	}
}

func TestBuildFallback_EvidenceDefaulting(t *testing.T) {
	b := BuildFallback(Input{Evidence: []EvidenceInput{
		{Source: "nonsense", FreshnessMinutes: -5},
	}}, testNow)

	require.Len(t, b.Evidence, 1)
	ev := b.Evidence[0]
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, SourceFallback, ev.Source)
	assert.Equal(t, "workspace", ev.Entity)
	assert.Equal(t, "signal", ev.Metric)
	assert.NotEmpty(t, ev.ValueText)
	assert.Equal(t, 0, ev.FreshnessMinutes)
	assert.Equal(t, testNow, ev.ObservedAt)
}

func TestBuildFallback_SynthesizesPlaceholderEvidence(t *testing.T) {
	b := BuildFallback(Input{}, testNow)
	require.Len(t, b.Evidence, 1, "empty evidence input yields exactly one placeholder")
	require.Len(t, b.Priorities, 1)
	assert.Equal(t, 1, b.Priorities[0].Rank)
	assert.Equal(t, []string{b.Evidence[0].ID}, b.Priorities[0].EvidenceRefs)
	assert.Equal(t, ConfidenceMedium, b.Priorities[0].Confidence)
	assert.Equal(t, HorizonToday, b.Mission.Horizon)
}

func TestBuildFallback_MissionHintUsed(t *testing.T) {
	b := BuildFallback(Input{MissionHint: "Land the migration"}, testNow)
	assert.Equal(t, "Land the migration", b.Mission.Title)

	b = BuildFallback(Input{}, testNow)
	assert.Equal(t, fallbackMissionTitle, b.Mission.Title)
}
