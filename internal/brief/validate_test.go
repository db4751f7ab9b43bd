package brief

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBrief() Brief {
	return Brief{
		Schema:      SchemaVersion,
		GeneratedAt: testNow,
		Mission:     Mission{Title: "t", Rationale: "r", Horizon: HorizonToday},
		Priorities: []Priority{
			{ID: "p1", Rank: 1, Headline: "h1", Summary: "s1", Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
			{ID: "p2", Rank: 2, Headline: "h2", Summary: "s2", Confidence: ConfidenceMedium, EvidenceRefs: []string{"e1"}},
		},
		Evidence: []Evidence{
			{ID: "e1", Source: SourceChat, Entity: "team", Metric: "mentions", ValueText: "v", ObservedAt: testNow},
		},
		QuickReactionPrompt: "ok?",
	}
}

func TestValidate_CleanBrief(t *testing.T) {
	result := Validate(validBrief())
	assert.True(t, result.OK)
	assert.Empty(t, result.Issues)
}

func TestValidate_TooManyPrioritiesComesFirst(t *testing.T) {
	b := validBrief()
	b.Priorities = []Priority{
		{ID: "p1", Rank: 1, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
		{ID: "p2", Rank: 2, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
		{ID: "p3", Rank: 3, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
		{ID: "p4", Rank: 9, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
	}

	result := Validate(b)
	require.False(t, result.OK)
	assert.Equal(t, IssueTooManyPriorities, result.Issues[0].Code)
	assert.Equal(t, IssueRankOutOfBounds, result.Issues[1].Code)
	assert.Equal(t, "/priorities/3/rank", result.Issues[1].Path)
}

func TestValidate_DuplicateRankPerRepeatedOccurrence(t *testing.T) {
	b := validBrief()
	b.Priorities = []Priority{
		{ID: "p1", Rank: 1, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
		{ID: "p2", Rank: 1, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
		{ID: "p3", Rank: 1, Confidence: ConfidenceHigh, EvidenceRefs: []string{"e1"}},
	}

	result := Validate(b)
	var dups []string
	for _, issue := range result.Issues {
		if issue.Code == IssueDuplicateRank {
			dups = append(dups, issue.Path)
		}
	}
	assert.Equal(t, []string{"/priorities/1/rank", "/priorities/2/rank"}, dups)
}

func TestValidate_MissingAndUnknownEvidenceRefs(t *testing.T) {
	b := validBrief()
	b.Priorities = []Priority{
		{ID: "p1", Rank: 1, Confidence: ConfidenceHigh},
		{ID: "p2", Rank: 2, Confidence: ConfidenceHigh, EvidenceRefs: []string{"ghost", "e1", "ghost2"}},
	}

	result := Validate(b)
	require.False(t, result.OK)

	codes := make([]IssueCode, 0, len(result.Issues))
	for _, issue := range result.Issues {
		codes = append(codes, issue.Code)
	}
	// Per-priority checks first, then cross-reference checks in (priority, ref) order.
	assert.Equal(t, []IssueCode{IssueMissingEvidenceRef, IssueUnknownEvidenceRef, IssueUnknownEvidenceRef}, codes)
	assert.Equal(t, "/priorities/1/evidence_refs/0", result.Issues[1].Path)
	assert.Equal(t, "/priorities/1/evidence_refs/2", result.Issues[2].Path)
}

func TestValidate_LowConfidenceNeedsVerificationPrompt(t *testing.T) {
	b := validBrief()
	b.Priorities[0].Confidence = ConfidenceLow
	b.Priorities[0].VerificationPrompt = "   "

	result := Validate(b)
	require.False(t, result.OK)
	assert.Equal(t, IssueVerificationPromptRequired, result.Issues[0].Code)

	b.Priorities[0].VerificationPrompt = "double-check the burn rate"
	assert.True(t, Validate(b).OK)
}

func TestValidate_RankBounds(t *testing.T) {
	for _, rank := range []int{0, -1, 4, 100} {
		b := validBrief()
		b.Priorities = b.Priorities[:1]
		b.Priorities[0].Rank = rank
		result := Validate(b)
		require.False(t, result.OK, "rank %d should be rejected", rank)
		assert.Equal(t, IssueRankOutOfBounds, result.Issues[0].Code)
	}
}
