package brief

import (
	"fmt"
	"time"
)

// Fixed copy used whenever a field has nothing better to fall back on.
const (
	fallbackMissionTitle = "Focus for today"
	fallbackRationale    = "Generated without model assistance from the evidence that was available."
	fallbackHeadline     = "Review today's signals"
	fallbackSummary      = "Walk through the collected evidence and confirm what deserves attention first."
	fallbackValueText    = "no fresh signal captured"
	fallbackReactionLine = "Accept this plan, reframe it, or snooze the brief?"
	fallbackEvidenceNote = "No evidence was supplied for this cycle."
)

// BuildFallback deterministically constructs a minimal valid Brief from the
// supplied input alone. It performs no I/O: two calls with the same input and
// timestamp produce identical briefs, and the result always passes Validate.
func BuildFallback(input Input, generatedAt time.Time) Brief {
	evidence := make([]Evidence, 0, len(input.Evidence))
	for i, in := range input.Evidence {
		evidence = append(evidence, fallbackEvidence(in, i, generatedAt))
	}
	if len(evidence) == 0 {
		evidence = append(evidence, Evidence{
			ID:               "ev-1",
			Source:           SourceFallback,
			Entity:           "workspace",
			Metric:           "signal",
			ValueText:        fallbackEvidenceNote,
			ObservedAt:       generatedAt,
			FreshnessMinutes: 0,
		})
	}

	title := input.MissionHint
	if title == "" {
		title = fallbackMissionTitle
	}

	return Brief{
		Schema:      SchemaVersion,
		GeneratedAt: generatedAt,
		Mission: Mission{
			Title:     title,
			Rationale: fallbackRationale,
			Horizon:   HorizonToday,
		},
		Priorities: []Priority{{
			ID:           "pri-1",
			Rank:         1,
			Headline:     fallbackHeadline,
			Summary:      fallbackSummary,
			Confidence:   ConfidenceMedium,
			EvidenceRefs: []string{evidence[0].ID},
		}},
		Evidence:            evidence,
		Assumptions:         nil,
		QuickReactionPrompt: fallbackReactionLine,
	}
}

// fallbackEvidence lifts one partial collector record into a full evidence
// record, defaulting every blank or invalid field.
func fallbackEvidence(in EvidenceInput, pos int, generatedAt time.Time) Evidence {
	ev := Evidence{
		ID:               in.ID,
		Source:           Source(in.Source),
		Entity:           in.Entity,
		Metric:           in.Metric,
		ValueText:        in.ValueText,
		ObservedAt:       in.ObservedAt,
		FreshnessMinutes: in.FreshnessMinutes,
		Link:             in.Link,
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("ev-%d", pos+1)
	}
	if !ValidSource(in.Source) {
		ev.Source = SourceFallback
	}
	if ev.Entity == "" {
		ev.Entity = "workspace"
	}
	if ev.Metric == "" {
		ev.Metric = "signal"
	}
	if ev.ValueText == "" {
		ev.ValueText = fallbackValueText
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = generatedAt
	}
	if ev.FreshnessMinutes < 0 {
		ev.FreshnessMinutes = 0
	}
	return ev
}
