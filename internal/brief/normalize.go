package brief

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Normalize coerces an arbitrary JSON-like candidate into a well-typed Brief.
// It is total: any input, including nil, a primitive, or an array, yields a
// Brief without panicking. Each field is defaulted independently; structural
// defaults come from a single fallback Brief computed once per call, while
// validation-bearing fields (evidence refs, verification prompts) default to
// empty so the validator still sees what the candidate actually claimed.
func Normalize(candidate any, input Input, generatedAt time.Time) Brief {
	fb := BuildFallback(input, generatedAt)

	obj, _ := asMap(candidate)

	b := Brief{
		Schema:              SchemaVersion,
		GeneratedAt:         normalizeTimestamp(obj["generated_at"], generatedAt),
		Mission:             normalizeMission(obj["mission"], fb.Mission),
		Priorities:          normalizePriorities(obj["priorities"], fb),
		Evidence:            normalizeEvidence(obj["evidence"], fb, generatedAt),
		Assumptions:         normalizeAssumptions(obj["assumptions"]),
		QuickReactionPrompt: stringOr(obj["quick_reaction_prompt"], fb.QuickReactionPrompt),
	}
	return b
}

func normalizeTimestamp(v any, fallback time.Time) time.Time {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return fallback
}

func normalizeMission(v any, fb Mission) Mission {
	m, _ := asMap(v)
	horizon := Horizon(asString(m["horizon"]))
	if horizon != HorizonToday && horizon != HorizonThisWeek {
		horizon = fb.Horizon
	}
	return Mission{
		Title:     stringOr(m["title"], fb.Title),
		Rationale: stringOr(m["rationale"], fb.Rationale),
		Horizon:   horizon,
	}
}

func normalizePriorities(v any, fb Brief) []Priority {
	items, ok := v.([]any)
	if !ok {
		// Candidate carried no usable priority list; inherit the
		// fallback's single priority rather than returning none.
		out := make([]Priority, len(fb.Priorities))
		copy(out, fb.Priorities)
		return out
	}
	out := make([]Priority, 0, len(items))
	for i, item := range items {
		out = append(out, normalizePriority(item, i, fb))
	}
	return out
}

func normalizePriority(v any, pos int, fb Brief) Priority {
	m, _ := asMap(v)

	rank, ok := asInt(m["rank"])
	if !ok {
		rank = pos + 1
	}

	conf := Confidence(asString(m["confidence"]))
	if !ValidConfidence(string(conf)) {
		conf = ConfidenceMedium
	}

	var fbPriority Priority
	if len(fb.Priorities) > 0 {
		fbPriority = fb.Priorities[0]
	}

	return Priority{
		ID:                 stringOr(m["id"], fmt.Sprintf("pri-%d", pos+1)),
		Rank:               rank,
		Headline:           stringOr(m["headline"], fbPriority.Headline),
		Summary:            stringOr(m["summary"], fbPriority.Summary),
		Confidence:         conf,
		EvidenceRefs:       stringList(m["evidence_refs"]),
		VerificationPrompt: asString(m["verification_prompt"]),
	}
}

func normalizeEvidence(v any, fb Brief, generatedAt time.Time) []Evidence {
	items, ok := v.([]any)
	if !ok {
		out := make([]Evidence, len(fb.Evidence))
		copy(out, fb.Evidence)
		return out
	}
	out := make([]Evidence, 0, len(items))
	for i, item := range items {
		m, _ := asMap(item)
		src := Source(asString(m["source"]))
		if !ValidSource(string(src)) {
			src = SourceFallback
		}
		freshness, ok := asInt(m["freshness_minutes"])
		if !ok || freshness < 0 {
			freshness = 0
		}
		out = append(out, Evidence{
			ID:               stringOr(m["id"], fmt.Sprintf("ev-%d", i+1)),
			Source:           src,
			Entity:           stringOr(m["entity"], "workspace"),
			Metric:           stringOr(m["metric"], "signal"),
			ValueText:        stringOr(m["value_text"], fallbackValueText),
			ObservedAt:       normalizeTimestamp(m["observed_at"], generatedAt),
			FreshnessMinutes: freshness,
			Link:             asString(m["link"]),
		})
	}
	if len(out) == 0 {
		out = make([]Evidence, len(fb.Evidence))
		copy(out, fb.Evidence)
	}
	return out
}

func normalizeAssumptions(v any) []Assumption {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Assumption, 0, len(items))
	for i, item := range items {
		m, _ := asMap(item)
		text := strings.TrimSpace(asString(m["text"]))
		if text == "" {
			continue
		}
		reason := AssumptionReason(asString(m["reason"]))
		if !ValidAssumptionReason(string(reason)) {
			reason = ReasonInference
		}
		scope := make([]Source, 0)
		for _, s := range stringList(m["source_scope"]) {
			if ValidSource(s) {
				scope = append(scope, Source(s))
			}
		}
		out = append(out, Assumption{
			ID:          stringOr(m["id"], fmt.Sprintf("as-%d", i+1)),
			Text:        text,
			Reason:      reason,
			SourceScope: scope,
		})
	}
	return out
}

// ---------------------------------------------------------------------------
// Loose-value extraction helpers. Candidate values can be anything the JSON
// decoder produces: string, bool, float64, json.Number, map, slice, or nil.
// ---------------------------------------------------------------------------

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if m == nil {
		return map[string]any{}, ok
	}
	return m, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// stringOr returns v as a string, or fallback when v is not a string or is
// blank after trimming.
func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		// A fractional value is not an integer; do not truncate it into one.
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
