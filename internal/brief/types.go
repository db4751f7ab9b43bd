// Package brief defines the morning-brief data model and the three pure
// operations over it: normalization of untrusted candidates, domain
// validation, and deterministic fallback construction.
package brief

import "time"

// SchemaVersion is the only schema tag accepted on the wire. Candidates
// carrying anything else are coerced to it; there is no negotiation.
const SchemaVersion = "daybrief_v1"

// Confidence is the closed confidence scale for priorities.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ValidConfidence reports whether s is a member of the closed enum.
func ValidConfidence(s string) bool {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// Horizon is the planning window the mission targets.
type Horizon string

const (
	HorizonToday    Horizon = "today"
	HorizonThisWeek Horizon = "this_week"
)

// Source identifies where an evidence record came from.
type Source string

const (
	SourceIssueTracker Source = "issue_tracker"
	SourceChat         Source = "chat"
	SourceDeploys      Source = "deploys"
	SourceAnalytics    Source = "analytics"
	SourceCalendar     Source = "calendar"
	// SourceFallback tags evidence whose origin could not be established.
	SourceFallback Source = "fallback"
)

// ValidSource reports whether s is a member of the closed source enum.
func ValidSource(s string) bool {
	switch Source(s) {
	case SourceIssueTracker, SourceChat, SourceDeploys, SourceAnalytics, SourceCalendar, SourceFallback:
		return true
	}
	return false
}

// AssumptionReason is the closed set of reasons an assumption was recorded.
type AssumptionReason string

const (
	ReasonStaleData     AssumptionReason = "stale_data"
	ReasonMissingSource AssumptionReason = "missing_source"
	ReasonCoverageGap   AssumptionReason = "coverage_gap"
	ReasonInference     AssumptionReason = "inference"
)

// ValidAssumptionReason reports whether s is a member of the closed enum.
func ValidAssumptionReason(s string) bool {
	switch AssumptionReason(s) {
	case ReasonStaleData, ReasonMissingSource, ReasonCoverageGap, ReasonInference:
		return true
	}
	return false
}

// Mission is the single objective a brief is organized around.
type Mission struct {
	Title     string  `json:"title"`
	Rationale string  `json:"rationale"`
	Horizon   Horizon `json:"horizon"`
}

// Priority is one ranked item of the brief. Ranks are 1-based and unique;
// a valid brief carries at most three.
type Priority struct {
	ID                 string     `json:"id"`
	Rank               int        `json:"rank"`
	Headline           string     `json:"headline"`
	Summary            string     `json:"summary"`
	Confidence         Confidence `json:"confidence"`
	EvidenceRefs       []string   `json:"evidence_refs"`
	VerificationPrompt string     `json:"verification_prompt,omitempty"`
}

// Evidence is a single observed signal backing one or more priorities.
type Evidence struct {
	ID               string    `json:"id"`
	Source           Source    `json:"source"`
	Entity           string    `json:"entity"`
	Metric           string    `json:"metric"`
	ValueText        string    `json:"value_text"`
	ObservedAt       time.Time `json:"observed_at"`
	FreshnessMinutes int       `json:"freshness_minutes"`
	Link             string    `json:"link,omitempty"`
}

// Assumption records a gap the synthesizer papered over.
type Assumption struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"`
	Reason      AssumptionReason `json:"reason"`
	SourceScope []Source         `json:"source_scope"`
}

// Brief is the structured output of one pipeline run.
type Brief struct {
	Schema              string       `json:"schema"`
	GeneratedAt         time.Time    `json:"generated_at"`
	Mission             Mission      `json:"mission"`
	Priorities          []Priority   `json:"priorities"`
	Evidence            []Evidence   `json:"evidence"`
	Assumptions         []Assumption `json:"assumptions"`
	QuickReactionPrompt string       `json:"quick_reaction_prompt"`
}

// OverallConfidence is the confidence of the top-ranked priority, used by
// the degradation tracker. Briefs without priorities read as medium.
func (b Brief) OverallConfidence() Confidence {
	best := -1
	conf := ConfidenceMedium
	for _, p := range b.Priorities {
		if best == -1 || p.Rank < best {
			best = p.Rank
			conf = p.Confidence
		}
	}
	if !ValidConfidence(string(conf)) {
		return ConfidenceMedium
	}
	return conf
}

// EvidenceInput is a partial evidence record as supplied by an external
// collector. Any field may be blank; FreshnessMinutes may be negative.
type EvidenceInput struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	Entity           string    `json:"entity"`
	Metric           string    `json:"metric"`
	ValueText        string    `json:"value_text"`
	ObservedAt       time.Time `json:"observed_at"`
	FreshnessMinutes int       `json:"freshness_minutes"`
	Link             string    `json:"link,omitempty"`
}

// Input is everything the pipeline needs to synthesize one brief.
type Input struct {
	Workspace   string          `json:"workspace"`
	MissionHint string          `json:"mission_hint"`
	Evidence    []EvidenceInput `json:"evidence"`
}
