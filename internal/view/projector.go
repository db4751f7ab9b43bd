// Package view projects a Brief into the fixed four-section display view.
package view

import (
	"fmt"
	"sort"
	"strings"

	"daybrief/internal/brief"
)

// Section ids, in delivery order.
const (
	SectionMission       = "mission"
	SectionPriorities    = "priorities"
	SectionEvidence      = "evidence"
	SectionQuickReaction = "quick_reaction"
)

// maxEvidenceLines caps how many evidence records the view shows.
const maxEvidenceLines = 5

// Section is one rendered block of the brief view.
type Section struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// View is the rendered brief: exactly four sections in a fixed order, each
// with a non-empty body.
type View struct {
	Sections []Section `json:"sections"`
}

const (
	placeholderTitle      = "(untitled mission)"
	placeholderRationale  = "(no rationale provided)"
	placeholderHeadline   = "(no headline)"
	placeholderSummary    = "(no summary)"
	placeholderPriorities = "No priorities for this cycle."
	placeholderEvidence   = "No evidence collected."
	placeholderReaction   = "How do you want to respond to this brief?"
)

// Project renders b into the fixed view. It is pure and total: every section
// body is non-empty after trimming for any Brief, including the fallback
// brief and briefs with wholly blank optional fields.
func Project(b brief.Brief) View {
	return View{Sections: []Section{
		{ID: SectionMission, Title: "Mission", Body: missionBody(b.Mission)},
		{ID: SectionPriorities, Title: "Priorities", Body: prioritiesBody(b.Priorities)},
		{ID: SectionEvidence, Title: "Evidence", Body: evidenceBody(b.Evidence)},
		{ID: SectionQuickReaction, Title: "Quick reaction", Body: reactionBody(b)},
	}}
}

func missionBody(m brief.Mission) string {
	title := m.Title
	if strings.TrimSpace(title) == "" {
		title = placeholderTitle
	}
	rationale := m.Rationale
	if strings.TrimSpace(rationale) == "" {
		rationale = placeholderRationale
	}
	return title + "\n" + rationale
}

func prioritiesBody(priorities []brief.Priority) string {
	if len(priorities) == 0 {
		return placeholderPriorities
	}
	sorted := make([]brief.Priority, len(priorities))
	copy(sorted, priorities)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	lines := make([]string, 0, len(sorted))
	for _, p := range sorted {
		headline := p.Headline
		if strings.TrimSpace(headline) == "" {
			headline = placeholderHeadline
		}
		summary := p.Summary
		if strings.TrimSpace(summary) == "" {
			summary = placeholderSummary
		}
		lines = append(lines, fmt.Sprintf("P%d: %s — %s", p.Rank, headline, summary))
	}
	return strings.Join(lines, "\n")
}

func evidenceBody(evidence []brief.Evidence) string {
	if len(evidence) == 0 {
		return placeholderEvidence
	}
	n := len(evidence)
	if n > maxEvidenceLines {
		n = maxEvidenceLines
	}
	lines := make([]string, 0, n)
	for _, ev := range evidence[:n] {
		lines = append(lines, fmt.Sprintf("%s: %s (%s/%s, freshness %dm)",
			ev.ID, ev.ValueText, ev.Source, ev.Entity, ev.FreshnessMinutes))
	}
	return strings.Join(lines, "\n")
}

func reactionBody(b brief.Brief) string {
	prompt := b.QuickReactionPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = placeholderReaction
	}
	var verify []string
	for _, p := range b.Priorities {
		if p.Confidence == brief.ConfidenceLow && strings.TrimSpace(p.VerificationPrompt) != "" {
			verify = append(verify, p.VerificationPrompt)
		}
	}
	if len(verify) == 0 {
		return prompt
	}
	return prompt + "\nVerify first: " + strings.Join(verify, " | ")
}
