package brief

import (
	"fmt"
	"strings"
)

// IssueCode is the closed set of validation failure codes.
type IssueCode string

const (
	IssueTooManyPriorities          IssueCode = "too_many_priorities"
	IssueRankOutOfBounds            IssueCode = "rank_out_of_bounds"
	IssueDuplicateRank              IssueCode = "duplicate_rank"
	IssueMissingEvidenceRef         IssueCode = "missing_evidence_ref"
	IssueVerificationPromptRequired IssueCode = "verification_prompt_required"
	IssueUnknownEvidenceRef         IssueCode = "unknown_evidence_ref"

	// IssueUndecodableCandidate is synthesized by the pipeline when model
	// output cannot be decoded at all; Validate never emits it.
	IssueUndecodableCandidate IssueCode = "undecodable_candidate"
)

// Issue is one validation finding, addressed by a JSON-pointer-ish path.
type Issue struct {
	Code    IssueCode `json:"code"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
}

// Result is the outcome of validating one Brief.
type Result struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// MaxPriorities is the hard cap on ranked items per brief.
const MaxPriorities = 3

// Validate checks a well-typed Brief against the domain invariants and
// returns the findings in a deterministic order: the priority-count check,
// then per-priority checks in array order, then cross-reference checks over
// every evidence ref in (priority, ref) order. A brief is valid iff no
// issues were emitted.
func Validate(b Brief) Result {
	var issues []Issue

	if len(b.Priorities) > MaxPriorities {
		issues = append(issues, Issue{
			Code:    IssueTooManyPriorities,
			Path:    "/priorities",
			Message: fmt.Sprintf("%d priorities exceed the maximum of %d", len(b.Priorities), MaxPriorities),
		})
	}

	seen := make(map[int]bool, len(b.Priorities))
	for i, p := range b.Priorities {
		path := fmt.Sprintf("/priorities/%d", i)
		if p.Rank < 1 || p.Rank > MaxPriorities {
			issues = append(issues, Issue{
				Code:    IssueRankOutOfBounds,
				Path:    path + "/rank",
				Message: fmt.Sprintf("rank %d is outside [1,%d]", p.Rank, MaxPriorities),
			})
		}
		if seen[p.Rank] {
			issues = append(issues, Issue{
				Code:    IssueDuplicateRank,
				Path:    path + "/rank",
				Message: fmt.Sprintf("rank %d already used by an earlier priority", p.Rank),
			})
		}
		seen[p.Rank] = true
		if len(p.EvidenceRefs) == 0 {
			issues = append(issues, Issue{
				Code:    IssueMissingEvidenceRef,
				Path:    path + "/evidence_refs",
				Message: "priority cites no evidence",
			})
		}
		if p.Confidence == ConfidenceLow && strings.TrimSpace(p.VerificationPrompt) == "" {
			issues = append(issues, Issue{
				Code:    IssueVerificationPromptRequired,
				Path:    path + "/verification_prompt",
				Message: "low-confidence priority needs a verification prompt",
			})
		}
	}

	known := make(map[string]bool, len(b.Evidence))
	for _, ev := range b.Evidence {
		known[ev.ID] = true
	}
	for i, p := range b.Priorities {
		for j, ref := range p.EvidenceRefs {
			if !known[ref] {
				issues = append(issues, Issue{
					Code:    IssueUnknownEvidenceRef,
					Path:    fmt.Sprintf("/priorities/%d/evidence_refs/%d", i, j),
					Message: fmt.Sprintf("evidence id %q does not exist", ref),
				})
			}
		}
	}

	return Result{OK: len(issues) == 0, Issues: issues}
}
