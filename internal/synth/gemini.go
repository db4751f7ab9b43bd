package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

const systemPrompt = `You are a chief-of-staff assistant producing a structured morning brief.
Respond with ONLY a single JSON object matching the daybrief_v1 schema:
{"schema":"daybrief_v1","generated_at":"<RFC3339>","mission":{"title","rationale","horizon":"today"|"this_week"},
"priorities":[{"id","rank":1..3,"headline","summary","confidence":"low"|"medium"|"high","evidence_refs":[...],"verification_prompt"}],
"evidence":[{"id","source","entity","metric","value_text","observed_at","freshness_minutes","link"}],
"assumptions":[{"id","text","reason","source_scope":[...]}],
"quick_reaction_prompt":"..."}
At most 3 priorities, unique ranks 1..3, every evidence_ref must match an evidence id,
and every low-confidence priority must include a verification_prompt.`

// GeminiSynthesizer is the production Synthesizer binding over the Gemini API.
type GeminiSynthesizer struct {
	client *genai.Client
	model  string
}

// NewGeminiSynthesizer builds the production capability. Model defaults when
// blank.
func NewGeminiSynthesizer(ctx context.Context, apiKey, model string) (*GeminiSynthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiSynthesizer{client: client, model: model}, nil
}

// Invoke implements Synthesizer: one model call, decoded to a JSON-like value.
func (g *GeminiSynthesizer) Invoke(ctx context.Context, req Request) (any, error) {
	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		})
	if err != nil {
		return nil, fmt.Errorf("gemini attempt %d: %w", req.Attempt, err)
	}

	return DecodeCandidate(result.Text())
}

// buildPrompt renders the synthesis (or repair) request as a user prompt.
func buildPrompt(req Request) (string, error) {
	var sb strings.Builder

	inputJSON, err := json.Marshal(req.Input)
	if err != nil {
		return "", fmt.Errorf("encode input: %w", err)
	}
	fmt.Fprintf(&sb, "Workspace input:\n%s\n", inputJSON)

	if req.Attempt > 1 {
		sb.WriteString("\nYour previous brief failed validation. Fix every issue and return the corrected JSON object.\n")
		if req.PreviousCandidate != nil {
			if prev, err := json.Marshal(req.PreviousCandidate); err == nil {
				fmt.Fprintf(&sb, "Previous candidate:\n%s\n", prev)
			}
		}
		for _, issue := range req.Issues {
			fmt.Fprintf(&sb, "- %s at %s: %s\n", issue.Code, issue.Path, issue.Message)
		}
	}

	return sb.String(), nil
}
