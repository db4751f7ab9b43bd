package synth

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	// ErrEmptyResponse means the model returned nothing usable at all.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMissingJSON means no JSON object could be located in the response.
	ErrMissingJSON = errors.New("no JSON object in model response")
)

// DecodeError reports that model output could not be decoded. It keeps the
// raw text so a repair attempt can show the model what it produced.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeCandidate extracts the JSON object from raw model output and decodes
// it into a loosely-typed value for the normalizer. Markdown code fences and
// surrounding prose are stripped; payloads that are close-to-JSON but
// malformed (trailing commas, single quotes, unquoted keys) go through a
// repair pass before giving up.
func DecodeCandidate(raw string) (any, error) {
	payload, err := extractJSONPayload(raw)
	if err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}

	if v, err := decodeLoose(payload); err == nil {
		return v, nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil, &DecodeError{Raw: raw, Err: ErrMissingJSON}
	}
	v, err := decodeLoose(repaired)
	if err != nil {
		return nil, &DecodeError{Raw: raw, Err: ErrMissingJSON}
	}
	return v, nil
}

func decodeLoose(payload string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// extractJSONPayload locates the outermost JSON object in raw, looking inside
// a markdown code fence first when one is present.
func extractJSONPayload(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}

	candidate := trimmed
	if strings.HasPrefix(trimmed, "```") {
		if end := strings.Index(trimmed[3:], "```"); end != -1 {
			content := trimmed[3 : 3+end]
			if idx := strings.Index(content, "\n"); idx != -1 {
				content = content[idx+1:]
			}
			candidate = strings.TrimSpace(content)
		}
	}

	if payload, ok := findJSONObject(candidate); ok {
		return payload, nil
	}
	if payload, ok := findJSONObject(trimmed); ok {
		return payload, nil
	}
	return "", ErrMissingJSON
}

// findJSONObject scans for a brace-balanced object, ignoring braces inside
// string literals.
func findJSONObject(input string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}
