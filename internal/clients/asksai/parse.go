package asksai

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

var factKeys = map[string]bool{
	"title": true, "description": true, "confidence": true, "priority_hint": true,
	"urgency_hint": true, "persona_hint": true, "theme": true, "keywords": true,
}

var matchKeys = map[string]bool{"matched": true, "ask_id": true, "confidence": true, "reasoning": true}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func parseExtract(obj map[string]any) (*ExtractResponse, error) {
	rawFacts, ok := obj["facts"]
	if !ok {
		return nil, malformed("missing facts")
	}
	list, ok := rawFacts.([]any)
	if !ok {
		if rawFacts == nil {
			return &ExtractResponse{Facts: []CandidateFact{}}, nil
		}
		return nil, malformed("facts is %T, want array", rawFacts)
	}
	out := &ExtractResponse{Facts: make([]CandidateFact, 0, len(list))}
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			out.Rejected = append(out.Rejected, fmt.Sprintf("facts[%d] is %T, want object", i, item))
			continue
		}
		f := CandidateFact{
			Title:        strings.TrimSpace(str(m["title"])),
			Description:  strings.TrimSpace(str(m["description"])),
			PriorityHint: strings.TrimSpace(str(m["priority_hint"])),
			UrgencyHint:  strings.TrimSpace(str(m["urgency_hint"])),
			PersonaHint:  strings.TrimSpace(str(m["persona_hint"])),
			Theme:        strings.TrimSpace(str(m["theme"])),
			Keywords:     strs(m["keywords"]),
		}
		if f.Title == "" {
			out.Rejected = append(out.Rejected, fmt.Sprintf("facts[%d].title empty", i))
			continue
		}
		// A titled fact with an unusable confidence is kept so it can be recorded as skipped.
		if conf, ok := num(m["confidence"]); ok && conf >= 0 && conf <= 1 {
			f.Confidence = conf
		} else {
			f.Malformed = fmt.Sprintf("confidence out of range: %v", m["confidence"])
		}
		for k, v := range m {
			if factKeys[k] {
				continue
			}
			if f.Extra == nil {
				f.Extra = map[string]any{}
			}
			f.Extra[k] = v
		}
		out.Facts = append(out.Facts, f)
	}
	return out, nil
}

// parseMatch validates the matcher answer against the candidate set it was given.
func parseMatch(obj map[string]any, candidates []MatchCandidate) (*MatchResult, error) {
	matched, ok := obj["matched"].(bool)
	if !ok {
		return nil, malformed("matched is %T, want bool", obj["matched"])
	}
	conf, ok := num(obj["confidence"])
	if !ok || conf < 0 || conf > 1 {
		return nil, malformed("confidence out of range: %v", obj["confidence"])
	}
	res := &MatchResult{Matched: matched, Confidence: conf, Reasoning: strings.TrimSpace(str(obj["reasoning"]))}
	if matched {
		raw := strings.TrimSpace(str(obj["ask_id"]))
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, malformed("ask_id %q is not a uuid", raw)
		}
		known := false
		for _, c := range candidates {
			if c.ID == id {
				known = true
				break
			}
		}
		if !known {
			return nil, malformed("ask_id %s is not one of the candidates", id)
		}
		res.AskID = &id
	}
	for k, v := range obj {
		if matchKeys[k] {
			continue
		}
		if res.Extra == nil {
			res.Extra = map[string]any{}
		}
		res.Extra[k] = v
	}
	return res, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func strs(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(str(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
