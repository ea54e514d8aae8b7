package asksai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const extractSystem = `You extract product feedback from customer conversations.
A fact is one concrete thing the customer wants the product to do, or a problem they need solved.
Ignore greetings, scheduling, pleasantries, and internal chatter.
Return zero facts when the text contains no request.
Confidence is your probability (0..1) that the fact is a real, specific product ask.
Reuse an existing ask's wording in the title when the text describes the same request.
Pick theme from the known themes when one fits, otherwise an empty string.`

const matchSystem = `You decide whether a newly extracted customer ask is the same request as one of the existing asks.
Two asks match only when shipping one would satisfy the other.
Related but different requests (for example "CSV export" vs "PDF export") do not match.
If matched, ask_id must be the id of exactly one listed candidate.
Confidence is your probability (0..1) that the match decision is correct.`

func extractUser(req ExtractRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\nSpeaker role: %s\n\n", req.SourceType, req.ActorRole)
	ctx, _ := json.Marshal(req.Context)
	b.WriteString("Workspace context:\n")
	b.Write(ctx)
	b.WriteString("\n\nText:\n")
	b.WriteString(req.Text)
	return b.String()
}

func matchUser(req MatchRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New ask:\ntitle: %s\ndescription: %s\n", req.Fact.Title, req.Fact.Description)
	if req.Fact.Theme != "" {
		fmt.Fprintf(&b, "theme: %s\n", req.Fact.Theme)
	}
	b.WriteString("\nExisting asks:\n")
	for _, c := range req.Candidates {
		fmt.Fprintf(&b, "- id: %s\n  name: %s\n  description: %s\n", c.ID, c.Name, c.Description)
	}
	return b.String()
}

func nullableString() map[string]any {
	return map[string]any{"type": []any{"string", "null"}}
}

func extractSchema() map[string]any {
	fact := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"title", "description", "confidence", "priority_hint", "urgency_hint", "persona_hint", "theme", "keywords"},
		"properties": map[string]any{
			"title":         map[string]any{"type": "string"},
			"description":   map[string]any{"type": "string"},
			"confidence":    map[string]any{"type": "number"},
			"priority_hint": map[string]any{"type": "string", "enum": []any{"low", "medium", "high", ""}},
			"urgency_hint":  map[string]any{"type": "string", "enum": []any{"low", "medium", "high", "critical", ""}},
			"persona_hint":  nullableString(),
			"theme":         map[string]any{"type": "string"},
			"keywords":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"facts"},
		"properties": map[string]any{
			"facts": map[string]any{"type": "array", "items": fact},
		},
	}
}

func matchSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"matched", "ask_id", "confidence", "reasoning"},
		"properties": map[string]any{
			"matched":    map[string]any{"type": "boolean"},
			"ask_id":     nullableString(),
			"confidence": map[string]any{"type": "number"},
			"reasoning":  map[string]any{"type": "string"},
		},
	}
}
