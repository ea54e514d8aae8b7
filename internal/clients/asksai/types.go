package asksai

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrMalformed marks a collaborator answer that could not be used at all. It is retryable:
// the caller releases the row with an error rather than skipping it.
var ErrMalformed = errors.New("asksai: malformed response")

// Service is the Extraction/Matching collaborator.
type Service interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	Match(ctx context.Context, req MatchRequest) (*MatchResult, error)
}

// WorkspaceContext is what the model knows about a tenant besides the text itself.
type WorkspaceContext struct {
	Themes       []string `json:"themes"`
	ExistingAsks []string `json:"existing_asks"`
}

type ExtractRequest struct {
	WorkspaceID uuid.UUID
	EventID     uuid.UUID
	ChunkIndex  int
	Text        string
	SourceType  string
	ActorRole   string
	Context     WorkspaceContext
}

type CandidateFact struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Confidence   float64  `json:"confidence"`
	PriorityHint string   `json:"priority_hint,omitempty"`
	UrgencyHint  string   `json:"urgency_hint,omitempty"`
	PersonaHint  string   `json:"persona_hint,omitempty"`
	Theme        string   `json:"theme,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	// Extra keeps provider fields this version does not model.
	Extra map[string]any `json:"extra,omitempty"`
	// Malformed is set when the item is identifiable but unusable; the fact is stored as skipped.
	Malformed string `json:"-"`
}

// ExtractResponse is ErrMalformed only when the answer as a whole is unusable. Bad items
// are dropped into Rejected (no title to keep) or flagged via CandidateFact.Malformed.
type ExtractResponse struct {
	Facts    []CandidateFact `json:"facts"`
	Rejected []string        `json:"rejected,omitempty"`
}

type MatchCandidate struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type MatchRequest struct {
	WorkspaceID uuid.UUID
	Fact        CandidateFact
	Candidates  []MatchCandidate
}

type MatchResult struct {
	Matched    bool           `json:"matched"`
	AskID      *uuid.UUID     `json:"ask_id,omitempty"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Extra      map[string]any `json:"extra,omitempty"`
}
