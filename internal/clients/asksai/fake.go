package asksai

import (
	"context"
	"sync"
)

// Fake is a scripted Service for tests and local runs without an API key.
type Fake struct {
	mu sync.Mutex

	ExtractFn func(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	MatchFn   func(ctx context.Context, req MatchRequest) (*MatchResult, error)

	ExtractCalls []ExtractRequest
	MatchCalls   []MatchRequest
}

func (f *Fake) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	f.mu.Lock()
	f.ExtractCalls = append(f.ExtractCalls, req)
	fn := f.ExtractFn
	f.mu.Unlock()
	if fn == nil {
		return &ExtractResponse{Facts: []CandidateFact{}}, nil
	}
	return fn(ctx, req)
}

func (f *Fake) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	f.mu.Lock()
	f.MatchCalls = append(f.MatchCalls, req)
	fn := f.MatchFn
	f.mu.Unlock()
	if fn == nil {
		return &MatchResult{Matched: false}, nil
	}
	return fn(ctx, req)
}

func (f *Fake) ExtractCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ExtractCalls)
}

func (f *Fake) MatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.MatchCalls)
}
