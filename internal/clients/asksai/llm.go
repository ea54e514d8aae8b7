package asksai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/askflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
	"github.com/yungbote/askflow-backend/internal/platform/openai"
)

type Options struct {
	// CallTimeout bounds one collaborator call including client-side retries.
	CallTimeout time.Duration
	// RatePerSecond is shared by every worker in the process; <= 0 disables limiting.
	RatePerSecond float64
	Burst         int
}

type llmService struct {
	log         *logger.Logger
	client      openai.Client
	limiter     *rate.Limiter
	callTimeout time.Duration
}

func NewLLMService(log *logger.Logger, client openai.Client, opts Options) (Service, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &llmService{
		log:         log.With("service", "AsksAI"),
		client:      client,
		limiter:     limiter,
		callTimeout: opts.CallTimeout,
	}, nil
}

func (s *llmService) call(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	ctx = ctxutil.Default(ctx)
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	obj, err := s.client.GenerateJSON(callCtx, system, user, schemaName, schema)
	if err != nil {
		if errors.Is(err, openai.ErrEmptyOutput) || errors.Is(err, openai.ErrInvalidJSON) || errors.Is(err, openai.ErrRefused) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, err
	}
	return obj, nil
}

func (s *llmService) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return &ExtractResponse{Facts: []CandidateFact{}}, nil
	}
	obj, err := s.call(ctx, extractSystem, extractUser(req), "extract_facts", extractSchema())
	if err != nil {
		return nil, err
	}
	out, err := parseExtract(obj)
	if err != nil {
		s.log.Warn("Extraction output rejected", "event_id", req.EventID, "chunk_index", req.ChunkIndex, "error", err)
		return nil, err
	}
	if len(out.Rejected) > 0 {
		s.log.Warn("Dropped malformed extraction items", "event_id", req.EventID, "chunk_index", req.ChunkIndex, "rejected", out.Rejected)
	}
	return out, nil
}

func (s *llmService) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	if len(req.Candidates) == 0 {
		return &MatchResult{Matched: false}, nil
	}
	obj, err := s.call(ctx, matchSystem, matchUser(req), "match_ask", matchSchema())
	if err != nil {
		return nil, err
	}
	out, err := parseMatch(obj, req.Candidates)
	if err != nil {
		s.log.Warn("Match output rejected", "workspace_id", req.WorkspaceID, "error", err)
		return nil, err
	}
	return out, nil
}
