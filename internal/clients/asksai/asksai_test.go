package asksai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type stubClient struct {
	out   map[string]any
	err   error
	delay time.Duration
	calls int
}

func (s *stubClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.out, s.err
}

func TestExtractParsesFactsAndKeepsExtra(t *testing.T) {
	stub := &stubClient{out: map[string]any{
		"facts": []any{map[string]any{
			"title":         "CSV export for reports",
			"description":   "Export monthly reports as CSV",
			"confidence":    0.9,
			"priority_hint": "high",
			"keywords":      []any{"csv", "export"},
			"sentiment":     "frustrated",
		}},
	}}
	svc, err := NewLLMService(logger.Nop(), stub, Options{})
	require.NoError(t, err)

	res, err := svc.Extract(context.Background(), ExtractRequest{Text: "we need csv export"})
	require.NoError(t, err)
	require.Len(t, res.Facts, 1)
	f := res.Facts[0]
	assert.Equal(t, "CSV export for reports", f.Title)
	assert.Equal(t, 0.9, f.Confidence)
	assert.Equal(t, []string{"csv", "export"}, f.Keywords)
	assert.Equal(t, "frustrated", f.Extra["sentiment"])
}

func TestExtractRejectsMalformedOutput(t *testing.T) {
	cases := []map[string]any{
		{"nope": true},
		{"facts": "x"},
		{"facts": map[string]any{"title": "t"}},
	}
	for i, out := range cases {
		svc, _ := NewLLMService(logger.Nop(), &stubClient{out: out}, Options{})
		_, err := svc.Extract(context.Background(), ExtractRequest{Text: "x"})
		assert.True(t, errors.Is(err, ErrMalformed), "case %d: %v", i, err)
	}
}

func TestExtractKeepsGoodItemsNextToBadOnes(t *testing.T) {
	stub := &stubClient{out: map[string]any{"facts": []any{
		map[string]any{"title": "CSV export", "confidence": 0.9},
		map[string]any{"title": "", "confidence": 0.2},
		"not an object",
		map[string]any{"title": "Dark mode", "confidence": 1.5},
	}}}
	svc, err := NewLLMService(logger.Nop(), stub, Options{})
	require.NoError(t, err)

	res, err := svc.Extract(context.Background(), ExtractRequest{Text: "x"})
	require.NoError(t, err)
	require.Len(t, res.Facts, 2)
	assert.Equal(t, "CSV export", res.Facts[0].Title)
	assert.Empty(t, res.Facts[0].Malformed)
	assert.Equal(t, 0.9, res.Facts[0].Confidence)
	assert.Equal(t, "Dark mode", res.Facts[1].Title)
	assert.NotEmpty(t, res.Facts[1].Malformed)
	assert.Len(t, res.Rejected, 2)
}

func TestMatchValidatesAskID(t *testing.T) {
	known := uuid.New()
	candidates := []MatchCandidate{{ID: known, Name: "CSV export"}}

	svc, _ := NewLLMService(logger.Nop(), &stubClient{out: map[string]any{
		"matched": true, "ask_id": known.String(), "confidence": 0.75, "reasoning": "same",
	}}, Options{})
	res, err := svc.Match(context.Background(), MatchRequest{Candidates: candidates})
	require.NoError(t, err)
	require.NotNil(t, res.AskID)
	assert.Equal(t, known, *res.AskID)
	assert.Equal(t, 0.75, res.Confidence)

	svc, _ = NewLLMService(logger.Nop(), &stubClient{out: map[string]any{
		"matched": true, "ask_id": uuid.NewString(), "confidence": 0.9, "reasoning": "",
	}}, Options{})
	_, err = svc.Match(context.Background(), MatchRequest{Candidates: candidates})
	assert.True(t, errors.Is(err, ErrMalformed), "unknown ask id must be malformed: %v", err)

	svc, _ = NewLLMService(logger.Nop(), &stubClient{out: map[string]any{
		"matched": false, "ask_id": nil, "confidence": 0.2, "reasoning": "different",
	}}, Options{})
	res, err = svc.Match(context.Background(), MatchRequest{Candidates: candidates})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Nil(t, res.AskID)
}

func TestMatchWithoutCandidatesSkipsCall(t *testing.T) {
	stub := &stubClient{}
	svc, _ := NewLLMService(logger.Nop(), stub, Options{})
	res, err := svc.Match(context.Background(), MatchRequest{})
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 0, stub.calls)
}

func TestCallTimeoutIsRetryable(t *testing.T) {
	stub := &stubClient{delay: time.Second, out: map[string]any{"facts": []any{}}}
	svc, _ := NewLLMService(logger.Nop(), stub, Options{CallTimeout: 20 * time.Millisecond})
	_, err := svc.Extract(context.Background(), ExtractRequest{Text: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
