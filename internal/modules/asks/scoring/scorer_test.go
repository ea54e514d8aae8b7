package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
)

const exportAsk = "Hey team, we really need a way to export our monthly reports to CSV. " +
	"Right now our finance folks copy everything manually into spreadsheets which is painful " +
	"and error prone. Could you add this soon? It is blocking our close process every month."

func TestScoreCustomerRequestPasses(t *testing.T) {
	s := Default()
	res := s.Score(Input{Text: exportAsk, SourceType: asks.SourceSlack, ActorRole: asks.ActorCustomer})
	if res.ShouldSkip {
		t.Fatalf("expected request to pass, got score=%v reason=%q", res.Score, res.Reason)
	}
	if res.Score < 0.8 {
		t.Fatalf("expected a strong score, got %v (%s)", res.Score, res.Reason)
	}
	want := map[string]bool{"need": true, "could you add": true, "manually": true, "painful": true}
	for _, kw := range res.KeywordsFound {
		delete(want, kw)
	}
	if len(want) != 0 {
		t.Fatalf("missing keywords %v in %v", want, res.KeywordsFound)
	}
}

func TestScoreNoiseIsSkipped(t *testing.T) {
	s := Default()
	res := s.Score(Input{Text: "ok thanks, sounds good", SourceType: asks.SourceSlack, ActorRole: asks.ActorInternal})
	if !res.ShouldSkip {
		t.Fatalf("expected noise to be skipped, got %v", res.Score)
	}
	if res.Score < 0 || res.Score > 1 {
		t.Fatalf("score out of range: %v", res.Score)
	}
}

func TestScoreThresholdIsInclusive(t *testing.T) {
	s := Default()
	in := Input{Text: "ok thanks, sounds good", ActorRole: asks.ActorInternal}
	res := s.Score(in)
	if got := s.WithSkipThreshold(res.Score).Score(in); got.ShouldSkip {
		t.Fatalf("score equal to threshold must pass")
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := Default()
	in := Input{Text: exportAsk, SourceType: asks.SourceEmail, ActorRole: asks.ActorProspect, Metadata: asks.EventMetadata{Subject: "Feature request"}}
	first := s.Score(in)
	for i := 0; i < 5; i++ {
		again := s.Score(in)
		if again.Score != first.Score || again.Reason != first.Reason || len(again.KeywordsFound) != len(first.KeywordsFound) {
			t.Fatalf("non-deterministic score: %+v vs %+v", first, again)
		}
	}
}

func TestScoreEmptyText(t *testing.T) {
	res := Default().Score(Input{Text: "   ", ActorRole: asks.ActorCustomer})
	if res.Score != 0 || !res.ShouldSkip {
		t.Fatalf("empty text should score 0 and skip, got %+v", res)
	}
}

func TestLoadRulesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	body := []byte("skip_threshold: 0.5\nactor_weights:\n  internal: 0.2\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.SkipThreshold != 0.5 {
		t.Fatalf("skip_threshold not applied: %v", rules.SkipThreshold)
	}
	if rules.ActorWeights["internal"] != 0.2 || rules.ActorWeights["customer"] != 0.15 {
		t.Fatalf("actor weights not merged: %v", rules.ActorWeights)
	}
	if len(rules.Patterns) == 0 {
		t.Fatalf("default patterns should survive a partial file")
	}

	if err := os.WriteFile(path, []byte("skip_threshold: 2\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatalf("expected validation error for threshold > 1")
	}
}
