package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/yungbote/askflow-backend/internal/domain/asks"
)

type Input struct {
	Text       string
	SourceType asks.SourceType
	ActorRole  asks.ActorRole
	Metadata   asks.EventMetadata
}

type Result struct {
	Score         float64  `json:"score"`
	Reason        string   `json:"reason"`
	KeywordsFound []string `json:"keywords_found"`
	ShouldSkip    bool     `json:"should_skip"`
}

// Scorer is a pure function of its rules; it is safe for concurrent use.
type Scorer struct {
	rules Rules
	terms []compiledTerm
}

func New(rules Rules) (*Scorer, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	terms, err := compile(rules.Patterns)
	if err != nil {
		return nil, err
	}
	return &Scorer{rules: rules, terms: terms}, nil
}

func Default() *Scorer {
	s, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return s
}

// WithSkipThreshold returns a copy using threshold.
func (s *Scorer) WithSkipThreshold(threshold float64) *Scorer {
	cp := *s
	cp.rules.SkipThreshold = threshold
	return &cp
}

func (s *Scorer) SkipThreshold() float64 { return s.rules.SkipThreshold }

func (s *Scorer) Score(in Input) Result {
	text := strings.TrimSpace(in.Text)
	if subj := strings.TrimSpace(in.Metadata.Subject); subj != "" {
		text = subj + "\n" + text
	}

	score := s.rules.Base
	var reasons []string
	var keywords []string

	boost := 0.0
	penalty := 0.0
	for _, t := range s.terms {
		if !t.re.MatchString(text) {
			continue
		}
		keywords = append(keywords, t.term)
		if t.weight >= 0 {
			boost += t.weight
		} else {
			penalty += t.weight
		}
	}
	if boost > s.rules.MaxKeywordBoost {
		boost = s.rules.MaxKeywordBoost
	}
	if boost != 0 {
		reasons = append(reasons, fmt.Sprintf("keywords%+.2f", boost))
	}
	if penalty != 0 {
		reasons = append(reasons, fmt.Sprintf("noise%+.2f", penalty))
	}
	score += boost + penalty

	words := len(strings.Fields(in.Text))
	for _, band := range s.rules.Length {
		if words < band.MinWords || (band.MaxWords > 0 && words > band.MaxWords) {
			continue
		}
		score += band.Weight
		if band.Weight != 0 {
			reasons = append(reasons, fmt.Sprintf("length:%s%+.2f", band.Name, band.Weight))
		}
		break
	}

	if w, ok := s.rules.ActorWeights[string(in.ActorRole)]; ok && w != 0 {
		score += w
		reasons = append(reasons, fmt.Sprintf("actor:%s%+.2f", in.ActorRole, w))
	}
	if w, ok := s.rules.SourceWeights[string(in.SourceType)]; ok && w != 0 {
		score += w
		reasons = append(reasons, fmt.Sprintf("source:%s%+.2f", in.SourceType, w))
	}

	if text == "" {
		score = 0
		reasons = []string{"empty text"}
	}
	score = clamp01(round3(score))
	if len(reasons) == 0 {
		reasons = append(reasons, "base")
	}
	if keywords == nil {
		keywords = []string{}
	}
	return Result{
		Score:         score,
		Reason:        strings.Join(reasons, "; "),
		KeywordsFound: keywords,
		ShouldSkip:    score < s.rules.SkipThreshold,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
