package scoring

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PatternKind groups phrase lists by what they signal.
type PatternKind string

const (
	KindRequest PatternKind = "request"
	KindPain    PatternKind = "pain"
	KindNoise   PatternKind = "noise"
)

type Pattern struct {
	Kind   PatternKind `yaml:"kind"`
	Weight float64     `yaml:"weight"`
	Terms  []string    `yaml:"terms"`
}

// LengthBand applies Weight when MinWords <= words and (MaxWords == 0 or words <= MaxWords).
type LengthBand struct {
	Name     string  `yaml:"name"`
	MinWords int     `yaml:"min_words"`
	MaxWords int     `yaml:"max_words"`
	Weight   float64 `yaml:"weight"`
}

type Rules struct {
	Base            float64            `yaml:"base"`
	SkipThreshold   float64            `yaml:"skip_threshold"`
	MaxKeywordBoost float64            `yaml:"max_keyword_boost"`
	Patterns        []Pattern          `yaml:"patterns"`
	Length          []LengthBand       `yaml:"length"`
	ActorWeights    map[string]float64 `yaml:"actor_weights"`
	SourceWeights   map[string]float64 `yaml:"source_weights"`
}

const DefaultSkipThreshold = 0.3

func DefaultRules() Rules {
	return Rules{
		Base:            0.2,
		SkipThreshold:   DefaultSkipThreshold,
		MaxKeywordBoost: 0.5,
		Patterns: []Pattern{
			{
				Kind:   KindRequest,
				Weight: 0.15,
				Terms: []string{
					"feature request", "would love", "wish", "need", "needs", "please add",
					"can you add", "could you add", "it would be great", "would be nice",
					"support for", "integration with", "ability to", "option to", "any way to",
					"is there a way", "roadmap", "looking for", "missing",
				},
			},
			{
				Kind:   KindPain,
				Weight: 0.1,
				Terms: []string{
					"frustrating", "painful", "blocker", "blocking", "manually", "workaround",
					"broken", "annoying", "too slow", "can't", "cannot", "doesn't work",
					"churn", "cancel", "deal breaker",
				},
			},
			{
				Kind:   KindNoise,
				Weight: -0.15,
				Terms: []string{
					"thanks", "thank you", "lol", "ok", "okay", "sounds good", "out of office",
					"unsubscribe", "lunch", "see you", "meeting moved", "calendar invite",
				},
			},
		},
		Length: []LengthBand{
			{Name: "tiny", MinWords: 0, MaxWords: 4, Weight: -0.2},
			{Name: "short", MinWords: 5, MaxWords: 14, Weight: 0},
			{Name: "medium", MinWords: 15, MaxWords: 200, Weight: 0.1},
			{Name: "long", MinWords: 201, MaxWords: 0, Weight: 0.05},
		},
		ActorWeights: map[string]float64{
			"customer": 0.15,
			"prospect": 0.15,
			"internal": -0.1,
			"unknown":  0,
		},
		SourceWeights: map[string]float64{
			"call_transcript": 0.05,
		},
	}
}

// LoadRules reads a YAML rules file on top of DefaultRules. Lists present in the file
// replace the defaults; maps are merged key by key.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	path = strings.TrimSpace(path)
	if path == "" {
		return rules, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read scorer rules: %w", err)
	}
	if err := yaml.Unmarshal(b, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse scorer rules %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if r.SkipThreshold < 0 || r.SkipThreshold > 1 {
		return fmt.Errorf("skip_threshold must be within [0,1], got %v", r.SkipThreshold)
	}
	if r.MaxKeywordBoost < 0 {
		return fmt.Errorf("max_keyword_boost must be >= 0, got %v", r.MaxKeywordBoost)
	}
	for _, p := range r.Patterns {
		switch p.Kind {
		case KindRequest, KindPain, KindNoise:
		default:
			return fmt.Errorf("unknown pattern kind %q", p.Kind)
		}
	}
	return nil
}

type compiledTerm struct {
	kind   PatternKind
	term   string
	weight float64
	re     *regexp.Regexp
}

func compile(patterns []Pattern) ([]compiledTerm, error) {
	var out []compiledTerm
	seen := map[string]bool{}
	for _, p := range patterns {
		for _, term := range p.Terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" || seen[term] {
				continue
			}
			seen[term] = true
			re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("compile term %q: %w", term, err)
			}
			out = append(out, compiledTerm{kind: p.Kind, term: term, weight: p.Weight, re: re})
		}
	}
	return out, nil
}
