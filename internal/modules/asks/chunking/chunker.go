package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxChars  = 2000
	DefaultThreshold = 2000
)

type Options struct {
	// MaxChars bounds every chunk, in runes.
	MaxChars int
	// Threshold is the length below which a unit stays a single chunk.
	Threshold int
}

func (o Options) normalized() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = DefaultMaxChars
	}
	if o.Threshold <= 0 || o.Threshold > o.MaxChars {
		o.Threshold = o.MaxChars
	}
	return o
}

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	// a sentence ends at . ! ? (optionally followed by closing quotes/brackets) and whitespace
	sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// Chunk splits text into ordered, non-empty chunks of at most MaxChars runes. Text shorter
// than Threshold comes back unchanged as a single chunk. Splits prefer paragraph breaks, then
// sentence ends; a sentence longer than MaxChars is split on word boundaries.
func Chunk(text string, opts Options) []string {
	opts = opts.normalized()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if runeLen(text) < opts.Threshold {
		return []string{text}
	}

	var units []string
	for _, para := range paragraphSplit.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if runeLen(para) <= opts.MaxChars {
			units = append(units, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if runeLen(sent) <= opts.MaxChars {
				units = append(units, sent)
				continue
			}
			units = append(units, splitWords(sent, opts.MaxChars)...)
		}
	}
	return pack(units, opts.MaxChars)
}

func splitSentences(para string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(para, -1) {
		s := strings.TrimSpace(para[start:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(para[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func splitWords(sentence string, maxChars int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, w := range strings.Fields(sentence) {
		wl := runeLen(w)
		for wl > maxChars {
			// a single token longer than the budget; cut it by runes
			if curLen > 0 {
				out = append(out, cur.String())
				cur.Reset()
				curLen = 0
			}
			head, tail := splitRunes(w, maxChars)
			out = append(out, head)
			w, wl = tail, runeLen(tail)
		}
		if wl == 0 {
			continue
		}
		sep := 0
		if curLen > 0 {
			sep = 1
		}
		if curLen+sep+wl > maxChars {
			out = append(out, cur.String())
			cur.Reset()
			curLen, sep = 0, 0
		}
		if sep == 1 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
		curLen += sep + wl
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

// pack greedily joins consecutive units while they fit in maxChars.
func pack(units []string, maxChars int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, u := range units {
		ul := runeLen(u)
		if curLen > 0 && curLen+1+ul > maxChars {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte('\n')
			curLen++
		}
		cur.WriteString(u)
		curLen += ul
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for idx := range s {
		if i == n {
			return s[:idx], s[idx:]
		}
		i++
	}
	return s, ""
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
