package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortTextIsSingleChunk(t *testing.T) {
	text := "Can we get SSO with Okta?  We have 400 seats waiting.\n"
	got := Chunk(text, Options{MaxChars: 200, Threshold: 200})
	require.Len(t, got, 1)
	assert.Equal(t, text, got[0], "short units must come back byte-for-byte")
}

func TestEmptyTextHasNoChunks(t *testing.T) {
	assert.Empty(t, Chunk("  \n\t ", Options{}))
}

func TestLongTextSplitsOnSentences(t *testing.T) {
	sentence := "We need audit logs exported to our SIEM every hour."
	text := strings.Repeat(sentence+" ", 20)
	got := Chunk(text, Options{MaxChars: 120, Threshold: 100})
	require.Greater(t, len(got), 1)

	for i, c := range got {
		assert.NotEmpty(t, strings.TrimSpace(c), "chunk %d empty", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120, "chunk %d too long", i)
		for _, line := range strings.Split(c, "\n") {
			assert.True(t, strings.HasSuffix(line, "."), "chunk %d split mid-sentence: %q", i, line)
		}
	}
	joined := strings.Join(got, " ")
	assert.Equal(t, 20, strings.Count(joined, sentence), "every sentence kept exactly once, in order")
}

func TestParagraphsArePreferred(t *testing.T) {
	p1 := strings.Repeat("a", 60) + "."
	p2 := strings.Repeat("b", 60) + "."
	got := Chunk(p1+"\n\n"+p2, Options{MaxChars: 100, Threshold: 50})
	require.Equal(t, []string{p1, p2}, got)
}

func TestOversizedSentenceSplitsOnWords(t *testing.T) {
	words := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		words = append(words, "integration")
	}
	text := strings.Join(words, " ")
	got := Chunk(text, Options{MaxChars: 50, Threshold: 50})
	require.Greater(t, len(got), 1)
	total := 0
	for _, c := range got {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50)
		for _, w := range strings.Fields(c) {
			assert.Equal(t, "integration", w, "words must not be cut")
		}
		total += len(strings.Fields(c))
	}
	assert.Equal(t, 100, total)
}
