package tool

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// Summarizer condenses text, typically with a language model. Its output is
// not trusted to respect the word cap.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

const (
	// maxWordBytes is the longest single token a digest carries whole.
	maxWordBytes = 48
	// bytesPerWord derives a byte cap when none is configured.
	bytesPerWord = 12
)

// Compactor bounds raw source text to a word cap and a byte cap while
// keeping the sentences that carry the most entities (proper nouns, part
// identifiers, magnitudes).
type Compactor struct {
	maxWords   int
	maxBytes   int
	summarizer Summarizer
}

// NewCompactor caps digests at maxWords words and maxBytes bytes. A
// non-positive maxBytes is derived from maxWords.
func NewCompactor(maxWords, maxBytes int, summarizer Summarizer) *Compactor {
	if maxWords <= 0 {
		maxWords = 50
	}
	if maxBytes <= 0 {
		maxBytes = maxWords * bytesPerWord
	}
	return &Compactor{maxWords: maxWords, maxBytes: maxBytes, summarizer: summarizer}
}

func (c *Compactor) MaxWords() int { return c.maxWords }

func (c *Compactor) MaxBytes() int { return c.maxBytes }

// Compact returns text with at most MaxWords words and MaxBytes bytes, and
// whether anything was dropped. Tokens longer than maxWordBytes are cut.
func (c *Compactor) Compact(ctx context.Context, text string) (string, bool) {
	text, clipped := clipLongWords(normalizeSpace(text), maxWordBytes)
	if len(strings.Fields(text)) <= c.maxWords && len(text) <= c.maxBytes {
		return text, clipped
	}

	if c.summarizer != nil {
		summary, err := c.summarizer.Summarize(ctx, text, c.maxWords)
		if err == nil && strings.TrimSpace(summary) != "" {
			summary, _ = clipLongWords(normalizeSpace(summary), maxWordBytes)
			return capBytes(compactExtractive(summary, c.maxWords), c.maxBytes), true
		}
		log.Ctx(ctx).Warn().Err(err).Msg("summarizer failed, falling back to extractive compaction")
	}

	return capBytes(compactExtractive(text, c.maxWords), c.maxBytes), true
}

// clipLongWords cuts every whitespace-delimited token to at most limit
// bytes.
func clipLongWords(text string, limit int) (string, bool) {
	var b strings.Builder
	clipped := false
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		if len(word) > limit {
			word = truncateBytes(word, limit)
			clipped = true
		}
		b.WriteString(word)
		start = -1
	}
	for i, r := range text {
		if unicode.IsSpace(r) {
			flush(i)
			b.WriteRune(r)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(text))
	if !clipped {
		return text, false
	}
	return b.String(), true
}

// capBytes shortens text to at most limit bytes, preferring a word
// boundary.
func capBytes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := truncateBytes(text, limit)
	if i := strings.LastIndexAny(cut, " \n"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type rankedSentence struct {
	index int
	words []string
	score int
}

func compactExtractive(text string, maxWords int) string {
	sentences := splitSentences(text)
	ranked := make([]rankedSentence, 0, len(sentences))
	for i, s := range sentences {
		words := strings.Fields(s)
		if len(words) == 0 {
			continue
		}
		ranked = append(ranked, rankedSentence{index: i, words: words, score: entityCount(words)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		// ties go to the denser sentence
		di := float64(ranked[i].score) / float64(len(ranked[i].words))
		dj := float64(ranked[j].score) / float64(len(ranked[j].words))
		return di > dj
	})

	budget := maxWords
	chosen := make(map[int][]string, len(ranked))
	for _, r := range ranked {
		if len(r.words) <= budget {
			chosen[r.index] = r.words
			budget -= len(r.words)
		}
	}
	if budget > 0 {
		for _, r := range ranked {
			if _, ok := chosen[r.index]; ok {
				continue
			}
			if budget < 4 && len(chosen) > 0 {
				break
			}
			chosen[r.index] = trimWords(r.words, budget)
			budget = 0
			break
		}
	}

	indexes := make([]int, 0, len(chosen))
	for i := range chosen {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		parts = append(parts, strings.Join(chosen[i], " "))
	}
	return strings.Join(parts, " ")
}

// trimWords keeps entity words first, then fills the budget with the rest,
// preserving the original order.
func trimWords(words []string, budget int) []string {
	if len(words) <= budget {
		return words
	}
	keep := make([]bool, len(words))
	left := budget
	for i, w := range words {
		if left == 0 {
			break
		}
		if isEntity(w) {
			keep[i] = true
			left--
		}
	}
	for i := range words {
		if left == 0 {
			break
		}
		if !keep[i] {
			keep[i] = true
			left--
		}
	}
	out := make([]string, 0, budget)
	for i, w := range words {
		if keep[i] {
			out = append(out, w)
		}
	}
	return out
}

func entityCount(words []string) int {
	n := 0
	for _, w := range words {
		if isEntity(w) {
			n++
		}
	}
	return n
}

func isEntity(word string) bool {
	w := strings.TrimFunc(word, func(r rune) bool { return unicode.IsPunct(r) && r != '-' })
	if w == "" {
		return false
	}
	for _, r := range w {
		if unicode.IsDigit(r) {
			return true
		}
	}
	first := []rune(w)[0]
	return unicode.IsUpper(first)
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// keep decimals such as 7.4 together
			if r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1]) {
				continue
			}
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func normalizeSpace(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
