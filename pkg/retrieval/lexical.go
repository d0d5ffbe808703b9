package retrieval

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/llm"
)

// LexicalWeights tunes the keyword heuristic. The zero value means
// DefaultLexicalWeights; start from DefaultLexicalWeights to change a few.
type LexicalWeights struct {
	ExactMatch      float64 `yaml:"exact_match"`
	PartialMatch    float64 `yaml:"partial_match"`
	PartialMinRunes int     `yaml:"partial_min_runes"`
	NearBonus       float64 `yaml:"near_bonus"`
	MidBonus        float64 `yaml:"mid_bonus"`
	FarBonus        float64 `yaml:"far_bonus"`
	NearChars       int     `yaml:"near_chars"`
	MidChars        int     `yaml:"mid_chars"`
	FarChars        int     `yaml:"far_chars"`
	CoverageBonus   float64 `yaml:"coverage_bonus"`
	MinWordCount    int     `yaml:"min_word_count"`
}

func DefaultLexicalWeights() LexicalWeights {
	return LexicalWeights{
		ExactMatch:      5,
		PartialMatch:    2,
		PartialMinRunes: 4,
		NearBonus:       8,
		MidBonus:        4,
		FarBonus:        2,
		NearChars:       50,
		MidChars:        100,
		FarChars:        200,
		CoverageBonus:   10,
		MinWordCount:    10,
	}
}

// withDefaults fills in the defaults only when no weight was given at all, so
// a deliberate zero in an otherwise configured set is kept.
func (w LexicalWeights) withDefaults() LexicalWeights {
	if w == (LexicalWeights{}) {
		return DefaultLexicalWeights()
	}
	return w
}

// RankLexical scores chunks by keyword overlap with the query. Chunks scoring
// 0 are dropped.
func RankLexical(query string, chunks []*models.Chunk, topK int, weights LexicalWeights) []models.RankedResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	weights = weights.withDefaults()

	terms := llm.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	results := make([]models.RankedResult, 0, len(chunks))
	for _, chunk := range chunks {
		score := LexicalScore(terms, chunk.Content, weights)
		if score > 0 {
			results = append(results, models.RankedResult{Chunk: chunk, Score: score})
		}
	}

	return top(results, topK)
}

// LexicalScore scores one chunk against already tokenized query terms,
// normalized by the log of the chunk length.
func LexicalScore(terms []string, content string, w LexicalWeights) float64 {
	text := llm.NormalizeText(content)
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	distinct := unique(terms)
	raw := 0.0

	for _, term := range distinct {
		long := utf8.RuneCountInString(term) >= w.PartialMinRunes
		for _, word := range words {
			switch {
			case word == term:
				raw += w.ExactMatch
			case long && strings.Contains(word, term):
				raw += w.PartialMatch
			}
		}
	}

	for i := 0; i+1 < len(terms); i++ {
		if terms[i] == terms[i+1] {
			continue
		}
		raw += proximityBonus(text, terms[i], terms[i+1], w)
	}

	found := 0
	for _, term := range distinct {
		if strings.Contains(text, term) {
			found++
		}
	}
	raw += float64(found) / float64(len(distinct)) * w.CoverageBonus

	if raw <= 0 {
		return 0
	}
	wordCount := max(len(words), w.MinWordCount)
	return raw / math.Log(float64(wordCount)) * 100
}

func proximityBonus(text, a, b string, w LexicalWeights) float64 {
	pa, pb := positions(text, a), positions(text, b)
	if len(pa) == 0 || len(pb) == 0 {
		return 0
	}

	best := -1
	for _, x := range pa {
		for _, y := range pb {
			d := x - y
			if d < 0 {
				d = -d
			}
			if best < 0 || d < best {
				best = d
			}
		}
	}

	switch {
	case best <= w.NearChars:
		return w.NearBonus
	case best <= w.MidChars:
		return w.MidBonus
	case best <= w.FarChars:
		return w.FarBonus
	}
	return 0
}

// positions returns the rune offsets of every occurrence of term in text.
func positions(text, term string) []int {
	var out []int
	offset := 0
	for {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return out
		}
		at := offset + i
		out = append(out, utf8.RuneCountInString(text[:at]))
		offset = at + len(term)
	}
}

func unique(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
