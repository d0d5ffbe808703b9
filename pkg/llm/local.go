package llm

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	LocalEmbedderName = "local-v1"
	LocalDimension    = 25

	exactKeywordWeight   = 3.0
	partialKeywordWeight = 1.5
	topTokenSlots        = 15
	longTokenRunes       = 6
)

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// localCategories are the five semantic word lists scored in dimensions 0-4.
var localCategories = [5][]string{
	{"concepto", "definición", "teoría", "principio", "significa", "característica", "elemento", "tipo", "clasificación", "propiedad"},
	{"proceso", "método", "paso", "procedimiento", "técnica", "etapa", "fase", "aplicar", "calcular", "resolver"},
	{"ejemplo", "caso", "práctica", "ejercicio", "problema", "situación", "aplicación", "ilustra", "muestra", "demostración"},
	{"análisis", "evaluar", "comparar", "causa", "efecto", "relación", "consecuencia", "ventaja", "desventaja", "importancia"},
	{"historia", "origen", "contexto", "desarrollo", "evolución", "época", "autor", "sociedad", "cultura", "mundo"},
}

// LocalEmbedder builds a small bag-of-words vector without any network call.
// Its vectors are approximate and live in their own space: they must never be
// compared with vectors from a remote model.
type LocalEmbedder struct{}

func NewLocalEmbedder() *LocalEmbedder { return &LocalEmbedder{} }

func (e *LocalEmbedder) Name() string { return LocalEmbedderName }

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrNoEmbedding
	}

	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}

	vec := make([]float64, LocalDimension)

	for i, keywords := range localCategories {
		vec[i] = categoryScore(freq, keywords)
	}

	maxFreq, longTokens := 0, 0
	for tok, n := range freq {
		if n > maxFreq {
			maxFreq = n
		}
		if utf8.RuneCountInString(tok) > longTokenRunes {
			longTokens++
		}
	}
	vec[5] = float64(len(tokens))
	vec[6] = float64(len(freq))
	vec[7] = float64(longTokens)
	vec[8] = float64(maxFreq)
	vec[9] = float64(len(tokens)) / float64(len(freq))

	for i, n := range topFrequencies(freq, topTokenSlots) {
		vec[10+i] = float64(n)
	}

	return normalize(vec), nil
}

// NormalizeText lowercases text and replaces punctuation with spaces.
func NormalizeText(text string) string {
	return punctuation.ReplaceAllString(strings.ToLower(text), " ")
}

// Tokenize lowercases text, strips punctuation and keeps tokens longer than two runes.
func Tokenize(text string) []string {
	fields := strings.Fields(NormalizeText(text))
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func categoryScore(freq map[string]int, keywords []string) float64 {
	var score float64
	for tok, n := range freq {
		weight := 0.0
		for _, kw := range keywords {
			if tok == kw {
				weight = exactKeywordWeight
				break
			}
			if strings.Contains(tok, kw) || strings.Contains(kw, tok) {
				weight = partialKeywordWeight
			}
		}
		score += float64(n) * weight
	}
	return score
}

// topFrequencies returns the counts of the n most frequent tokens, ties
// broken alphabetically so the vector is deterministic.
func topFrequencies(freq map[string]int, n int) []int {
	toks := make([]string, 0, len(freq))
	for tok := range freq {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool {
		if freq[toks[i]] != freq[toks[j]] {
			return freq[toks[i]] > freq[toks[j]]
		}
		return toks[i] < toks[j]
	})

	out := make([]int, 0, n)
	for _, tok := range toks {
		if len(out) == n {
			break
		}
		out = append(out, freq[tok])
	}
	return out
}

func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	mag := math.Sqrt(sum)

	out := make([]float32, len(vec))
	for i, v := range vec {
		if mag == 0 {
			out[i] = float32(v)
		} else {
			out[i] = float32(v / mag)
		}
	}
	return out
}
