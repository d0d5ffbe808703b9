// Package theme detects the dominant subject of a class corpus and turns it
// into a persona fragment for the completion prompt.
package theme

import (
	"sort"
	"strings"

	"github.com/xhad/tutor/internal/models"
)

// Weights holds the scoring and confidence constants. The zero value means
// DefaultWeights.
type Weights struct {
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
	Low    int `yaml:"low"`

	SingleMatchConfidence float64 `yaml:"single_match_confidence"`
	NoMatchConfidence     float64 `yaml:"no_match_confidence"`
	BaseConfidence        float64 `yaml:"base_confidence"`
	MarginFactor          float64 `yaml:"margin_factor"`
	MaxConfidence         float64 `yaml:"max_confidence"`
	GeneralistBelow       float64 `yaml:"generalist_below"`
}

func DefaultWeights() Weights {
	return Weights{
		High:                  3,
		Medium:                2,
		Low:                   1,
		SingleMatchConfidence: 0.8,
		NoMatchConfidence:     0.5,
		BaseConfidence:        0.3,
		MarginFactor:          0.6,
		MaxConfidence:         0.95,
		GeneralistBelow:       0.6,
	}
}

// withDefaults replaces only the zero value, so explicit zeros survive.
func (w Weights) withDefaults() Weights {
	if w == (Weights{}) {
		return DefaultWeights()
	}
	return w
}

type Analyzer struct {
	themes  []Theme
	weights Weights
}

func NewAnalyzer(weights Weights) *Analyzer {
	return NewAnalyzerWithTaxonomy(Taxonomy, weights)
}

func NewAnalyzerWithTaxonomy(themes []Theme, weights Weights) *Analyzer {
	return &Analyzer{themes: themes, weights: weights.withDefaults()}
}

type themeScore struct {
	name  string
	score int
}

// Analyze scores every theme against the whole corpus. The result is never
// cached: callers recompute it whenever the chunk set changes.
func (a *Analyzer) Analyze(chunks []*models.Chunk) models.ThemeAnalysis {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
		sb.WriteByte('\n')
	}
	text := strings.ToLower(sb.String())

	scores := make([]themeScore, 0, len(a.themes))
	seen := make(map[string]struct{})
	var keywords []string

	for _, t := range a.themes {
		score := 0
		for _, group := range []struct {
			terms  []string
			weight int
		}{
			{t.Profile.High, a.weights.High},
			{t.Profile.Medium, a.weights.Medium},
			{t.Profile.Low, a.weights.Low},
		} {
			for _, term := range group.terms {
				n := strings.Count(text, term)
				if n == 0 {
					continue
				}
				score += group.weight * n
				if _, ok := seen[term]; !ok {
					seen[term] = struct{}{}
					keywords = append(keywords, term)
				}
			}
		}
		if score > 0 {
			scores = append(scores, themeScore{name: t.Profile.Name, score: score})
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	analysis := models.ThemeAnalysis{
		RankedThemes:    make([]string, 0, len(scores)),
		Scores:          make(map[string]int, len(scores)),
		MatchedKeywords: keywords,
		Confidence:      a.confidence(scores),
	}
	for _, s := range scores {
		analysis.RankedThemes = append(analysis.RankedThemes, s.name)
		analysis.Scores[s.name] = s.score
	}
	return analysis
}

func (a *Analyzer) confidence(scores []themeScore) float64 {
	w := a.weights
	switch len(scores) {
	case 0:
		return w.NoMatchConfidence
	case 1:
		return w.SingleMatchConfidence
	}
	s1, s2 := float64(scores[0].score), float64(scores[1].score)
	c := w.BaseConfidence + (s1-s2)/s1*w.MarginFactor
	if c > w.MaxConfidence {
		c = w.MaxConfidence
	}
	if c < 0 {
		c = 0
	}
	return c
}

// Generalist reports whether the analysis is too weak to pick a specialist
// persona.
func (a *Analyzer) Generalist(analysis models.ThemeAnalysis) bool {
	return len(analysis.RankedThemes) == 0 || analysis.Confidence < a.weights.GeneralistBelow
}

// Persona returns the persona of the top theme, or the generalist persona.
func (a *Analyzer) Persona(analysis models.ThemeAnalysis) models.PersonaProfile {
	if a.Generalist(analysis) {
		return GeneralistPersona
	}
	for _, t := range a.themes {
		if t.Profile.Name == analysis.TopTheme() {
			return t.Persona
		}
	}
	return GeneralistPersona
}
