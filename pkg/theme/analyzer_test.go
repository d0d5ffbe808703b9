package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
)

func corpus(contents ...string) []*models.Chunk {
	chunks := make([]*models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = &models.Chunk{Content: c}
	}
	return chunks
}

func TestAnalyze_SingleTheme(t *testing.T) {
	a := NewAnalyzer(Weights{})
	analysis := a.Analyze(corpus(
		"La química estudia la materia y sus cambios.",
		"Una reacción química se observa en el laboratorio.",
	))

	assert.Equal(t, []string{"Química"}, analysis.RankedThemes)
	assert.Equal(t, 0.8, analysis.Confidence)
	assert.Equal(t, []string{"química", "reacción química", "laboratorio"}, analysis.MatchedKeywords)
	// "química" appears twice (3 each), the phrase once (2), laboratorio once (1)
	assert.Equal(t, 9, analysis.Scores["Química"])
	assert.False(t, a.Generalist(analysis))
}

func TestAnalyze_NoMatch(t *testing.T) {
	a := NewAnalyzer(Weights{})

	for _, chunks := range [][]*models.Chunk{
		nil,
		corpus(""),
		corpus("El ciclo del agua incluye evaporación y condensación."),
	} {
		analysis := a.Analyze(chunks)
		assert.Empty(t, analysis.RankedThemes)
		assert.Empty(t, analysis.MatchedKeywords)
		assert.Equal(t, 0.5, analysis.Confidence)
		assert.True(t, a.Generalist(analysis))
	}
}

func TestAnalyze_Ranking(t *testing.T) {
	a := NewAnalyzer(Weights{})

	tests := []struct {
		name       string
		text       string
		themes     []string
		confidence float64
		generalist bool
	}{
		{
			name:       "clear winner",
			text:       "Álgebra: una ecuación de segundo grado. Ecuación lineal. La derivada de una función y la historia del cálculo.",
			themes:     []string{"Matemáticas", "Historia"},
			confidence: 0.3 + 13.0/16.0*0.6,
		},
		{
			name:       "close scores",
			text:       "Las plantas realizan fotosíntesis. La célula vegetal. Una reacción química en la célula.",
			themes:     []string{"Biología", "Química"},
			confidence: 0.3 + 3.0/8.0*0.6,
			generalist: true,
		},
		{
			name:       "ties keep taxonomy order",
			text:       "La química y la célula.",
			themes:     []string{"Química", "Biología"},
			confidence: 0.3,
			generalist: true,
		},
		{
			name:       "case insensitive",
			text:       "QUÍMICA",
			themes:     []string{"Química"},
			confidence: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := a.Analyze(corpus(tt.text))
			assert.Equal(t, tt.themes, analysis.RankedThemes)
			assert.InDelta(t, tt.confidence, analysis.Confidence, 1e-9)
			assert.Equal(t, tt.generalist, a.Generalist(analysis))
		})
	}
}

func TestAnalyze_ConfidenceBounds(t *testing.T) {
	a := NewAnalyzer(Weights{})
	texts := []string{
		"química química química célula",
		"empresa misión estrategia mercado economía",
		"novela poesía metáfora historia siglo guerra",
		"software algoritmo compilador bucle",
		"fuerza velocidad energía newton física mecánica",
		"texto sin ningún tema reconocible",
	}
	for _, text := range texts {
		c := a.Analyze(corpus(text)).Confidence
		assert.GreaterOrEqual(t, c, 0.0, text)
		assert.LessOrEqual(t, c, 0.95, text)
	}
}

func TestAnalyze_CustomTaxonomy(t *testing.T) {
	themes := []Theme{
		{Profile: models.ThemeProfile{Name: "Astronomía", High: []string{"galaxia"}, Low: []string{"estrella"}}},
		{Profile: models.ThemeProfile{Name: "Geología", Medium: []string{"roca"}}},
	}
	w := DefaultWeights()
	w.High, w.MaxConfidence = 10, 0.9
	a := NewAnalyzerWithTaxonomy(themes, w)

	analysis := a.Analyze(corpus("Una galaxia tiene millones de estrellas; la roca lunar."))
	require.Len(t, analysis.RankedThemes, 2)
	assert.Equal(t, "Astronomía", analysis.TopTheme())
	assert.Equal(t, 11, analysis.Scores["Astronomía"])
	assert.Equal(t, 2, analysis.Scores["Geología"])
	assert.InDelta(t, 0.3+9.0/11.0*0.6, analysis.Confidence, 1e-9)
	assert.Equal(t, []string{"galaxia", "estrella", "roca"}, analysis.MatchedKeywords)
}

func TestDefaultWeights(t *testing.T) {
	assert.Equal(t, DefaultWeights(), Weights{}.withDefaults())

	w := DefaultWeights()
	w.Low = 0
	assert.Equal(t, 0, w.withDefaults().Low)
	assert.Equal(t, 3, w.withDefaults().High)
}

func TestAnalyze_ZeroWeightIsKept(t *testing.T) {
	themes := []Theme{
		{Profile: models.ThemeProfile{Name: "Astronomía", High: []string{"galaxia"}, Low: []string{"estrella"}}},
	}
	w := DefaultWeights()
	w.Low = 0
	analysis := NewAnalyzerWithTaxonomy(themes, w).Analyze(corpus("Una estrella brillante."))
	assert.Zero(t, analysis.Scores["Astronomía"])
}
