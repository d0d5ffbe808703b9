// Package tutor answers student questions from the material of their class.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/theme"
)

const (
	DefaultPreviewRunes = 200

	NoDocumentsAnswer = "Todavía no hay documentos cargados para esta clase. " +
		"Cuando tu profesor suba el material del curso podré responder tus preguntas."
	DailyLimitAnswer = "Hemos alcanzado el límite diario de consultas al asistente. " +
		"Por favor, vuelve a intentarlo mañana."
	UnavailableAnswer = "El asistente no está disponible en este momento. " +
		"Mientras tanto, revisa los fragmentos del material relacionados con tu pregunta."
)

const behaviorRules = `Reglas:
- Responde únicamente con base en el material de la clase que se incluye en el mensaje.
- Si la pregunta no tiene relación con la clase, indícalo con amabilidad y redirige al estudiante hacia los temas del curso.
- Si el material no contiene la respuesta, dilo claramente en lugar de inventarla.
- Para preguntas de definición ("¿qué es...?") responde en dos o tres oraciones.
- Responde en español.`

// Completer is the completion provider. *llm.ChatEngine satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Request struct {
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Query     string `json:"query"`
}

type Response struct {
	Answer  string          `json:"answer"`
	Sources []models.Source `json:"sources"`
	Outcome models.Outcome  `json:"outcome"`
}

type TutorConfig struct {
	TopK         int
	PreviewRunes int
}

type Tutor struct {
	store     types.DocumentStore
	ranker    *retrieval.Ranker
	themes    *theme.Analyzer
	completer Completer
	config    TutorConfig
}

func NewWithConfig(config TutorConfig, store types.DocumentStore, ranker *retrieval.Ranker, themes *theme.Analyzer, completer Completer) *Tutor {
	if config.TopK <= 0 {
		config.TopK = retrieval.DefaultTopK
	}
	if config.PreviewRunes <= 0 {
		config.PreviewRunes = DefaultPreviewRunes
	}
	return &Tutor{
		store:     store,
		ranker:    ranker,
		themes:    themes,
		completer: completer,
		config:    config,
	}
}

// Answer never returns an error: every failure is mapped to a fixed answer
// and an outcome tag.
func (t *Tutor) Answer(ctx context.Context, req Request) Response {
	logger := log.With().Str("class", req.ClassID).Logger()

	chunks, err := t.store.Find(ctx, req.ClassID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load class documents")
		return Response{Answer: UnavailableAnswer, Sources: []models.Source{}, Outcome: models.OutcomeUnavailable}
	}
	if len(chunks) == 0 {
		return Response{Answer: NoDocumentsAnswer, Sources: []models.Source{}, Outcome: models.OutcomeNoDocuments}
	}

	model := t.ranker.EmbedderName()
	var unembedded []*models.Chunk
	if model != "" {
		for _, c := range chunks {
			if !c.HasEmbeddingFrom(model) {
				unembedded = append(unembedded, c)
			}
		}
	}

	relevant := t.ranker.Rank(ctx, req.Query, chunks, t.config.TopK)
	t.saveEmbeddings(ctx, req.ClassID, model, unembedded)
	analysis := t.themes.Analyze(chunks)
	sources := t.previews(relevant)

	logger.Debug().
		Int("chunks", len(chunks)).
		Int("relevant", len(relevant)).
		Str("theme", analysis.TopTheme()).
		Float64("confidence", analysis.Confidence).
		Msg("prepared prompt")

	system := t.themes.Synthesize(analysis, req.ClassName) + "\n" + behaviorRules
	answer, err := t.completer.Complete(ctx, system, BuildUserPrompt(req.Query, relevant))
	if err != nil {
		var rl *llm.RateLimitError
		if errors.As(err, &rl) {
			logger.Warn().Err(err).Msg("completion provider rate limited")
			return Response{Answer: DailyLimitAnswer, Sources: []models.Source{}, Outcome: models.OutcomeRateLimited}
		}
		logger.Error().Err(err).Msg("completion failed")
		return Response{Answer: UnavailableAnswer, Sources: sources, Outcome: models.OutcomeUnavailable}
	}

	return Response{Answer: answer, Sources: sources, Outcome: models.OutcomeAnswered}
}

// saveEmbeddings persists the vectors Rank computed so the next question does
// not embed the same chunks again. Failures only cost a re-embed later.
func (t *Tutor) saveEmbeddings(ctx context.Context, classID, model string, candidates []*models.Chunk) {
	var embedded []*models.Chunk
	for _, c := range candidates {
		if c.HasEmbeddingFrom(model) {
			embedded = append(embedded, c)
		}
	}
	if len(embedded) == 0 {
		return
	}
	if err := t.store.SaveEmbeddings(ctx, classID, embedded); err != nil {
		log.Warn().Err(err).Str("class", classID).Int("chunks", len(embedded)).Msg("failed to save chunk embeddings")
		return
	}
	log.Debug().Str("class", classID).Int("chunks", len(embedded)).Msg("saved chunk embeddings")
}

// BuildUserPrompt lays out the retrieved context blocks followed by the question.
func BuildUserPrompt(query string, relevant []models.RankedResult) string {
	var sb strings.Builder
	sb.WriteString("Material de la clase:\n")
	if len(relevant) == 0 {
		sb.WriteString("(no se encontraron fragmentos relacionados)\n")
	}
	for i, r := range relevant {
		fmt.Fprintf(&sb, "\n[%d] Fuente: %s", i+1, r.Chunk.SourceID)
		if r.Chunk.PageHint != nil {
			fmt.Fprintf(&sb, ", página %d", *r.Chunk.PageHint)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(r.Chunk.Content))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nPregunta del estudiante: %s", strings.TrimSpace(query))
	return sb.String()
}

func (t *Tutor) previews(relevant []models.RankedResult) []models.Source {
	sources := make([]models.Source, 0, len(relevant))
	for _, r := range relevant {
		metadata := map[string]interface{}{
			"source": r.Chunk.SourceID,
			"score":  r.Score,
		}
		if r.Chunk.PageHint != nil {
			metadata["page"] = *r.Chunk.PageHint
		}
		sources = append(sources, models.Source{
			Content:  Truncate(r.Chunk.Content, t.config.PreviewRunes),
			Metadata: metadata,
		})
	}
	return sources
}

// Truncate cuts s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// NewInteraction builds the history record the caller persists for every answer.
func NewInteraction(req Request, resp Response) models.Interaction {
	return models.Interaction{
		ID:        uuid.NewString(),
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		Query:     req.Query,
		Answer:    resp.Answer,
		Outcome:   resp.Outcome,
		Sources:   resp.Sources,
		CreatedAt: time.Now().UTC(),
	}
}
