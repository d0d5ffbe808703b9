// Package retrieval ranks class chunks against a student query.
//
// Ranking uses cosine similarity whenever the query can be embedded and
// falls back to a lexical heuristic otherwise. Neither path ever fails: a
// chunk that cannot be scored simply scores 0.
package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/llm"
)

const DefaultTopK = 5

type Ranker struct {
	embedder types.Embedder
	weights  LexicalWeights
}

func NewRanker(embedder types.Embedder, weights LexicalWeights) *Ranker {
	return &Ranker{embedder: embedder, weights: weights.withDefaults()}
}

// EmbedderName is the model tag of the vectors Rank attaches, or "" when
// ranking is lexical only.
func (r *Ranker) EmbedderName() string {
	if r.embedder == nil {
		return ""
	}
	return r.embedder.Name()
}

// Rank returns at most topK chunks ordered by descending score. Chunk
// embeddings computed along the way are cached on the chunks.
func (r *Ranker) Rank(ctx context.Context, query string, chunks []*models.Chunk, topK int) []models.RankedResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(chunks) == 0 {
		return nil
	}

	if r.embedder != nil {
		queryVec, err := r.embedder.Embed(ctx, query)
		if err == nil {
			return r.rankByCosine(ctx, queryVec, chunks, topK)
		}

		var svcErr *llm.EmbeddingServiceError
		if errors.As(err, &svcErr) {
			log.Warn().Err(err).Msg("query embedding failed, using lexical ranking")
		} else if !errors.Is(err, llm.ErrNoEmbedding) {
			log.Warn().Err(err).Msg("unexpected embedding error, using lexical ranking")
		}
	}

	return RankLexical(query, chunks, topK, r.weights)
}

func (r *Ranker) rankByCosine(ctx context.Context, queryVec []float32, chunks []*models.Chunk, topK int) []models.RankedResult {
	model := r.embedder.Name()
	results := make([]models.RankedResult, 0, len(chunks))

	for _, chunk := range chunks {
		score := 0.0
		if !chunk.HasEmbeddingFrom(model) {
			vec, err := r.embedder.Embed(ctx, chunk.Content)
			if err == nil {
				chunk.AttachEmbedding(model, vec)
			} else if !errors.Is(err, llm.ErrNoEmbedding) {
				log.Debug().Err(err).Str("chunk", chunk.ID).Msg("chunk embedding unavailable")
			}
		}
		if chunk.HasEmbeddingFrom(model) {
			score = CosineSimilarity(queryVec, chunk.Embedding)
		}
		results = append(results, models.RankedResult{Chunk: chunk, Score: score})
	}

	return top(results, topK)
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when the vectors have
// different lengths or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func top(results []models.RankedResult, topK int) []models.RankedResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
