// Package ingest turns course documents into stored, optionally embedded,
// chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/extract"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/processor"
)

type IngesterConfig struct {
	// EmbedRate caps embedding calls per second during batch embedding.
	EmbedRate float64
	// OnChunk is called after every stored chunk.
	OnChunk func(stored, total int)
}

type Report struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Embedded   int    `json:"embedded"`
}

type Ingester struct {
	config    IngesterConfig
	processor processor.Processor
	embedder  types.Embedder
	store     types.DocumentStore
	limiter   *rate.Limiter
}

// NewWithConfig builds an ingester. embedder may be nil, in which case chunks
// are stored without vectors and ranking embeds them lazily.
func NewWithConfig(config IngesterConfig, proc processor.Processor, embedder types.Embedder, store types.DocumentStore) *Ingester {
	if config.EmbedRate <= 0 {
		config.EmbedRate = 5
	}
	return &Ingester{
		config:    config,
		processor: proc,
		embedder:  embedder,
		store:     store,
		limiter:   rate.NewLimiter(rate.Limit(config.EmbedRate), 1),
	}
}

// Ingest chunks doc, embeds what it can and stores every chunk in place of
// any earlier version of the same document. The document is marked processed
// only when all chunks were stored.
func (i *Ingester) Ingest(ctx context.Context, doc models.Document) (Report, error) {
	report := Report{DocumentID: doc.ID}
	logger := log.With().Str("class", doc.ClassID).Str("document", doc.ID).Logger()

	chunks, err := i.processor.Process(doc)
	if err != nil {
		return report, err
	}
	report.Chunks = len(chunks)

	if i.embedder != nil {
		embedded, err := llm.EmbedChunks(ctx, i.embedder, chunks, i.limiter)
		if err != nil {
			return report, fmt.Errorf("embedding interrupted: %w", err)
		}
		report.Embedded = embedded
		if embedded < len(chunks) {
			logger.Warn().Int("skipped", len(chunks)-embedded).Msg("some chunks were stored without embedding")
		}
	}

	// a re-upload replaces the previous version, including chunks past the
	// end of a now shorter document
	if err := i.store.DeleteDocument(ctx, doc.ClassID, doc.ID); err != nil {
		return report, fmt.Errorf("failed to replace previous version: %w", err)
	}

	for n, chunk := range chunks {
		if err := i.store.Append(ctx, doc.ClassID, chunk); err != nil {
			return report, fmt.Errorf("failed to store chunk %s: %w", chunk.ID, err)
		}
		if i.config.OnChunk != nil {
			i.config.OnChunk(n+1, len(chunks))
		}
	}

	if err := i.store.MarkProcessed(ctx, doc.ClassID, doc.ID); err != nil {
		return report, err
	}

	logger.Info().Int("chunks", report.Chunks).Int("embedded", report.Embedded).Msg("document ingested")
	return report, nil
}

// IngestFile extracts a local PDF, HTML or text file and ingests it.
func (i *Ingester) IngestFile(ctx context.Context, classID, path string) (Report, error) {
	doc, err := extract.File(path, classID)
	if err != nil {
		return Report{}, err
	}
	return i.Ingest(ctx, doc)
}

// IngestSite crawls course pages and ingests each one. Pages without text are
// skipped; any other failure stops the run.
func (i *Ingester) IngestSite(ctx context.Context, classID string, crawler *extract.Crawler) ([]Report, error) {
	docs, err := crawler.Crawl(ctx, classID)
	if err != nil {
		return nil, err
	}

	var reports []Report
	for _, doc := range docs {
		report, err := i.Ingest(ctx, doc)
		if err != nil {
			if errors.Is(err, processor.ErrNoExtractableText) {
				log.Warn().Err(err).Msg("skipping page without text")
				continue
			}
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
