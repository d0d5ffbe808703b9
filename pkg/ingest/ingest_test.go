package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/extract"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/processor"
	"github.com/xhad/tutor/pkg/store"
)

func newProcessor(t *testing.T) processor.Processor {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 100})
	require.NoError(t, err)
	return p
}

func TestIngest(t *testing.T) {
	mem := store.NewMemory()
	var progress []int
	ing := NewWithConfig(IngesterConfig{EmbedRate: 1000, OnChunk: func(stored, total int) {
		progress = append(progress, stored)
		assert.Equal(t, 3, total)
	}}, newProcessor(t), llm.NewLocalEmbedder(), mem)

	doc := models.Document{
		ID:      "admin.pdf",
		ClassID: "c1",
		Pages: []models.Page{
			{Number: 1, Text: strings.Repeat("La misión de la empresa. ", 32)},
			{Number: 2, Text: "   "},
			{Number: 3, Text: "La visión describe el futuro deseado."},
		},
	}

	report, err := ing.Ingest(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, Report{DocumentID: "admin.pdf", Chunks: 3, Embedded: 3}, report)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.True(t, mem.Processed("c1", "admin.pdf"))

	chunks, err := mem.Find(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "admin.pdf_2", chunks[2].ID)
	assert.Equal(t, 3, *chunks[2].PageHint)
	for _, c := range chunks {
		assert.True(t, c.HasEmbeddingFrom(llm.LocalEmbedderName))
		assert.Len(t, c.Embedding, llm.LocalDimension)
	}
}

func TestIngest_WithoutEmbedder(t *testing.T) {
	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, mem)

	report, err := ing.Ingest(context.Background(), models.Document{
		ID: "notas", ClassID: "c1", Pages: []models.Page{{Number: 1, Text: "Notas de clase."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Chunks)
	assert.Zero(t, report.Embedded)

	chunks, _ := mem.Find(context.Background(), "c1")
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].Embedding)
}

func TestIngest_NoExtractableText(t *testing.T) {
	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, mem)

	_, err := ing.Ingest(context.Background(), models.Document{
		ID: "scan.pdf", ClassID: "c1", Pages: []models.Page{{Number: 1, Text: " \n\t "}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, processor.ErrNoExtractableText))

	var nt *processor.NoExtractableTextError
	require.True(t, errors.As(err, &nt))
	assert.Equal(t, "scan.pdf", nt.SourceID)
	assert.False(t, mem.Processed("c1", "scan.pdf"))
}

type failingStore struct{ *store.MemoryStore }

func (f failingStore) Append(context.Context, string, *models.Chunk) error {
	return errors.New("disk full")
}

func TestIngest_StoreFailure(t *testing.T) {
	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, failingStore{mem})

	_, err := ing.Ingest(context.Background(), models.Document{
		ID: "a", ClassID: "c1", Pages: []models.Page{{Number: 1, Text: "texto"}},
	})
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, mem.Processed("c1", "a"))
}

func TestIngest_ReplacesPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFile(dir)
	require.NoError(t, err)

	backends := map[string]types.DocumentStore{
		"memory": store.NewMemory(),
		"file":   fs,
	}
	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, s)
			require.NoError(t, s.Append(ctx, "c1", &models.Chunk{ID: "otro.pdf_0", SourceID: "otro.pdf", Content: "Otro documento."}))

			long := models.Document{ID: "guia.pdf", ClassID: "c1", Pages: []models.Page{
				{Number: 1, Text: strings.Repeat("Primera versión de la guía. ", 40)},
				{Number: 2, Text: "Capítulo eliminado después."},
			}}
			report, err := ing.Ingest(ctx, long)
			require.NoError(t, err)
			require.Greater(t, report.Chunks, 1)

			short := models.Document{ID: "guia.pdf", ClassID: "c1", Pages: []models.Page{
				{Number: 1, Text: "Segunda versión, más corta."},
			}}
			report, err = ing.Ingest(ctx, short)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Chunks)

			chunks, err := s.Find(ctx, "c1")
			require.NoError(t, err)
			var guia []string
			for _, c := range chunks {
				if c.SourceID == "guia.pdf" {
					guia = append(guia, c.Content)
				}
			}
			assert.Equal(t, []string{"Segunda versión, más corta."}, guia)
			assert.Len(t, chunks, 2, "other documents stay")
		})
	}
}

type failingDelete struct{ *store.MemoryStore }

func (f failingDelete) DeleteDocument(context.Context, string, string) error {
	return errors.New("read-only")
}

func TestIngest_DeleteFailure(t *testing.T) {
	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, failingDelete{mem})

	_, err := ing.Ingest(context.Background(), models.Document{
		ID: "a", ClassID: "c1", Pages: []models.Page{{Number: 1, Text: "texto"}},
	})
	assert.ErrorContains(t, err, "read-only")
	chunks, _ := mem.Find(context.Background(), "c1")
	assert.Empty(t, chunks)
	assert.False(t, mem.Processed("c1", "a"))
}

func TestIngestFile_PDF(t *testing.T) {
	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, mem)

	report, err := ing.IngestFile(context.Background(), "c1", filepath.Join("..", "extract", "testdata", "course.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "course.pdf", report.DocumentID)
	assert.Equal(t, 2, report.Chunks)

	chunks, _ := mem.Find(context.Background(), "c1")
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, *chunks[1].PageHint)
}

func TestIngestSite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><main>La misión de la empresa. <a href="/vacia.html">vacía</a></main></body></html>`))
	})
	mux.HandleFunc("/vacia.html", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	crawler, err := extract.NewCrawler(extract.CrawlerConfig{BaseURL: server.URL + "/", MaxDepth: 1, RateLimit: 100})
	require.NoError(t, err)

	mem := store.NewMemory()
	ing := NewWithConfig(IngesterConfig{}, newProcessor(t), nil, mem)

	reports, err := ing.IngestSite(context.Background(), "c1", crawler)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	chunks, _ := mem.Find(context.Background(), "c1")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "La misión de la empresa.")
}
