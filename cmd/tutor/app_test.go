package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/store"
)

func TestNewEmbedder(t *testing.T) {
	tests := []struct {
		name     string
		config   config.EmbeddingConfig
		wantNil  bool
		wantName string
	}{
		{"disabled", config.EmbeddingConfig{Provider: "none"}, true, ""},
		{"local", config.EmbeddingConfig{Provider: "local"}, false, llm.LocalEmbedderName},
		{"openai without key falls back", config.EmbeddingConfig{Provider: "openai"}, false, llm.LocalEmbedderName},
		{"openai", config.EmbeddingConfig{Provider: "openai", APIKey: "sk-test", Model: "text-embedding-3-small"}, false, "openai:text-embedding-3-small"},
		{"ollama", config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"}, false, "ollama:nomic-embed-text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := newEmbedder(tt.config)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, e)
				return
			}
			require.NotNil(t, e)
			assert.Equal(t, tt.wantName, e.Name())
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, setupLogging(config.LogConfig{Level: "warn", Format: "json"}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	assert.Error(t, setupLogging(config.LogConfig{Level: "loud"}))
}

func writeConfig(t *testing.T, storeDir string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
llm:
  provider: ollama
embedding:
  provider: local
store:
  backend: file
  dir: "` + storeDir + `"
notify:
  seed: 1
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewApp(t *testing.T) {
	loaded, err := config.LoadConfig(writeConfig(t, t.TempDir()))
	require.NoError(t, err)
	require.Empty(t, loaded.Validate())

	ctx := context.Background()
	a, err := newApp(ctx, loaded)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &store.FileStore{}, a.store)

	ing, err := a.ingester(loaded, nil)
	require.NoError(t, err)

	_, err = ing.Ingest(ctx, models.Document{
		ID: "notas", ClassID: "c1",
		Pages: []models.Page{{Number: 1, Text: "La misión define el propósito de la empresa."}},
	})
	require.NoError(t, err)

	chunks, err := a.store.Find(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)

	report, err := a.campaign(loaded, true).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Candidates)
}

func TestCrawlerConfig(t *testing.T) {
	c := config.CrawlerConfig{MaxDepth: 2, RateLimit: 1.5, IgnorePatterns: []string{"/login"}}
	got := crawlerConfig(c)
	assert.Equal(t, 2, got.MaxDepth)
	assert.Equal(t, 1.5, got.RateLimit)
	assert.Equal(t, []string{"/login"}, got.IgnorePatterns)
	assert.Empty(t, got.BaseURL)
}
