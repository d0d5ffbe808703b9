package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/types"
	"github.com/xhad/tutor/pkg/config"
	"github.com/xhad/tutor/pkg/extract"
	"github.com/xhad/tutor/pkg/ingest"
	"github.com/xhad/tutor/pkg/llm"
	"github.com/xhad/tutor/pkg/notify"
	"github.com/xhad/tutor/pkg/processor"
	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/store"
	"github.com/xhad/tutor/pkg/theme"
	"github.com/xhad/tutor/pkg/tutor"
)

// app holds the components every command is built from.
type app struct {
	store    types.Store
	embedder types.Embedder
	tutor    *tutor.Tutor
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	st, err := store.Open(ctx, store.StoreConfig{
		Backend:     c.Store.Backend,
		DatabaseURL: c.Database.URL,
		TablePrefix: c.Database.TablePrefix,
		Dir:         c.Store.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := newEmbedder(c.Embedding)
	if err != nil {
		st.Close()
		return nil, err
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		Timeout:     c.LLM.Timeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	t := tutor.NewWithConfig(
		tutor.TutorConfig{TopK: c.Retrieval.TopK, PreviewRunes: c.Retrieval.PreviewRunes},
		st,
		retrieval.NewRanker(embedder, c.Retrieval.Lexical),
		theme.NewAnalyzer(c.Theme),
		chat,
	)

	return &app{store: st, embedder: embedder, tutor: t}, nil
}

func (a *app) Close() { a.store.Close() }

// newEmbedder picks the embedding backend. The local embedder only stands in
// when no remote endpoint is configured; "none" disables embeddings so ranking
// stays lexical.
func newEmbedder(c config.EmbeddingConfig) (types.Embedder, error) {
	switch c.Provider {
	case "none":
		return nil, nil
	case "local":
		return llm.NewLocalEmbedder(), nil
	case "openai":
		if c.APIKey == "" {
			log.Warn().Msg("no embedding endpoint configured, using local embeddings")
			return llm.NewLocalEmbedder(), nil
		}
	}

	remote, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return remote, nil
}

func (a *app) ingester(c *config.Config, onChunk func(stored, total int)) (*ingest.Ingester, error) {
	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    c.Processor.ChunkSize,
		ChunkOverlap: c.Processor.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	return ingest.NewWithConfig(ingest.IngesterConfig{EmbedRate: c.Embedding.Rate, OnChunk: onChunk}, proc, a.embedder, a.store), nil
}

func crawlerConfig(c config.CrawlerConfig) extract.CrawlerConfig {
	return extract.CrawlerConfig{
		MaxDepth:          c.MaxDepth,
		RateLimit:         c.RateLimit,
		IgnorePatterns:    c.IgnorePatterns,
		AllowedExtensions: c.AllowedExtensions,
	}
}

func (a *app) campaign(c *config.Config, dryRun bool) *notify.Campaign {
	var transport notify.Transport = notify.LogTransport{}
	if !dryRun {
		transport = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     c.Notify.SMTP.Host,
			Port:     c.Notify.SMTP.Port,
			Username: c.Notify.SMTP.Username,
			Password: c.Notify.SMTP.Password,
			Timeout:  c.Notify.SMTP.Timeout,
		})
	}

	seed := c.Notify.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	dispatcher := notify.NewWithConfig(notify.DispatcherConfig{
		From:        c.Notify.From,
		MaxAttempts: c.Notify.MaxAttempts,
		BaseBackoff: c.Notify.BaseBackoff,
	}, transport)

	return notify.NewCampaign(notify.CampaignConfig{
		Kind:          notify.KindInactivity,
		InactiveAfter: time.Duration(c.Notify.InactiveDays) * 24 * time.Hour,
		Cooldown:      time.Duration(c.Notify.CooldownDays) * 24 * time.Hour,
		AppURL:        c.Notify.AppURL,
	}, a.store, a.store, notify.NewRenderer(notify.NewRandomSelector(seed)), dispatcher)
}
