package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

// EmbedderConfig represents the configuration for the remote embedder.
type EmbedderConfig struct {
	Provider string // "openai" or "ollama"
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RemoteEmbedder calls an external embedding service.
type RemoteEmbedder struct {
	config EmbedderConfig
	client queryEmbedder
}

func NewEmbedderWithConfig(config EmbedderConfig) (*RemoteEmbedder, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := NewHTTPClient(config.Timeout)

	var client embeddings.EmbedderClient
	switch config.Provider {
	case "openai":
		if config.Model == "" {
			config.Model = "text-embedding-3-small"
		}
		opts := []openai.Option{
			openai.WithEmbeddingModel(config.Model),
			openai.WithToken(config.APIKey),
			openai.WithHTTPClient(httpClient),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		client = llm
	case "ollama":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &RemoteEmbedder{config: config, client: emb}, nil
}

func newRemoteEmbedder(config EmbedderConfig, client queryEmbedder) *RemoteEmbedder {
	return &RemoteEmbedder{config: config, client: client}
}

// Name identifies the vector space; vectors from different names are never compared.
func (e *RemoteEmbedder) Name() string {
	return e.config.Provider + ":" + e.config.Model
}

func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoEmbedding
	}

	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &EmbeddingServiceError{Provider: e.config.Provider, Err: err}
	}
	if len(vec) == 0 {
		return nil, &EmbeddingServiceError{Provider: e.config.Provider, Err: errEmptyVector}
	}
	return vec, nil
}

// EmbedChunks attaches embeddings to chunks that lack one from e, waiting on
// limiter between provider calls. A chunk that fails is logged and skipped.
// It returns the number of chunks embedded.
func EmbedChunks(ctx context.Context, e types.Embedder, chunks []*models.Chunk, limiter *rate.Limiter) (int, error) {
	embedded := 0
	for _, chunk := range chunks {
		if chunk.HasEmbeddingFrom(e.Name()) {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return embedded, err
			}
		}

		vec, err := e.Embed(ctx, chunk.Content)
		if err != nil {
			if ctx.Err() != nil {
				return embedded, ctx.Err()
			}
			log.Warn().Err(err).Str("chunk", chunk.ID).Msg("skipping chunk embedding")
			continue
		}
		chunk.AttachEmbedding(e.Name(), vec)
		embedded++
	}
	return embedded, nil
}
