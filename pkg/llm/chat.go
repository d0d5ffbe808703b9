package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider    string // "openai" or "ollama"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ChatEngine sends a single system+user exchange to a completion provider.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	httpClient := NewHTTPClient(config.Timeout)

	var model llms.Model
	switch config.Provider {
	case "openai":
		if config.Model == "" {
			config.Model = "gpt-4o-mini"
		}
		opts := []openai.Option{
			openai.WithModel(config.Model),
			openai.WithToken(config.APIKey),
			openai.WithHTTPClient(httpClient),
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral"
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
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown completion provider %q", config.Provider)
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// NewWithModel wraps an already constructed model.
func NewWithModel(config ChatConfig, model llms.Model) *ChatEngine {
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	return &ChatEngine{config: config, llm: model}
}

// Complete returns the model's reply. Failures come back as *RateLimitError
// or *ProviderError, never as raw client errors.
func (ce *ChatEngine) Complete(ctx context.Context, system, user string) (string, error) {
	if ce.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ce.config.Timeout)
		defer cancel()
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		if rl, ok := asRateLimit(err); ok {
			return "", rl
		}
		return "", &ProviderError{Err: err}
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", &ProviderError{Err: errors.New("no choices in response")}
	}

	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", &ProviderError{Err: errors.New("empty completion")}
	}
	return text, nil
}
