package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xhad/tutor/pkg/store"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, message string) {
		errors = append(errors, ValidationError{Field: field, Message: message})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			add("llm.api_key", "api_key is required for the openai provider")
		}
	case "ollama":
	default:
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("llm.base_url", "invalid base URL")
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		add("llm.max_tokens", "max_tokens must be between 1 and 4096")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "openai", "ollama", "local", "none":
	default:
		add("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}

	if c.Embedding.Rate <= 0 {
		add("embedding.rate", "rate must be positive")
	}

	// Validate Database and store config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			add("database.url", "invalid database URL")
		}
	}

	switch c.Store.Backend {
	case "", store.BackendFile, store.BackendMemory:
	case store.BackendPostgres:
		if c.Database.URL == "" {
			add("database.url", "database URL is required for the postgres backend")
		}
	default:
		add("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 500 || c.Processor.ChunkSize > 1000 {
		add("processor.chunk_size", "chunk_size must be between 500 and 1000")
	}

	if c.Processor.ChunkOverlap < 100 || c.Processor.ChunkOverlap > 200 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be between 100 and 200 and less than chunk_size")
	}

	if c.Retrieval.TopK < 1 {
		add("retrieval.top_k", "top_k must be positive")
	}

	// Validate Crawler config
	if c.Crawler.MaxDepth < 1 {
		add("crawler.max_depth", "max_depth must be positive")
	}

	if c.Crawler.RateLimit <= 0 {
		add("crawler.rate_limit", "rate_limit must be positive")
	}

	// Validate extensions format
	for _, ext := range c.Crawler.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("crawler.allowed_extensions", fmt.Sprintf("invalid extension format: %s", ext))
		}
	}

	// Validate notification config
	if c.Notify.SMTP.Host != "" {
		if c.Notify.SMTP.Port < 1 || c.Notify.SMTP.Port > 65535 {
			add("notify.smtp.port", "port must be between 1 and 65535")
		}
		if !strings.Contains(c.Notify.From, "@") {
			add("notify.from", "a sender address is required when smtp is configured")
		}
	}

	if c.Notify.MaxAttempts < 1 {
		add("notify.max_attempts", "max_attempts must be positive")
	}

	if c.Notify.InactiveDays < 1 || c.Notify.CooldownDays < 1 {
		add("notify.inactive_days", "inactive_days and cooldown_days must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		add("log.format", "format must be console or json")
	}

	return errors
}
