package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xhad/tutor/pkg/retrieval"
	"github.com/xhad/tutor/pkg/theme"
)

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	// Provider is openai, ollama, local or none.
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
	// Rate caps embedding calls per second during ingestion.
	Rate float64 `yaml:"rate"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	TablePrefix string `yaml:"table_prefix"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK         int                      `yaml:"top_k"`
	PreviewRunes int                      `yaml:"preview_runes"`
	Lexical      retrieval.LexicalWeights `yaml:"lexical"`
}

type CrawlerConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout bounds one delivery; 0 means 30s.
	Timeout time.Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	SMTP         SMTPConfig    `yaml:"smtp"`
	From         string        `yaml:"from"`
	AppURL       string        `yaml:"app_url"`
	InactiveDays int           `yaml:"inactive_days"`
	CooldownDays int           `yaml:"cooldown_days"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	// Seed drives template selection; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MaxUploadMB bounds multipart document uploads.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
	// DocumentRoot is the directory "path" ingestion requests may read.
	// Empty disables them; uploads and crawls still work.
	DocumentRoot string `yaml:"document_root"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Database  DatabaseConfig  `yaml:"database"`
	Store     StoreConfig     `yaml:"store"`
	Processor ProcessorConfig `yaml:"processor"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Theme     theme.Weights   `yaml:"theme"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/tutor/config.yaml"),
			"/etc/tutor/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Weight tables start from their defaults so keys left out of the file
	// keep them and an explicit 0 stays 0.
	config := Config{
		Retrieval: RetrievalConfig{Lexical: retrieval.DefaultLexicalWeights()},
		Theme:     theme.DefaultWeights(),
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{
		Retrieval: RetrievalConfig{Lexical: retrieval.DefaultLexicalWeights()},
		Theme:     theme.DefaultWeights(),
	}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == config.LLM.Provider {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}
	if config.Embedding.APIKey == "" {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 30 * time.Second
	}
	if config.Embedding.Rate == 0 {
		config.Embedding.Rate = 5
	}

	if config.Database.TablePrefix == "" {
		config.Database.TablePrefix = "tutor_"
	}
	if config.Store.Dir == "" {
		config.Store.Dir = "data"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = retrieval.DefaultTopK
	}
	if config.Retrieval.PreviewRunes == 0 {
		config.Retrieval.PreviewRunes = 200
	}

	if config.Crawler.MaxDepth == 0 {
		config.Crawler.MaxDepth = 3
	}
	if config.Crawler.RateLimit == 0 {
		config.Crawler.RateLimit = 2.0
	}
	if len(config.Crawler.AllowedExtensions) == 0 {
		config.Crawler.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Notify.SMTP.Port == 0 {
		config.Notify.SMTP.Port = 587
	}
	if config.Notify.InactiveDays == 0 {
		config.Notify.InactiveDays = 15
	}
	if config.Notify.CooldownDays == 0 {
		config.Notify.CooldownDays = 7
	}
	if config.Notify.MaxAttempts == 0 {
		config.Notify.MaxAttempts = 3
	}
	if config.Notify.BaseBackoff == 0 {
		config.Notify.BaseBackoff = 500 * time.Millisecond
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 90 * time.Second
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		config.Notify.SMTP.Password = password
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		config.Server.Port = port
	}
}
