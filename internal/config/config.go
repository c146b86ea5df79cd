// Package config centralizes all tunable settings: embedding provider
// selection, linking weights and thresholds, moderation policy and
// storage paths. Values resolve through Viper (config file, environment,
// flags) with in-code defaults as the single source of truth.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Embedding provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
	ProviderNone   = "none"
)

// Default embedding models per provider.
const (
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"

	// DefaultOllamaURL is the default URL for a local Ollama server.
	DefaultOllamaURL = "http://localhost:11434"

	// MockDimensions is the vector size of the deterministic mock
	// provider, matching all-MiniLM-class local models.
	MockDimensions = 384
)

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Dimensions pins the expected vector size. Zero means "learn from
	// the first successful embedding".
	Dimensions int `mapstructure:"dimensions"`
}

// LinkingConfig tunes the candidate generator.
type LinkingConfig struct {
	// Weights must describe relative importance; they are normalized at
	// load so callers never see a degenerate all-zero set.
	SemanticWeight float64 `mapstructure:"semantic_weight"`
	TagWeight      float64 `mapstructure:"tag_weight"`
	RecencyWeight  float64 `mapstructure:"recency_weight"`

	// MinScore is the suggestion threshold; candidates below it are
	// discarded, not stored.
	MinScore float64 `mapstructure:"min_score"`

	// TopK bounds suggested edges generated per subject node.
	TopK int `mapstructure:"top_k"`

	// PoolSize bounds the vector-similarity half of the candidate pool.
	PoolSize int `mapstructure:"pool_size"`

	// RecencyHalfLife controls the recency bonus decay.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
}

// ModerationConfig tunes the edge lifecycle.
type ModerationConfig struct {
	// UndoWindow bounds how long after a decision an undo is accepted.
	UndoWindow time.Duration `mapstructure:"undo_window"`
}

// Config is the root configuration object, passed explicitly into every
// component constructor. No package reads ambient global state.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	InboxDir   string           `mapstructure:"inbox_dir"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Linking    LinkingConfig    `mapstructure:"linking"`
	Moderation ModerationConfig `mapstructure:"moderation"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:  defaultDataDir(),
		InboxDir: "",
		Embedding: EmbeddingConfig{
			Provider: ProviderOllama,
			Model:    DefaultOllamaEmbeddingModel,
			BaseURL:  DefaultOllamaURL,
			Timeout:  15 * time.Second,
		},
		Linking: LinkingConfig{
			SemanticWeight:  0.70,
			TagWeight:       0.25,
			RecencyWeight:   0.05,
			MinScore:        0.5,
			TopK:            5,
			PoolSize:        200,
			RecencyHalfLife: 30 * 24 * time.Hour,
		},
		Moderation: ModerationConfig{
			UndoWindow: 24 * time.Hour,
		},
	}
}

// Load resolves the effective configuration from Viper over defaults.
func Load() Config {
	d := Default()
	cfg := Config{
		DataDir:  getStringWithDefault("data_dir", d.DataDir),
		InboxDir: getStringWithDefault("inbox_dir", d.InboxDir),
		Embedding: EmbeddingConfig{
			Provider:   getStringWithDefault("embedding.provider", d.Embedding.Provider),
			Model:      getStringWithDefault("embedding.model", ""),
			APIKey:     getStringWithDefault("embedding.api_key", os.Getenv("GROVE_EMBED_API_KEY")),
			BaseURL:    getStringWithDefault("embedding.base_url", d.Embedding.BaseURL),
			Timeout:    getDurationWithDefault("embedding.timeout", d.Embedding.Timeout),
			Dimensions: getIntWithDefault("embedding.dimensions", 0),
		},
		Linking: LinkingConfig{
			SemanticWeight:  getFloat64WithDefault("linking.weights.semantic", d.Linking.SemanticWeight),
			TagWeight:       getFloat64WithDefault("linking.weights.tag", d.Linking.TagWeight),
			RecencyWeight:   getFloat64WithDefault("linking.weights.recency", d.Linking.RecencyWeight),
			MinScore:        getFloat64WithDefault("linking.min_score", d.Linking.MinScore),
			TopK:            getIntWithDefault("linking.top_k", d.Linking.TopK),
			PoolSize:        getIntWithDefault("linking.pool_size", d.Linking.PoolSize),
			RecencyHalfLife: getDurationWithDefault("linking.recency_half_life", d.Linking.RecencyHalfLife),
		},
		Moderation: ModerationConfig{
			UndoWindow: getDurationWithDefault("moderation.undo_window", d.Moderation.UndoWindow),
		},
	}
	cfg.Linking.normalizeWeights()
	return cfg
}

// normalizeWeights scales the scoring weights to sum to one. An
// all-zero set falls back to the defaults, otherwise every candidate
// would score zero and no suggestion could ever clear MinScore.
func (l *LinkingConfig) normalizeWeights() {
	sum := l.SemanticWeight + l.TagWeight + l.RecencyWeight
	if sum <= 0 {
		d := Default().Linking
		l.SemanticWeight = d.SemanticWeight
		l.TagWeight = d.TagWeight
		l.RecencyWeight = d.RecencyWeight
		return
	}
	l.SemanticWeight /= sum
	l.TagWeight /= sum
	l.RecencyWeight /= sum
}

// DefaultModelForProvider returns the default embedding model for a
// provider string, or "" for providers without a model notion.
func DefaultModelForProvider(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return DefaultOpenAIEmbeddingModel
	case ProviderGemini:
		return DefaultGeminiEmbeddingModel
	case ProviderOllama:
		return DefaultOllamaEmbeddingModel
	default:
		return ""
	}
}

// ResolvedModel returns the configured model, falling back to the
// provider default.
func (e EmbeddingConfig) ResolvedModel() string {
	if e.Model != "" {
		return e.Model
	}
	return DefaultModelForProvider(e.Provider)
}

// defaultDataDir resolves where the graph database lives. Resolution
// order: local .grove directory if present, then XDG_DATA_HOME, then
// ~/.grove.
func defaultDataDir() string {
	if info, err := os.Stat(".grove"); err == nil && info.IsDir() {
		return ".grove"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "grove")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grove"
	}
	return filepath.Join(home, ".grove")
}

// Helper functions for Viper with defaults

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getDurationWithDefault(key string, defaultVal time.Duration) time.Duration {
	if viper.IsSet(key) {
		if d := viper.GetDuration(key); d > 0 {
			return d
		}
	}
	return defaultVal
}
