package embed

import (
	"context"
	"fmt"
	"os"

	geminiEmbed "github.com/cloudwego/eino-ext/components/embedding/gemini"
	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/grovegraph/grove/internal/config"
)

// NewEmbedder constructs the Eino embedder for the configured provider.
// Provider "none" returns nil; the service then answers every request
// with ErrProviderUnavailable and capture degrades to tag-only linking.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultOpenAIEmbeddingModel
		}
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:  model,
			APIKey: cfg.APIKey,
		})

	case config.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaURL
		}
		model := cfg.Model
		if model == "" {
			model = config.DefaultOllamaEmbeddingModel
		}
		return ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   model,
		})

	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini API key is required")
		}
		// The Gemini client reads its key from the environment.
		_ = os.Setenv("GOOGLE_API_KEY", cfg.APIKey)
		_ = os.Setenv("GEMINI_API_KEY", cfg.APIKey)
		model := cfg.Model
		if model == "" {
			model = config.DefaultGeminiEmbeddingModel
		}
		return geminiEmbed.NewEmbedder(ctx, &geminiEmbed.EmbeddingConfig{
			Model: model,
		})

	case config.ProviderMock:
		return NewMockEmbedder(), nil

	case config.ProviderNone, "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: openai, ollama, gemini, mock, none)", cfg.Provider)
	}
}
