package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ProviderOllama, cfg.Embedding.Provider)
	assert.Equal(t, 15*time.Second, cfg.Embedding.Timeout)
	assert.InDelta(t, 0.70, cfg.Linking.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Linking.TagWeight, 1e-9)
	assert.InDelta(t, 0.05, cfg.Linking.RecencyWeight, 1e-9)
	assert.InDelta(t, 0.5, cfg.Linking.MinScore, 1e-9)
	assert.Equal(t, 5, cfg.Linking.TopK)
	assert.Equal(t, 24*time.Hour, cfg.Moderation.UndoWindow)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadUsesViperOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("embedding.provider", ProviderMock)
	viper.Set("linking.min_score", 0.35)
	viper.Set("linking.top_k", 10)
	viper.Set("moderation.undo_window", "2h")

	cfg := Load()
	assert.Equal(t, ProviderMock, cfg.Embedding.Provider)
	assert.InDelta(t, 0.35, cfg.Linking.MinScore, 1e-9)
	assert.Equal(t, 10, cfg.Linking.TopK)
	assert.Equal(t, 2*time.Hour, cfg.Moderation.UndoWindow)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.70, cfg.Linking.SemanticWeight, 1e-9)
}

func TestLoadNormalizesWeights(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("linking.weights.semantic", 2.0)
	viper.Set("linking.weights.tag", 1.0)
	viper.Set("linking.weights.recency", 1.0)

	cfg := Load()
	assert.InDelta(t, 0.50, cfg.Linking.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Linking.TagWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Linking.RecencyWeight, 1e-9)
}

func TestLoadAllZeroWeightsFallBackToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("linking.weights.semantic", 0.0)
	viper.Set("linking.weights.tag", 0.0)
	viper.Set("linking.weights.recency", 0.0)

	cfg := Load()
	assert.InDelta(t, 0.70, cfg.Linking.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Linking.TagWeight, 1e-9)
	assert.InDelta(t, 0.05, cfg.Linking.RecencyWeight, 1e-9)
}

func TestResolvedModel(t *testing.T) {
	assert.Equal(t, "custom", EmbeddingConfig{Provider: ProviderOpenAI, Model: "custom"}.ResolvedModel())
	assert.Equal(t, DefaultOpenAIEmbeddingModel, EmbeddingConfig{Provider: ProviderOpenAI}.ResolvedModel())
	assert.Equal(t, DefaultOllamaEmbeddingModel, EmbeddingConfig{Provider: ProviderOllama}.ResolvedModel())
	assert.Empty(t, EmbeddingConfig{Provider: ProviderMock}.ResolvedModel())
}
