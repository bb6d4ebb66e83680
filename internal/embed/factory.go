package embed

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/nocmatch/internal/config"
)

// NewEmbedder creates the embedder named by cfg.Provider. Unlike a search
// tool, the matcher never silently swaps providers: vectors from different
// models are not comparable, so an unknown provider is an error.
func NewEmbedder(cfg config.EmbeddingsConfig) (Embedder, error) {
	provider := ProviderType(strings.ToLower(strings.TrimSpace(cfg.Provider)))

	var (
		embedder Embedder
		err      error
	)
	switch provider {
	case ProviderOpenAI, "":
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderOllama:
		model := cfg.Model
		if model == "" || model == DefaultOpenAIModel {
			model = DefaultOllamaModel
		}
		embedder = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderStatic:
		embedder = NewStaticEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (valid: openai, ollama, static)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder created",
		slog.String("provider", string(provider)),
		slog.String("model", embedder.ModelName()))
	return embedder, nil
}
