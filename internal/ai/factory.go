package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sportmind/intake/internal/config"
)

// NewGenerator selects and constructs the text-generation backend named in
// the configuration.
func NewGenerator(ctx context.Context, cfg *config.Config, log *slog.Logger) (Generator, error) {
	log.Info("initializing text-generation backend", "backend", cfg.AI.Backend, "model", cfg.AI.Model)

	switch cfg.AI.Backend {
	case "openai":
		gen, err := newOpenAIGenerator(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI generator: %w", err)
		}
		return gen, nil
	case "gemini":
		gen, err := newGeminiGenerator(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini generator: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown AI backend: %s", cfg.AI.Backend)
	}
}
