package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/sportmind/intake/internal/config"
)

// OpenAIEmbedder computes embeddings via the OpenAI embeddings API. It
// serves both the startup directory build and per-turn query embedding.
type OpenAIEmbedder struct {
	client  *gopenai.Client
	model   gopenai.EmbeddingModel
	timeout time.Duration
	log     *slog.Logger
}

// NewEmbedder creates an embedding client from the configuration.
func NewEmbedder(cfg *config.Config, log *slog.Logger) *OpenAIEmbedder {
	aiConfig := gopenai.DefaultConfig(cfg.AI.EmbeddingToken)
	if cfg.AI.BaseURL != "" && cfg.AI.Backend == "openai" {
		aiConfig.BaseURL = strings.TrimSuffix(cfg.AI.BaseURL, "/")
	}

	return &OpenAIEmbedder{
		client:  gopenai.NewClientWithConfig(aiConfig),
		model:   gopenai.EmbeddingModel(cfg.AI.EmbeddingModel),
		timeout: cfg.AI.EmbedTimeout,
		log:     log.With("component", "embedder"),
	}
}

// Embed returns the embedding vector for one piece of text. The call is
// bounded by the configured timeout; a timeout is reported like any other
// service error.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, gopenai.EmbeddingRequest{
		Model: e.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contained no vector")
	}

	e.log.Debug("embedding computed",
		"dimensions", len(resp.Data[0].Embedding),
		"duration_ms", time.Since(startTime).Milliseconds())

	return resp.Data[0].Embedding, nil
}
