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

// openAIGenerator implements Generator using the OpenAI chat completions API.
type openAIGenerator struct {
	client      *gopenai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

func newOpenAIGenerator(cfg *config.Config, log *slog.Logger) (*openAIGenerator, error) {
	aiConfig := gopenai.DefaultConfig(cfg.AI.Token)
	if cfg.AI.BaseURL != "" {
		aiConfig.BaseURL = strings.TrimSuffix(cfg.AI.BaseURL, "/")
	}

	return &openAIGenerator{
		client:      gopenai.NewClientWithConfig(aiConfig),
		model:       cfg.AI.Model,
		temperature: cfg.AI.Temperature,
		timeout:     cfg.AI.Timeout,
		log:         log.With("component", "openai_generator"),
	}, nil
}

// Generate creates a chat completion for the given messages. Transient API
// failures are retried with backoff; any terminal failure is reported as
// ErrGenerationUnavailable.
func (g *openAIGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	apiMessages := make([]gopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, gopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	startTime := time.Now()
	reply, err := retryWithBackoff(ctx, func() (string, error) {
		resp, err := g.client.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
			Model:       g.model,
			Messages:    apiMessages,
			Temperature: g.temperature,
		})
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices")
		}

		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return "", fmt.Errorf("chat completion returned empty content")
		}

		return content, nil
	})
	if err != nil {
		g.log.Error("generation failed",
			"model", g.model,
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err)
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	g.log.Debug("generation completed",
		"model", g.model,
		"duration_ms", time.Since(startTime).Milliseconds())

	return reply, nil
}
