package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/sportmind/intake/internal/config"
)

// geminiGenerator implements Generator using the Google GenAI SDK.
type geminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

func newGeminiGenerator(ctx context.Context, cfg *config.Config, log *slog.Logger) (*geminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.AI.Token,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &geminiGenerator{
		client:      client,
		model:       cfg.AI.Model,
		temperature: cfg.AI.Temperature,
		timeout:     cfg.AI.Timeout,
		log:         log.With("component", "gemini_generator"),
	}, nil
}

// Generate creates a Gemini completion. The system message becomes the SDK
// system instruction; assistant turns map to the model role.
func (g *geminiGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemInstruction = m.Content
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: &g.temperature,
	}
	if systemInstruction != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	startTime := time.Now()
	reply, err := retryWithBackoff(ctx, func() (string, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, genConfig)
		if err != nil {
			return "", fmt.Errorf("gemini call failed: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini returned no candidates")
		}

		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", fmt.Errorf("gemini returned empty content")
		}

		return text, nil
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
