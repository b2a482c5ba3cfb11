package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/lucasnoah/scenesmith/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Request is a single completion request to an agent model. Image, when
// set, is attached as a PNG content part (viewport screenshots).
type Request struct {
	System string
	User   string
	Image  []byte
}

// Client is the capability boundary for all three agents. The orchestrator
// and step wrappers only ever see text in, text out.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// chatClient backs Client with a langchaingo chat model.
type chatClient struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// New builds a Client for the named model using the shared LLM config.
// The API key is read from the environment variable the config names.
func New(cfg config.LLMConfig, model string) (Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
	}

	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init model %q: %w", model, err)
	}
	return &chatClient{model: m, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

func (c *chatClient) Complete(ctx context.Context, req Request) (string, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}

	parts := []llms.ContentPart{llms.TextPart(req.User)}
	if len(req.Image) > 0 {
		parts = append(parts, llms.BinaryPart("image/png", req.Image))
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	})

	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}
