package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	googlegenai "google.golang.org/genai"
)

// contentGenerator is the subset of the Gemini SDK used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*googlegenai.Content, config *googlegenai.GenerateContentConfig) (*googlegenai.GenerateContentResponse, error)
}

// GeminiClient classifies through the Gemini API.
type GeminiClient struct {
	models      contentGenerator
	model       string
	temperature float32
}

// NewGeminiClient creates a client. The key falls back to GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	o := buildOpts(opts)
	if o.APIKey == "" {
		o.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if o.Model == "" {
		o.Model = DefaultGeminiModel
	}
	cli, err := googlegenai.NewClient(ctx, &googlegenai.ClientConfig{
		APIKey:  o.APIKey,
		Backend: googlegenai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	slog.Debug("genai.NewGeminiClient: client created", "model", o.Model)
	return &GeminiClient{models: cli.Models, model: o.Model, temperature: float32(o.Temperature)}, nil
}

// Name returns the provider name.
func (c *GeminiClient) Name() string { return ProviderGemini }

// Complete generates content from the user prompt under the system instruction.
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.models.GenerateContent(ctx, c.model,
		googlegenai.Text(userPrompt),
		&googlegenai.GenerateContentConfig{
			SystemInstruction: googlegenai.NewContentFromText(systemPrompt, googlegenai.RoleUser),
			Temperature:       googlegenai.Ptr(c.temperature),
		},
	)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
