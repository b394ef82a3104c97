package genai

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

// messageService is the subset of the Anthropic SDK used by AnthropicClient.
type messageService interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient classifies through the Anthropic Messages API.
type AnthropicClient struct {
	messages    messageService
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropicClient creates a client. The key falls back to ANTHROPIC_API_KEY.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	o := buildOpts(opts)
	if o.APIKey == "" {
		o.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if o.Model == "" {
		o.Model = DefaultAnthropicModel
	}
	reqOpts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, anthropicoption.WithBaseURL(o.BaseURL))
	}
	cli := anthropic.NewClient(reqOpts...)
	slog.Debug("genai.NewAnthropicClient: client created", "model", o.Model)
	return &AnthropicClient{
		messages:    &cli.Messages,
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return ProviderAnthropic }

// Complete sends a single user turn with a system prompt and joins the text blocks of the reply.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
