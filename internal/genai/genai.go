// Package genai provides the remote language-model clients used for phase classification.
//
// Every client exposes the same two methods, Name and Complete, so callers can
// order them freely in a fallback chain.
package genai

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Default models per provider.
const (
	DefaultOpenAIModel    = string(openai.ChatModelGPT4oMini)
	DefaultDeepSeekModel  = "deepseek-chat"
	DefaultDeepSeekURL    = "https://api.deepseek.com/v1"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
	DefaultGeminiModel    = "gemini-2.0-flash"

	defaultMaxTokens = 256
)

var (
	// ErrNoChoicesReturned is returned when a completion has no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrAPIKeyNotSet is returned when a client is created without credentials.
	ErrAPIKeyNotSet = errors.New("API key not set")
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc *openai.ChatCompletionService
}

func (a completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for a provider client.
type Opts struct {
	APIKey      string
	Model       string
	BaseURL     string
	Name        string
	Temperature float64
	MaxTokens   int64
}

// Option defines a functional option for configuring a provider client.
type Option func(*Opts)

// WithAPIKey overrides the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the model used for completions.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithName sets the name reported by the client.
func WithName(name string) Option {
	return func(o *Opts) {
		o.Name = name
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) {
		o.MaxTokens = n
	}
}

func buildOpts(opts []Option) Opts {
	o := Opts{MaxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client wraps the OpenAI chat completion service. It also serves
// OpenAI-compatible endpoints such as DeepSeek through WithBaseURL.
type Client struct {
	chat        chatService
	name        string
	model       string
	temperature float64
	maxTokens   int64
}

// NewClient creates an OpenAI client. The key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	o := buildOpts(opts)
	if o.APIKey == "" {
		o.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if o.Model == "" {
		o.Model = DefaultOpenAIModel
	}
	if o.Name == "" {
		o.Name = ProviderOpenAI
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient: client created", "provider", o.Name, "model", o.Model, "baseURL", o.BaseURL)
	return &Client{
		chat:        completionsAdapter{svc: &cli.Chat.Completions},
		name:        o.Name,
		model:       o.Model,
		temperature: o.Temperature,
		maxTokens:   o.MaxTokens,
	}, nil
}

// NewDeepSeekClient creates a client for the DeepSeek OpenAI-compatible API.
func NewDeepSeekClient(opts ...Option) (*Client, error) {
	o := buildOpts(opts)
	if o.APIKey == "" {
		o.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if o.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	base := []Option{WithName(ProviderDeepSeek), WithModel(DefaultDeepSeekModel), WithBaseURL(DefaultDeepSeekURL)}
	return NewClient(append(base, append(opts, WithAPIKey(o.APIKey))...)...)
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Complete sends a system and user prompt and returns the first choice.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}
