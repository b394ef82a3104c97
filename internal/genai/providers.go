package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Provider is a named text-completion endpoint.
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// KeyGetter resolves secrets from an external parameter store.
type KeyGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ProviderConfig describes one configured provider.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// ParseProviderList splits a comma-separated priority list, dropping blanks
// and duplicates while keeping order.
func ParseProviderList(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ParameterName returns the store path of a provider key under prefix.
func ParameterName(prefix, provider string) string {
	return strings.TrimRight(prefix, "/") + "/" + provider + "_api_key"
}

// BuildProviders creates clients for cfgs in order. Providers without a key are
// skipped; if getter is non-nil, missing keys are looked up under paramPrefix first.
func BuildProviders(ctx context.Context, cfgs []ProviderConfig, getter KeyGetter, paramPrefix string) []Provider {
	var out []Provider
	for _, cfg := range cfgs {
		if cfg.APIKey == "" && getter != nil && paramPrefix != "" {
			key, err := getter.GetParameter(ctx, ParameterName(paramPrefix, cfg.Name))
			if err != nil {
				slog.Warn("genai.BuildProviders: key lookup failed", "provider", cfg.Name, "error", err)
			} else {
				cfg.APIKey = key
			}
		}
		p, err := NewProvider(ctx, cfg)
		if err != nil {
			if errors.Is(err, ErrAPIKeyNotSet) {
				slog.Info("genai.BuildProviders: provider not configured, skipping", "provider", cfg.Name)
			} else {
				slog.Warn("genai.BuildProviders: provider unavailable", "provider", cfg.Name, "error", err)
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

// NewProvider creates the client named by cfg.Name.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	opts := []Option{WithAPIKey(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	switch cfg.Name {
	case ProviderOpenAI:
		return NewClient(opts...)
	case ProviderDeepSeek:
		return NewDeepSeekClient(opts...)
	case ProviderAnthropic:
		return NewAnthropicClient(opts...)
	case ProviderGemini:
		return NewGeminiClient(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
